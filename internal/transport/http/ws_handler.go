package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/config"
	"github.com/vovakirdan/roomchat-server/internal/core"
	"github.com/vovakirdan/roomchat-server/internal/proto"
)

const writeTimeout = 10 * time.Second

// errSlowConsumer ends a connection whose event queue overflowed.
var errSlowConsumer = errors.New("slow consumer")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub            *core.Hub
	metrics        Metrics
	log            *zerolog.Logger
	originPatterns []string
	readLimit      int64
	perSecond      float64
	burst          int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, m Metrics, logger *zerolog.Logger) *WSHandler {
	if m == nil {
		m = nopMetrics{}
	}
	return &WSHandler{
		hub:            hub,
		metrics:        m,
		log:            logger,
		originPatterns: originPatterns(cfg.AllowedOrigins),
		readLimit:      cfg.MaxMessageBytes,
		perSecond:      cfg.RateLimit.MessagesPerSecond,
		burst:          cfg.RateLimit.Burst,
	}
}

// originPatterns turns allowed origins into host patterns for Accept.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

func requestToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	token, _ := bearerToken(c.GetHeader("Authorization"))
	return token
}

// Handle authenticates the request and serves the connection until either
// side closes it.
// GET /ws
func (h *WSHandler) Handle(c *gin.Context) {
	client, err := h.hub.Connect(requestToken(c), c.ClientIP())
	if err != nil {
		if errors.Is(err, core.ErrHubClosed) {
			c.JSON(stdhttp.StatusServiceUnavailable, ErrorResponse{Error: "server is shutting down"})
			return
		}
		h.metrics.AuthFailed()
		h.log.Debug().Err(err).Str("addr", c.ClientIP()).Msg("ws authentication failed")
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "authentication error"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		h.hub.Disconnect(client)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(h.readLimit)

	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh
	h.hub.Disconnect(client)

	if errors.Is(err, errSlowConsumer) {
		h.metrics.SlowConsumerEvicted()
		h.log.Warn().Str("client_id", client.ID).Str("user", client.User).Msg("ws client evicted: event queue full")
		conn.Close(websocket.StatusTryAgainLater, "slow consumer")
		return
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.perSecond, h.burst)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("malformed ws frame")
			if err := h.sendError(ctx, conn, proto.ErrCodeBadRequest, "malformed message"); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Str("type", inbound.Type).Msg("failed to map inbound")
			protoErr = &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "malformed " + inbound.Type + " payload"}
		}
		if protoErr != nil {
			if err := h.sendError(ctx, conn, protoErr.Code, protoErr.Msg); err != nil {
				return err
			}
			continue
		}

		if cmd.Kind == core.CommandSendRoomMessage && !limiter.allow() {
			h.metrics.RateLimited()
			if err := h.sendError(ctx, conn, proto.ErrCodeRateLimited, "too many messages"); err != nil {
				return err
			}
			continue
		}

		if err := client.Enqueue(ctx, cmd); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := h.write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Evicted():
			return errSlowConsumer
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) sendError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return h.write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	})
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, out)
}
