package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/auth"
	"github.com/vovakirdan/roomchat-server/internal/config"
	"github.com/vovakirdan/roomchat-server/internal/core"
	"github.com/vovakirdan/roomchat-server/internal/metrics"
	"github.com/vovakirdan/roomchat-server/internal/service/admin"
	"github.com/vovakirdan/roomchat-server/internal/service/rooms"
)

// Deps are the services the HTTP layer serves. Metrics is optional.
type Deps struct {
	Hub     *core.Hub
	Auth    *auth.Service
	Rooms   *rooms.Service
	Admin   *admin.Service
	Metrics *metrics.Collector
}

// Metrics receives transport-level counters.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	AuthFailed()
	RateLimited()
	SlowConsumerEvicted()
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened() {}
func (nopMetrics) ConnectionClosed() {}
func (nopMetrics) AuthFailed()       {}
func (nopMetrics) RateLimited()      {}

func (nopMetrics) SlowConsumerEvicted() {}

// NewServer builds the HTTP server with REST, WebSocket and metrics routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.AllowedOrigins))

	var m Metrics = nopMetrics{}
	if deps.Metrics != nil {
		m = deps.Metrics
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/health", healthHandler)

	ws := NewWSHandler(deps.Hub, cfg, m, logger)
	router.GET("/ws", ws.Handle)

	api := router.Group("/api")
	api.Use(BodyLimitMiddleware(cfg.MaxMessageBytes))

	authHandlers := NewAPIHandlers(deps.Auth, logger)
	authGroup := api.Group("/auth")
	authGroup.POST("/register", authHandlers.Register)
	authGroup.POST("/login", authHandlers.Login)
	authGroup.GET("/verify", authHandlers.Verify)

	roomHandlers := NewRoomHandlers(deps.Rooms, logger)
	roomGroup := api.Group("/rooms")
	roomGroup.Use(AuthMiddleware(deps.Auth, logger))
	roomGroup.POST("/create", roomHandlers.CreateRoom)
	roomGroup.POST("/join", roomHandlers.JoinRoom)
	roomGroup.DELETE("/:roomId", roomHandlers.ClearMessages)

	adminHandlers := NewAdminHandlers(deps.Admin, logger)
	adminGroup := api.Group("/admin")
	adminGroup.POST("/rooms", adminHandlers.Rooms)
	adminGroup.POST("/activity", adminHandlers.Activity)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
