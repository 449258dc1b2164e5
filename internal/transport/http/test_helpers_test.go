package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/auth"
	"github.com/vovakirdan/roomchat-server/internal/config"
	"github.com/vovakirdan/roomchat-server/internal/core"
	"github.com/vovakirdan/roomchat-server/internal/metrics"
	"github.com/vovakirdan/roomchat-server/internal/proto"
	"github.com/vovakirdan/roomchat-server/internal/service/admin"
	"github.com/vovakirdan/roomchat-server/internal/service/rooms"
	"github.com/vovakirdan/roomchat-server/internal/store"
	"github.com/vovakirdan/roomchat-server/internal/store/sqlite"
)

const testAdminPassword = "admin-secret"

type fixedLocator struct{}

func (fixedLocator) Resolve(context.Context, string) store.Location {
	return store.Location{City: "Lisbon", Country: "Portugal", Latitude: 38.7, Longitude: -9.1}
}

type testEnv struct {
	cfg     config.Config
	srv     *httptest.Server
	store   *sqlite.SQLiteStore
	auth    *auth.Service
	hub     *core.Hub
	metrics *metrics.Collector
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.AdminPassword = testAdminPassword
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	jwtCfg := auth.NewJWTConfig("k1", "test-secret", nil, "roomchat", time.Hour)
	authSvc := auth.NewService(st, jwtCfg)
	collector := metrics.NewCollector()

	hub := core.NewHub(st, authSvc, fixedLocator{},
		core.WithLogger(&logger),
		core.WithObserver(collector),
		core.WithClientBuffer(cfg.ClientBuffer),
	)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer waitCancel()
		_ = hub.Wait(waitCtx)
	})

	server := NewServer(Deps{
		Hub:     hub,
		Auth:    authSvc,
		Rooms:   rooms.New(st),
		Admin:   admin.New(cfg.AdminPassword, st, st, hub),
		Metrics: collector,
	}, &cfg, &logger)

	srv := httptest.NewServer(server.Handler)
	t.Cleanup(srv.Close)

	return &testEnv{cfg: cfg, srv: srv, store: st, auth: authSvc, hub: hub, metrics: collector}
}

// do sends a JSON request and decodes the JSON response into out (if non-nil).
func (e *testEnv) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := stdhttp.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()

	_, token, err := e.auth.Register(context.Background(), email, "secret123")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return token
}

func (e *testEnv) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?token=" + token
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, e.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// wireOutbound mirrors proto.Outbound with the payload left raw.
type wireOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func writeFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wireOutbound {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var out wireOutbound
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode frame %s: %v", raw, err)
	}
	return out
}

// expectEvent reads frames until the named event arrives and decodes its data.
func expectEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	for i := 0; i < 20; i++ {
		out := readFrame(t, conn)
		if out.Type != proto.OutboundTypeEvent || out.Event != event {
			continue
		}
		if data != nil {
			if err := json.Unmarshal(out.Data, data); err != nil {
				t.Fatalf("decode %s data: %v", event, err)
			}
		}
		return
	}
	t.Fatalf("event %q not received", event)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
