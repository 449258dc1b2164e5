package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/activityfeed"
	"github.com/vovakirdan/roomchat-server/internal/auth"
	"github.com/vovakirdan/roomchat-server/internal/config"
	"github.com/vovakirdan/roomchat-server/internal/core"
	"github.com/vovakirdan/roomchat-server/internal/geo"
	"github.com/vovakirdan/roomchat-server/internal/metrics"
	"github.com/vovakirdan/roomchat-server/internal/service/admin"
	"github.com/vovakirdan/roomchat-server/internal/service/rooms"
	"github.com/vovakirdan/roomchat-server/internal/store"
	"github.com/vovakirdan/roomchat-server/internal/store/mongo"
	"github.com/vovakirdan/roomchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomchat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           *redis.Client
	feed            *activityfeed.NATSPublisher
	log             *zerolog.Logger
}

// OpenStore connects to the configured backend without migrating it.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case "mongo":
		st, err := mongo.New(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	logger.Info().Str("driver", cfg.Store.Driver).Msg("store initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	jwtConfig := auth.NewJWTConfig(cfg.JWT.KeyID, cfg.JWT.Secret, cfg.JWT.PreviousKeys, cfg.JWT.Issuer, cfg.JWT.TTL)
	authService := auth.NewService(st, jwtConfig)

	collector := metrics.NewCollector()

	geoOpts := []geo.Option{
		geo.WithTimeout(cfg.Geo.Timeout),
		geo.WithObserver(collector),
		geo.WithLogger(logger),
	}
	if cfg.Geo.Endpoint != "" {
		geoOpts = append(geoOpts, geo.WithEndpoint(cfg.Geo.Endpoint))
	}
	if cfg.Geo.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Geo.RedisAddr})
		geoOpts = append(geoOpts, geo.WithCache(geo.NewRedisCache(a.redis, cfg.Geo.CacheTTL)))
		logger.Info().Str("addr", cfg.Geo.RedisAddr).Msg("geo cache enabled")
	}
	resolver := geo.NewResolver(geo.NewSafeHTTPClient(cfg.Geo.Timeout), geoOpts...)

	hubOpts := []core.Option{
		core.WithLogger(logger),
		core.WithObserver(collector),
		core.WithClientBuffer(cfg.ClientBuffer),
	}
	if cfg.NATS.URL != "" {
		feed, err := activityfeed.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init activity feed: %w", err)
		}
		a.feed = feed
		hubOpts = append(hubOpts, core.WithActivitySink(feed))
		logger.Info().Str("url", cfg.NATS.URL).Msg("activity feed enabled")
	}

	a.hub = core.NewHub(st, authService, resolver, hubOpts...)

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Hub:     a.hub,
		Auth:    authService,
		Rooms:   rooms.New(st),
		Admin:   admin.New(cfg.AdminPassword, st, st, a.hub),
		Metrics: collector,
	}, cfg, logger)

	if cfg.AdminPassword == "" {
		logger.Warn().Msg("admin_password is empty; admin endpoints are disabled")
	}

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		} else {
			runErr = <-serverErr
		}
	}

	// Sessions finish their pending persistence before the store goes away.
	stopHub()
	<-hubDone
	waitCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := a.hub.Wait(waitCtx); err != nil {
		a.log.Warn().Err(err).Msg("sessions did not finish before shutdown timeout")
	}

	a.cleanup()
	return runErr
}

// cleanup closes the store and optional backends.
func (a *App) cleanup() {
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close activity feed")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
