// Package server provides the public entry point for initializing the
// DelegateWatch service: config, store, alerting, tracking, reminders,
// and the HTTP router, composed in one place so embedders and
// cmd/server share the same wiring.
package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/delegatewatch/delegatewatch/internal/alert"
	"github.com/delegatewatch/delegatewatch/internal/api"
	"github.com/delegatewatch/delegatewatch/internal/api/handlers"
	"github.com/delegatewatch/delegatewatch/internal/config"
	"github.com/delegatewatch/delegatewatch/internal/notify"
	"github.com/delegatewatch/delegatewatch/internal/reminder"
	"github.com/delegatewatch/delegatewatch/internal/store"
	"github.com/delegatewatch/delegatewatch/internal/telemetry"
	"github.com/delegatewatch/delegatewatch/internal/tracking"
)

// Server holds the initialized DelegateWatch service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler
	Port    int
	Version string
	Store   store.Store

	// ShutdownFunc flushes telemetry; call it on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New builds the service from environment configuration. The process
// owns the store's lifecycle: init here, Close on shutdown.
func New(ctx context.Context) (*Server, error) {
	cfg := config.Load()

	st, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		st.Close()
		return nil, err
	}

	notifier := notify.NewService(cfg.Webhook)
	throttler := alert.NewThrottler(st, cfg.Alert, notifier)
	tracker := tracking.New(st, throttler)
	reminders := reminder.NewService(st)

	h := handlers.New(st, tracker, reminders, cfg.Version)

	return &Server{
		Handler:      api.NewRouter(cfg, h),
		Port:         cfg.Port,
		Version:      cfg.Version,
		Store:        st,
		ShutdownFunc: shutdown,
	}, nil
}

// newStore connects to Redis when configured, otherwise falls back to
// the in-memory store for zero-config local runs.
func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.Redis.Address == "" {
		log.Warn().Msg("REDIS_ADDR not set, using in-memory store (state is lost on restart)")
		return store.NewMemoryStore(), nil
	}
	return store.NewRedisStore(store.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		Database:     cfg.Redis.Database,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
}
