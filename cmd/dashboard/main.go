package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/backend"
	server "github.com/ArshadYameen/flex-living-dashboard/internal/adapters/http_server"
	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/observability"
	redisad "github.com/ArshadYameen/flex-living-dashboard/internal/adapters/redis"
	"github.com/ArshadYameen/flex-living-dashboard/internal/app"
	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
	"github.com/ArshadYameen/flex-living-dashboard/internal/shared"
	mysqlrepo "github.com/ArshadYameen/flex-living-dashboard/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// deps
	client, err := backend.New(cfg.BackendBase, cfg.BackendRPS, cfg.BackendTimeout, cfg.SyncTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backend client")
	}
	cache, closeCache := openCache(ctx, cfg)
	defer closeCache()
	journal, db := openJournal(ctx, cfg)
	if db != nil {
		defer db.Close()
	}

	q := app.NewQueryService(client, cache, cfg.CacheTTL)
	cmd := app.NewCommandService(client, cache, journal)
	sessions := app.NewSessionStore(q, cmd, app.SessionOptions{
		FetchTimeout: cfg.FetchTimeout,
		SyncTimeout:  cfg.SyncTimeout,
	}, cfg.SessionIdleTTL)
	sessions.SetLimit(cfg.SessionMax)
	go sessions.Run(ctx, time.Minute)

	// http
	srv := server.New(15 * time.Second)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Sessions:     sessions,
		Q:            q,
		Cmd:          cmd,
		SecureCookie: cfg.CookieSecure,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("backend", cfg.BackendBase).Msg("dashboard listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	sessions.Close()
	log.Info().Msg("bye")
}

// openCache returns a nil cache when redis is not configured or unreachable;
// reads then go straight to the backend.
func openCache(ctx context.Context, cfg shared.Config) (domain.Cache, func()) {
	if cfg.RedisAddr == "" || cfg.CacheTTL <= 0 {
		log.Info().Msg("response cache disabled")
		return nil, func() {}
	}
	c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, response cache disabled")
		_ = c.Close()
		return nil, func() {}
	}
	log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.CacheTTL).Msg("redis cache ok")
	return c, func() { _ = c.Close() }
}

// openJournal connects and migrates the moderation journal. An empty DSN
// turns the journal off; a configured but broken one is fatal.
func openJournal(ctx context.Context, cfg shared.Config) (domain.Journal, *sql.DB) {
	if cfg.MySQLDSN == "" {
		return app.NopJournal{}, nil
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := mysqlrepo.Open(pctx, cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("journal database unavailable")
	}
	if err := mysqlrepo.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("journal migration failed")
	}
	log.Info().Msg("database connection ok")
	return mysqlrepo.New(db), db
}
