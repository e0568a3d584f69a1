package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"adloader/internal/ads"
	"adloader/internal/api"
	"adloader/internal/auth"
	"adloader/internal/config"
	"adloader/internal/metrics"
	"adloader/internal/store"
	"adloader/pkg/db"
	"adloader/pkg/logger"
)

var buildVersion = envDefault("BUILD_VERSION", "dev")

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		boot := logger.New("info", false)
		boot.Fatal().Err(err).Msg("invalid config")
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cacheMetrics, err := metrics.NewCacheCollector(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("register metrics")
	}

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("open experience store")
	}
	defer closeStore()

	loader := ads.NewLoader(cfg.Ads,
		ads.WithLogger(log),
		ads.WithCacheMetrics(cacheMetrics.For("cards")),
	)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Deps{
			Loader:   loader,
			Store:    st,
			Auth:     auth.NewService(cfg.AppSecret),
			Gatherer: reg,
			Log:      log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("version", buildVersion).
		Str("store", cfg.Store).
		Str("catalog", cfg.Ads.EnvRoot+cfg.Ads.CardEndpoint).
		Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// openStore returns the configured experience store and its release func.
// The "none" store is nil, which leaves GET /experiences/{id} unmounted.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Store, func(), error) {
	switch cfg.Store {
	case config.StoreScylla:
		session, err := store.ConnectScylla(ctx, store.ScyllaConfig{
			Hosts:       cfg.Scylla.Hosts,
			Port:        cfg.Scylla.Port,
			Keyspace:    cfg.Scylla.Keyspace,
			Consistency: cfg.Scylla.Consistency,
			Replication: cfg.Scylla.Replication,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return store.NewScylla(session, cfg.Scylla.Keyspace), session.Close, nil
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		return nil, func() {}, nil
	}
}

func envDefault(key, val string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return val
}
