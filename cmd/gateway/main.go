// Command gateway boots the API gateway: config load, Redis/Postgres
// connections, rule chain assembly, and the HTTP server with graceful
// shutdown. Adapted from the corpus's cmd/protector/main.go boot sequence.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/portcall/gateway/internal/admin"
	"github.com/portcall/gateway/internal/anomaly"
	"github.com/portcall/gateway/internal/counterstore"
	"github.com/portcall/gateway/internal/dispatcher"
	"github.com/portcall/gateway/internal/httpserver"
	"github.com/portcall/gateway/internal/middleware"
	"github.com/portcall/gateway/internal/proxy"
	"github.com/portcall/gateway/internal/ratelimit"
	"github.com/portcall/gateway/internal/route"
	"github.com/portcall/gateway/internal/routestore"
	"github.com/portcall/gateway/internal/rules"
	"github.com/portcall/gateway/internal/telemetry"
	"github.com/portcall/gateway/pkg/config"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	switch getenv("LOG_LEVEL", "info") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfgPath := getenv("GATEWAY_CONFIG", "configs/policies.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", cfgPath).Msg("load config")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not reachable yet")
	} else {
		log.Info().Msg("redis reachable")
	}
	cancel()

	var store routestore.Store
	if cfg.Postgres.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := routestore.NewPostgres(ctx, cfg.Postgres.DSN, routestore.WithMaxConns(cfg.Postgres.MaxConns))
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("connect to route store")
		}
		store = pg
		log.Info().Msg("route store: postgres")
	} else {
		store = routestore.NewMemory(seedRoutes(cfg))
		log.Info().Msg("route store: in-memory (no postgres DSN configured)")
	}
	defer store.Close()

	loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	active, err := store.LoadActive(loadCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("load active routes")
	}
	table := route.New(active)

	counters := counterstore.NewRedis(rdb)
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	mitigator := ratelimit.NewStreakMitigator()
	mitigator.OverrideThreshold = cfg.Mitigation.OverrideThreshold
	mitigator.BlockThreshold = cfg.Mitigation.BlockThreshold
	mitigator.BlockFor = time.Duration(cfg.Mitigation.BlockForSeconds) * time.Second

	limiter := ratelimit.New(counters, window, mitigator)
	limiter.FailOpen = cfg.RateLimit.FailOpen

	var detector *anomaly.Detector
	if cfg.Anomaly.Enabled {
		detector = anomaly.New()
		detector.BucketWidth = time.Duration(cfg.Anomaly.BucketMS) * time.Millisecond
		detector.EWMAAlpha = cfg.Anomaly.EWMAAlpha
		detector.BurstFactor = cfg.Anomaly.BurstFactor
		detector.MinBaseline = cfg.Anomaly.MinBaseline

		stop := make(chan struct{})
		defer close(stop)
		go detector.Janitor(stop, time.Minute, 10*time.Minute)
	}

	chain := rules.NewChain(
		rules.RewriteRule{},
		&rules.RateLimitRule{Limiter: limiter, Detector: detector, Window: window},
	)

	tracker := telemetry.NewTracker()
	prom := telemetry.NewPromMetrics(prometheus.DefaultRegisterer)

	d := &dispatcher.Dispatcher{
		Table:     table,
		Chain:     chain,
		Forwarder: proxy.New(time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second),
		Tracker:   tracker,
		Prom:      prom,
	}

	auth := admin.NewAuthenticator(admin.Credentials{Username: cfg.Admin.Username, Password: cfg.Admin.Password})
	adminHandlers := &admin.Handlers{
		Auth:     auth,
		Table:    table,
		Store:    store,
		Counters: counters,
		Tracker:  tracker,
		Profile:  cfg.Profile,
		Version:  cfg.Version,
	}

	accessSample, _ := strconv.Atoi(getenv("ACCESS_LOG_SAMPLE", "1"))
	accessLog := middleware.Options{Enabled: getenv("ACCESS_LOG", "false") == "true", Sample: accessSample}
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Dispatcher: d,
		Admin:      adminHandlers,
		Auth:       auth,
		AccessLog:  accessLog,
		CORS:       cfg.Admin.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	httpserver.EnableDrainFlag(true)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("profile", cfg.Profile).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown requested; draining")

	httpserver.SetDraining(true)

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown did not complete in time; forcing close")
		_ = srv.Close()
	} else {
		log.Info().Msg("http server shut down cleanly")
	}

	log.Info().Msg("gateway exited")
}

func seedRoutes(cfg *config.Config) []route.Config {
	out := make([]route.Config, 0, len(cfg.Routes))
	for i, rs := range cfg.Routes {
		rewrite := make([]route.RewriteRule, 0, len(rs.URLRewrite))
		for from, to := range rs.URLRewrite {
			rewrite = append(rewrite, route.RewriteRule{From: from, To: to})
		}
		out = append(out, route.Config{
			ID:         int64(i + 1),
			Prefix:     rs.Prefix,
			TargetURL:  rs.TargetURL,
			RateLimit:  rs.RateLimit,
			URLRewrite: rewrite,
			Active:     true,
		})
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
