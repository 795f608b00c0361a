// Command authd serves the sessionauth engine over HTTP.
//
//	POST /login       {"email","password"}        -> identity + token pair
//	POST /refresh     {"refresh_token"}           -> rotated token pair
//	POST /logout      {"refresh_token_id"} opt.   -> 204, bearer required
//	POST /logout-all                              -> 204, bearer required
//	GET  /me                                      -> principal, bearer required
//	GET  /healthz, /metrics
//
// Settings come from SESSIONAUTH_* environment variables or an env file.
// With -dev an in-process Redis and an in-memory user store seeded with
// demo@example.com / demo-password are used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/internal/config"
	metricsexport "github.com/MrEthical07/sessionauth/metrics/export/prometheus"
	"github.com/MrEthical07/sessionauth/password"
	"github.com/MrEthical07/sessionauth/userstore"
	"github.com/alicebob/miniredis/v2"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	var (
		envFile = flag.String("env-file", "", "env file to read before the environment (default .env)")
		dev     = flag.Bool("dev", false, "use in-process redis and a seeded in-memory user store")
	)
	flag.Parse()

	if *dev {
		_ = os.Setenv("SESSIONAUTH_DEV", "true")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := setupLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("authd stopped")
	}
}

func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "authd").Logger()
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	if cfg.Dev && cfg.SigningKey == "" {
		logger.Warn().Msg("dev mode: using an ephemeral signing key")
	}

	verifier, err := password.NewVerifier(password.DefaultParams())
	if err != nil {
		return fmt.Errorf("password verifier: %w", err)
	}

	rdb, users, cleanup, err := backends(rootCtx, cfg, verifier, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	builder := sessionauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithLogger(logger)
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(sessionauth.NewLoggerSink(logger))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metricsexport.NewCollector(engine, promclient.Labels{"service": "authd"}),
	)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(&server{engine: engine, logger: logger, gatherer: registry}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	logger.Info().Str("addr", ln.Addr().String()).Bool("dev", cfg.Dev).Msg("authd listening")

	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	return nil
}

func backends(ctx context.Context, cfg *config.Config, verifier *password.Verifier, logger zerolog.Logger) (redis.UniversalClient, sessionauth.UserStore, func(), error) {
	if cfg.Dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("miniredis: %w", err)
		}
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})

		users := userstore.NewMemory(verifier)
		if _, err := users.Add("", "demo@example.com", "demo", "member", "demo-password"); err != nil {
			mr.Close()
			return nil, nil, nil, err
		}
		logger.Info().Str("email", "demo@example.com").Msg("dev mode: seeded demo user")

		return rdb, users, func() {
			_ = rdb.Close()
			mr.Close()
		}, nil
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	users, err := userstore.NewPostgres(ctx, cfg.DatabaseURL, verifier)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, nil, err
	}
	return rdb, users, func() {
		users.Close()
		_ = rdb.Close()
	}, nil
}
