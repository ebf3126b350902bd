// CSP Report Relay
//
// This is the main entry point for the Content-Security-Policy report relay.
// It accepts browser violation reports, tags them with the reporting
// cluster's metadata and forwards them to Mixpanel.
//
// Usage:
//
//	MIXPANEL_PROD_SDK_KEY=... MIXPANEL_DEV_SDK_KEY=... go run ./cmd/api
//
// Environment Variables:
//   - LISTEN_ADDR: Address to listen on (default: ":8080")
//   - LOG_LEVEL: zerolog level (default: "info")
//   - LOG_FORMAT: "json" or "console" (default: "json")
//   - MIXPANEL_DEV_SDK_KEY, MIXPANEL_PROD_SDK_KEY: fallback project keys
//   - MIXPANEL_API_HOST: Mixpanel API host override
//
// A .env file in the working directory is loaded first if present.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cspreport/internal/cluster"
	"cspreport/internal/config"
	"cspreport/internal/credential"
	"cspreport/internal/forward"
	"cspreport/internal/ingest"
	"cspreport/internal/metrics"
	"cspreport/internal/server"
	"cspreport/internal/status"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	setupLogging(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	cache := cluster.NewCache()
	resolver := cluster.NewResolver(cache,
		cluster.WithHTTPClient(&http.Client{}),
		cluster.WithTimeout(cfg.ClusterLookupTimeout),
		cluster.WithMetrics(m),
	)

	if cfg.DevSDKKey == "" || cfg.ProdSDKKey == "" {
		log.Warn().
			Bool("dev_key_set", cfg.DevSDKKey != "").
			Bool("prod_key_set", cfg.ProdSDKKey != "").
			Msg("Fallback Mixpanel keys incomplete; unresolved reports may fail to forward")
	}
	selector := credential.Selector{DevKey: cfg.DevSDKKey, ProdKey: cfg.ProdSDKKey}

	tracker := forward.NewMixpanelTracker(&http.Client{}, cfg.MixpanelAPIHost)
	forwarder := forward.New(tracker, cfg.ForwardTimeout, m)

	reports := ingest.NewHandler(resolver, selector, forwarder, m, cfg.MaxBodySize)
	health := status.NewHandler(cache)

	srv := server.New(cfg, reports, health, m, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "csp-report").Logger()
	}
	zerolog.DefaultContextLogger = &log.Logger
}
