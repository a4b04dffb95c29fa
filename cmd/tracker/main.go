package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"signal-tracker/internal/config"
	"signal-tracker/internal/correlation"
	"signal-tracker/internal/format"
	"signal-tracker/internal/health"
	"signal-tracker/internal/ingest"
	"signal-tracker/internal/oracle"
	signalPkg "signal-tracker/internal/signal"
	"signal-tracker/internal/telegram"
	"signal-tracker/internal/tracker"
	"signal-tracker/internal/websocket"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgMgr.Get()
	setupLogger(cfg.Log)
	log.Info().Str("config", *configPath).Msg("🚀 signal tracker starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := cfg.OpenStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open store")
	}
	defer store.Close()

	quotes := oracle.NewClient(cfg.Oracle.BaseURL, cfg.OracleTimeout())

	formats := format.NewRegistry()
	if err := cfg.ApplyFormats(formats); err != nil {
		log.Fatal().Err(err).Msg("invalid format configuration")
	}

	policy := cfg.Policy()
	parser := signalPkg.NewParser(quotes, log.Logger, cfg.OracleTimeout())
	engine := correlation.New(store, policy.Thresholds, log.Logger)
	dispatcher := ingest.NewDispatcher(formats, parser, engine, store, log.Logger)

	scheduler := tracker.New(store, quotes, policy, log.Logger)
	scheduler.SetLookupTimeout(cfg.OracleTimeout())

	cfgMgr.SetOnChange(func(c *config.Config) {
		scheduler.SetPolicy(c.Policy())
		engine.SetThresholds(c.Policy().Thresholds)
		if err := c.ApplyFormats(formats); err != nil {
			log.Error().Err(err).Msg("format reload failed")
		}
		log.Info().Msg("configuration applied")
	})

	probes := []health.Probe{
		health.PingProbe("store", store),
		health.PingProbe("oracle", quotes),
	}

	errCh := make(chan error, 4)

	if cfg.Telegram.Enabled {
		listener, err := telegram.NewListener(cfgMgr.GetTelegramToken(), cfg.Telegram.AllowedChannels, dispatcher)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram setup failed")
		}
		go func() {
			if err := listener.Run(ctx); err != nil {
				errCh <- fmt.Errorf("telegram: %w", err)
			}
		}()
	}

	if cfg.Relay.Enabled {
		relay := websocket.NewRelay(cfg.Relay.URL, dispatcher,
			time.Duration(cfg.Relay.ReconnectDelayMs)*time.Millisecond,
			time.Duration(cfg.Relay.PingIntervalMs)*time.Millisecond)
		probes = append(probes, health.PingProbe("relay", relay))
		go relay.Run(ctx)
	}

	checker := health.NewChecker(probes...)
	startupChecks(ctx, checker)
	checker.Start(ctx)

	var server *ingest.Server
	if cfg.Server.Enabled {
		server = ingest.NewServer(ingest.ServerConfig{
			Host:      cfg.Server.Host,
			Port:      cfg.Server.Port,
			RateLimit: cfg.Server.RateLimit,
		}, dispatcher, store, checker)
		go func() {
			if err := server.Start(); err != nil {
				errCh <- fmt.Errorf("ingest server: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-quit:
		log.Info().Str("signal", s.String()).Msg("shutting down...")
	case err := <-errCh:
		log.Error().Err(err).Msg("component failed, shutting down")
	}

	cancel()
	if server != nil {
		if err := server.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
	}
	select {
	case <-done:
	case <-time.After(45 * time.Second):
		log.Warn().Msg("scheduler did not stop in time")
	}

	sweeps, polls, failures, stopped, _ := scheduler.Metrics().Stats()
	log.Info().
		Int64("sweeps", sweeps).
		Int64("polls", polls).
		Int64("failures", failures).
		Int64("stopped", stopped).
		Msg("goodbye 👋")
}

// startupChecks logs the state of every dependency once before serving
func startupChecks(ctx context.Context, checker *health.Checker) {
	for _, st := range checker.Check(ctx) {
		if st.Healthy {
			log.Info().Str("check", st.Name).Dur("latency", st.Latency).Msg("✅ startup check passed")
			continue
		}
		log.Warn().Str("check", st.Name).Str("error", st.Error).Msg("⚠️ startup check failed")
	}
}

func setupLogger(lc config.LogConfig) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	if lc.File != "" {
		if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
		} else {
			out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
				Filename:   lc.File,
				MaxSize:    lc.MaxSizeMB,
				MaxBackups: lc.MaxBackups,
				MaxAge:     lc.MaxAgeDays,
				Compress:   true,
			})
		}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
