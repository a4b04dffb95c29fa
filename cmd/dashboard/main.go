package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"signal-tracker/internal/config"
	"signal-tracker/internal/tui"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()
	_ = godotenv.Load()

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgMgr.Get()

	// Logs go to the file so they don't spam the TUI
	log.Logger = zerolog.Nop()
	if cfg.Log.File != "" {
		file := filepath.Join(filepath.Dir(cfg.Log.File), "dashboard.log")
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err == nil {
			log.Logger = zerolog.New(&lumberjack.Logger{
				Filename:   file,
				MaxSize:    cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAge:     cfg.Log.MaxAgeDays,
			}).With().Timestamp().Logger()
		}
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if cfg.Storage.Driver == "memory" {
		fmt.Fprintln(os.Stderr, "the memory store lives inside the tracker process; use the sqlite or sheets driver")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := cfg.OpenStore(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	model := tui.NewModel(store, cfg.TUI.Rows, time.Duration(cfg.TUI.RefreshRateMs)*time.Millisecond)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Error().Err(err).Msg("dashboard exited with error")
		fmt.Fprintf(os.Stderr, "dashboard: %v\n", err)
		os.Exit(1)
	}
}
