package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"signal-tracker/internal/format"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewManagerDefaults(t *testing.T) {
	m, err := NewManager(writeConfig(t, "storage:\n    driver: memory\n"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	cfg := m.Get()

	if cfg.Tracking.WindowHours != 72 {
		t.Errorf("expected 72h window, got %d", cfg.Tracking.WindowHours)
	}
	if len(cfg.Tracking.AlertThresholds) != 4 || cfg.Tracking.AlertThresholds[0] != 2 {
		t.Errorf("unexpected thresholds %v", cfg.Tracking.AlertThresholds)
	}
	if cfg.Oracle.BaseURL == "" || cfg.Server.Port != 8080 {
		t.Errorf("defaults not applied: %+v %+v", cfg.Oracle, cfg.Server)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("expected memory driver, got %q", cfg.Storage.Driver)
	}

	p := cfg.Policy()
	if p.Window != 72*time.Hour || p.Pacing != 500*time.Millisecond || p.SweepInterval != 10*time.Second {
		t.Errorf("unexpected policy %+v", p)
	}
	if len(p.Buckets) != 5 {
		t.Errorf("expected stock buckets, got %d", len(p.Buckets))
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := &Config{
		Tracking: TrackingConfig{
			WindowHours:     24,
			AlertThresholds: []float64{1.5, 4},
			HotGainPercent:  35,
		},
		Polling: PollingConfig{
			Buckets: []BucketConfig{
				{Name: "hot", MaxAgeMinutes: 30, PeriodSeconds: 15},
				{Name: "cold", PeriodSeconds: 600},
			},
			HotBucket: "hot",
			PacingMs:  100,
		},
	}
	m := &Manager{config: cfg}

	p := m.Get().Policy()
	if p.Window != 24*time.Hour || p.HotGainPct != 35 || p.HotBucket != "hot" {
		t.Errorf("unexpected policy %+v", p)
	}
	if len(p.Thresholds) != 2 || p.Thresholds[1] != 4 {
		t.Errorf("unexpected thresholds %v", p.Thresholds)
	}
	if b := p.BucketFor(2*time.Hour, 0); b.Name != "cold" || b.Period != 10*time.Minute {
		t.Errorf("expected cold bucket, got %+v", b)
	}
	if b := p.BucketFor(2*time.Hour, 50); b.Name != "hot" {
		t.Errorf("expected hot bucket for momentum, got %+v", b)
	}
	// Checkpoints were not configured and keep the stock values
	if len(p.Checkpoints) != 5 {
		t.Errorf("expected stock checkpoints, got %v", p.Checkpoints)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]string{
		"threshold": "storage:\n    driver: memory\ntracking:\n    alert_thresholds: [0.5, 2]\n",
		"driver":    "storage:\n    driver: postgres\n",
		"sheets":    "storage:\n    driver: sheets\n",
		"channel":   "storage:\n    driver: memory\nformats:\n    channels:\n        alpha: compact\n",
	}
	for name, content := range cases {
		if _, err := NewManager(writeConfig(t, content)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestApplyFormats(t *testing.T) {
	m, err := NewManager(writeConfig(t, `
storage:
    driver: memory
formats:
    default: detailed
    channels:
        "-1001": compact
        "-1002": whales
    custom:
        - name: whales
          oracle_name: true
          patterns:
              market_cap: 'MC\s*([\d.]+)\s*([KMB]?)'
              address: 'CA\s+([A-Za-z0-9]+)'
`))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	reg := format.NewRegistry()
	if err := m.Get().ApplyFormats(reg); err != nil {
		t.Fatalf("ApplyFormats: %v", err)
	}
	if got := reg.Resolve(-1001).Name; got != format.Compact {
		t.Errorf("channel -1001 resolved to %s", got)
	}
	whales := reg.Resolve(-1002)
	if whales.Name != "whales" || !whales.OracleName {
		t.Errorf("custom format not registered: %+v", whales)
	}
	if got := reg.Resolve(-9).Name; got != format.Detailed {
		t.Errorf("unassigned channel resolved to %s", got)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TRACKER_STORAGE_DRIVER", "memory")
	t.Setenv("TRACKER_SERVER_PORT", "9191")

	m, err := NewManager(writeConfig(t, "storage:\n    driver: sqlite\n"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if m.Get().Storage.Driver != "memory" || m.Get().Server.Port != 9191 {
		t.Errorf("env override ignored: %+v %+v", m.Get().Storage, m.Get().Server)
	}
}

func TestReloadNotifiesAndRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "storage:\n    driver: memory\ntracking:\n    window_hours: 48\n")
	// Built without the file watcher so only explicit reloads run
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	cfg, err := decode(v)
	if err != nil {
		t.Fatal(err)
	}
	m := &Manager{config: cfg, viper: v}

	var got *Config
	m.SetOnChange(func(c *Config) { got = c })

	if err := os.WriteFile(path, []byte("storage:\n    driver: memory\ntracking:\n    window_hours: 12\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.viper.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	m.reload()
	if got == nil || got.Tracking.WindowHours != 12 || m.Get().Tracking.WindowHours != 12 {
		t.Fatalf("reload not applied: %+v", got)
	}

	got = nil
	if err := os.WriteFile(path, []byte("storage:\n    driver: nope\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.viper.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	m.reload()
	if got != nil || m.Get().Storage.Driver != "memory" {
		t.Errorf("invalid config should be rejected, have %+v", m.Get().Storage)
	}
}

func TestGetTelegramToken(t *testing.T) {
	t.Setenv("MY_BOT_TOKEN", "123:abc")
	m := &Manager{config: &Config{Telegram: TelegramConfig{TokenEnv: "MY_BOT_TOKEN"}}}
	if got := m.GetTelegramToken(); got != "123:abc" {
		t.Errorf("expected token from env, got %q", got)
	}
}
