package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"signal-tracker/internal/format"
	"signal-tracker/internal/tracker"
)

// Config holds all tracker configuration
type Config struct {
	Tracking TrackingConfig `mapstructure:"tracking"`
	Polling  PollingConfig  `mapstructure:"polling"`
	Formats  FormatsConfig  `mapstructure:"formats"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Log      LogConfig      `mapstructure:"log"`
	TUI      TUIConfig      `mapstructure:"tui"`
}

type TrackingConfig struct {
	WindowHours       int       `mapstructure:"window_hours"`
	CheckpointMinutes []int     `mapstructure:"checkpoint_minutes"`
	AlertThresholds   []float64 `mapstructure:"alert_thresholds"`
	PumpMilestones    []int     `mapstructure:"pump_milestones"`
	HotGainPercent    float64   `mapstructure:"hot_gain_percent"`
}

type BucketConfig struct {
	Name          string `mapstructure:"name"`
	MaxAgeMinutes int    `mapstructure:"max_age_minutes"` // 0 = unbounded
	PeriodSeconds int    `mapstructure:"period_seconds"`
}

type PollingConfig struct {
	Buckets              []BucketConfig `mapstructure:"buckets"`
	HotBucket            string         `mapstructure:"hot_bucket"`
	PacingMs             int            `mapstructure:"pacing_ms"`
	SweepIntervalSeconds int            `mapstructure:"sweep_interval_seconds"`
}

type FormatsConfig struct {
	Default  string            `mapstructure:"default"`
	Channels map[string]string `mapstructure:"channels"` // channel id -> format name
	Custom   []format.Spec     `mapstructure:"custom"`
}

type OracleConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type SheetsConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	Sheet           string `mapstructure:"sheet"`
}

type StorageConfig struct {
	Driver     string       `mapstructure:"driver"` // sqlite, sheets or memory
	SQLitePath string       `mapstructure:"sqlite_path"`
	Sheets     SheetsConfig `mapstructure:"sheets"`
}

type ServerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	RateLimit int    `mapstructure:"rate_limit"` // requests per second per client
}

type TelegramConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	TokenEnv        string  `mapstructure:"token_env"`
	AllowedChannels []int64 `mapstructure:"allowed_channels"` // empty = all
}

type RelayConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	URL              string `mapstructure:"url"`
	ReconnectDelayMs int    `mapstructure:"reconnect_delay_ms"`
	PingIntervalMs   int    `mapstructure:"ping_interval_ms"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type TUIConfig struct {
	RefreshRateMs int `mapstructure:"refresh_rate_ms"`
	Rows          int `mapstructure:"rows"`
}

// Manager handles config loading and hot-reload
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tracking.window_hours", 72)
	v.SetDefault("tracking.checkpoint_minutes", []int{5, 10, 15, 30, 60})
	v.SetDefault("tracking.alert_thresholds", []float64{2, 3, 5, 10})
	v.SetDefault("tracking.pump_milestones", []int{50, 100})
	v.SetDefault("tracking.hot_gain_percent", 20)
	v.SetDefault("polling.hot_bucket", "frequent")
	v.SetDefault("polling.pacing_ms", 500)
	v.SetDefault("polling.sweep_interval_seconds", 10)
	v.SetDefault("formats.default", format.Standard)
	v.SetDefault("oracle.base_url", "https://api.dexscreener.com/latest/dex/tokens")
	v.SetDefault("oracle.timeout_seconds", 10)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "./data/signals.db")
	v.SetDefault("storage.sheets.sheet", "Signals")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("telegram.token_env", "TELEGRAM_BOT_TOKEN")
	v.SetDefault("relay.reconnect_delay_ms", 1000)
	v.SetDefault("relay.ping_interval_ms", 30000)
	v.SetDefault("log.file", "./logs/tracker.log")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("tui.refresh_rate_ms", 1000)
	v.SetDefault("tui.rows", 30)
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// NewManager creates a new config manager
func NewManager(configPath string) (*Manager, error) {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config: cfg,
		viper:  v,
	}

	// Watch for config changes
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current config (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetOnChange registers a callback for config changes
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := decode(m.viper)
	if err != nil {
		log.Error().Err(err).Msg("rejected config on reload, keeping previous")
		return
	}

	m.config = cfg
	if m.onChange != nil {
		m.onChange(cfg)
	}
}

// GetTelegramToken loads the bot token from environment
func (m *Manager) GetTelegramToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Telegram.TokenEnv)
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Tracking.WindowHours < 0 {
		errs = append(errs, fmt.Errorf("tracking.window_hours must not be negative"))
	}
	for _, t := range c.Tracking.AlertThresholds {
		if t <= 1 {
			errs = append(errs, fmt.Errorf("tracking.alert_thresholds: %g is not above 1x", t))
		}
	}
	for _, m := range c.Tracking.CheckpointMinutes {
		if m <= 0 {
			errs = append(errs, fmt.Errorf("tracking.checkpoint_minutes: %d is not positive", m))
		}
	}
	for _, b := range c.Polling.Buckets {
		if b.Name == "" || b.PeriodSeconds <= 0 {
			errs = append(errs, fmt.Errorf("polling.buckets: %q needs a name and a positive period", b.Name))
		}
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	case "sheets":
		if c.Storage.Sheets.SpreadsheetID == "" {
			errs = append(errs, errors.New("storage.sheets.spreadsheet_id is required for the sheets driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	for id := range c.Formats.Channels {
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("formats.channels: %q is not a channel id", id))
		}
	}
	return errors.Join(errs...)
}

// Policy converts the tracking and polling sections into a scheduler
// policy. Unset values keep the stock defaults.
func (c *Config) Policy() tracker.Policy {
	p := tracker.DefaultPolicy()
	t := c.Tracking
	if t.WindowHours > 0 {
		p.Window = time.Duration(t.WindowHours) * time.Hour
	}
	if len(t.CheckpointMinutes) > 0 {
		p.Checkpoints = append([]int(nil), t.CheckpointMinutes...)
	}
	if len(t.AlertThresholds) > 0 {
		p.Thresholds = append([]float64(nil), t.AlertThresholds...)
	}
	if len(t.PumpMilestones) > 0 {
		p.Milestones = append([]int(nil), t.PumpMilestones...)
	}
	if t.HotGainPercent > 0 {
		p.HotGainPct = t.HotGainPercent
	}

	pc := c.Polling
	if len(pc.Buckets) > 0 {
		p.Buckets = make([]tracker.Bucket, 0, len(pc.Buckets))
		for _, b := range pc.Buckets {
			p.Buckets = append(p.Buckets, tracker.Bucket{
				Name:   b.Name,
				MaxAge: time.Duration(b.MaxAgeMinutes) * time.Minute,
				Period: time.Duration(b.PeriodSeconds) * time.Second,
			})
		}
	}
	if pc.HotBucket != "" {
		p.HotBucket = pc.HotBucket
	}
	if pc.PacingMs >= 0 {
		p.Pacing = time.Duration(pc.PacingMs) * time.Millisecond
	}
	if pc.SweepIntervalSeconds > 0 {
		p.SweepInterval = time.Duration(pc.SweepIntervalSeconds) * time.Second
	}
	return p
}

// ChannelFormats returns the channel id to format name assignments
func (c *Config) ChannelFormats() map[int64]string {
	out := make(map[int64]string, len(c.Formats.Channels))
	for id, name := range c.Formats.Channels {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		out[n] = name
	}
	return out
}

// ApplyFormats registers custom layouts and replaces the channel
// bindings of r. Unknown layout names are reported and fall back to the
// default at resolve time.
func (c *Config) ApplyFormats(r *format.Registry) error {
	var errs []error
	for _, spec := range c.Formats.Custom {
		d, err := format.Compile(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.Register(d)
	}

	channels := c.ChannelFormats()
	for id, name := range channels {
		if _, ok := r.Get(name); !ok {
			errs = append(errs, fmt.Errorf("formats.channels: channel %d uses unknown format %q", id, name))
		}
	}
	r.SetAssignments(channels)

	if c.Formats.Default != "" {
		if _, ok := r.Get(c.Formats.Default); !ok {
			errs = append(errs, fmt.Errorf("formats.default: unknown format %q", c.Formats.Default))
		}
		r.SetDefault(c.Formats.Default)
	}
	return errors.Join(errs...)
}

// OracleTimeout returns the per-request oracle timeout
func (c *Config) OracleTimeout() time.Duration {
	if c.Oracle.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}
