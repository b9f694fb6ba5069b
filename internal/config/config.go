// Package config loads gateway settings from defaults, an optional YAML file,
// a .env file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level structure of smartpulse.yaml.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Stream     StreamConfig     `yaml:"stream"`
	Window     WindowConfig     `yaml:"window"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Journal    JournalConfig    `yaml:"journal"`
	Redis      RedisConfig      `yaml:"redis"`

	// EnvFile is the .env file Load read, or empty when there was none.
	EnvFile string `yaml:"-"`
}

// BackendConfig points at the external REST backend.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StreamConfig controls the pulse feed connection.
type StreamConfig struct {
	Transport         string        `yaml:"transport"` // stomp | mqtt | nats | demo
	URL               string        `yaml:"url"`
	Topic             string        `yaml:"topic"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	HeartbeatIncoming time.Duration `yaml:"heartbeat_incoming"`
	HeartbeatOutgoing time.Duration `yaml:"heartbeat_outgoing"`
}

// WindowConfig sizes the rolling metrics window.
type WindowConfig struct {
	Capacity int `yaml:"capacity"`
}

// ThresholdsConfig holds fallback bounds used when the backend has none.
type ThresholdsConfig struct {
	DefaultMin  int `yaml:"default_min"`
	DefaultMax  int `yaml:"default_max"`
	WarningBand int `yaml:"warning_band"` // 0 disables the near-threshold warning level
}

// RefreshConfig sets the polling intervals of the per-screen refresher.
type RefreshConfig struct {
	Notifications time.Duration `yaml:"notifications"`
	Roster        time.Duration `yaml:"roster"`
}

// ServerConfig configures the dashboard gateway.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// JournalConfig locates the local sqlite session journal. Empty disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig locates the live snapshot cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			Transport:         "stomp",
			URL:               "ws://localhost:8080/ws-cardiac/websocket",
			Topic:             "/topic/pulse",
			ReconnectDelay:    5 * time.Second,
			HeartbeatIncoming: 4 * time.Second,
			HeartbeatOutgoing: 4 * time.Second,
		},
		Window: WindowConfig{Capacity: 60},
		Thresholds: ThresholdsConfig{
			DefaultMin: 60,
			DefaultMax: 100,
		},
		Refresh: RefreshConfig{
			Notifications: 30 * time.Second,
			Roster:        2 * time.Second,
		},
		Server: ServerConfig{
			Port:      8420,
			StaticDir: "./web/dist",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Journal: JournalConfig{Path: "smartpulse.db"},
		Redis:   RedisConfig{TTL: 30 * time.Second},
	}
}

const envFile = ".env"

// Load builds the configuration. path may be empty, in which case only
// defaults, .env and the environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	switch err := godotenv.Load(envFile); {
	case err == nil:
		cfg.EnvFile = envFile
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// Reload re-reads the YAML file on top of the defaults and environment.
func Reload(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Backend.BaseURL = getEnv("SMARTPULSE_API_URL", c.Backend.BaseURL)
	c.Backend.Timeout = getDuration("SMARTPULSE_API_TIMEOUT", c.Backend.Timeout)

	c.Stream.Transport = getEnv("SMARTPULSE_STREAM_TRANSPORT", c.Stream.Transport)
	c.Stream.URL = getEnv("SMARTPULSE_STREAM_URL", c.Stream.URL)
	c.Stream.Topic = getEnv("SMARTPULSE_STREAM_TOPIC", c.Stream.Topic)
	c.Stream.ReconnectDelay = getDuration("SMARTPULSE_RECONNECT_DELAY", c.Stream.ReconnectDelay)
	c.Stream.HeartbeatIncoming = getDuration("SMARTPULSE_HEARTBEAT_INCOMING", c.Stream.HeartbeatIncoming)
	c.Stream.HeartbeatOutgoing = getDuration("SMARTPULSE_HEARTBEAT_OUTGOING", c.Stream.HeartbeatOutgoing)

	c.Window.Capacity = getInt("SMARTPULSE_WINDOW_CAPACITY", c.Window.Capacity)
	c.Thresholds.DefaultMin = getInt("SMARTPULSE_DEFAULT_MIN_BPM", c.Thresholds.DefaultMin)
	c.Thresholds.DefaultMax = getInt("SMARTPULSE_DEFAULT_MAX_BPM", c.Thresholds.DefaultMax)
	c.Thresholds.WarningBand = getInt("SMARTPULSE_WARNING_BAND", c.Thresholds.WarningBand)

	c.Refresh.Notifications = getDuration("SMARTPULSE_REFRESH_NOTIFICATIONS", c.Refresh.Notifications)
	c.Refresh.Roster = getDuration("SMARTPULSE_REFRESH_ROSTER", c.Refresh.Roster)

	c.Server.Port = getInt("PORT", c.Server.Port)
	c.Server.StaticDir = getEnv("STATIC_DIR", c.Server.StaticDir)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	c.Journal.Path = getEnv("SMARTPULSE_JOURNAL_PATH", c.Journal.Path)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getInt("REDIS_DB", c.Redis.DB)
	c.Redis.TTL = getDuration("REDIS_TTL", c.Redis.TTL)
}

// Validate checks values that would make the gateway misbehave.
func (c *Config) Validate() error {
	switch c.Stream.Transport {
	case "stomp", "mqtt", "nats", "demo":
	default:
		return fmt.Errorf("unknown stream transport %q", c.Stream.Transport)
	}
	if c.Stream.ReconnectDelay <= 0 {
		return fmt.Errorf("stream reconnect delay must be positive")
	}
	if c.Window.Capacity <= 0 {
		return fmt.Errorf("window capacity must be positive")
	}
	if c.Thresholds.DefaultMin > c.Thresholds.DefaultMax {
		return fmt.Errorf("default min threshold %d above max %d", c.Thresholds.DefaultMin, c.Thresholds.DefaultMax)
	}
	if c.Thresholds.WarningBand < 0 {
		return fmt.Errorf("warning band must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}
