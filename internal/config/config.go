package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/idoggk/moveo/internal/room"
	dbconfig "github.com/idoggk/moveo/pkg/database"
)

// Config is the full runtime configuration.
type Config struct {
	Database  *DatabaseConfig
	HTTP      *HTTPConfig
	WebSocket *WebSocketConfig
	Log       *LogConfig
	Room      *RoomConfig
}

type DatabaseConfig struct {
	Path           string
	Timeout        time.Duration // per-request budget for catalog reads
	MaxConnections int
}

type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type WebSocketConfig struct {
	PingInterval    time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	MaxMessageBytes int64
	MessageRate     float64 // inbound frames per second, 0 disables
	MessageBurst    int
}

type LogConfig struct {
	Level       string
	Development bool
}

type RoomConfig struct {
	EvictionPolicy string
}

// DefaultConfig listens on 8000 and allows any browser origin.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/codeblocks.db",
			Timeout:        5 * time.Second,
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		WebSocket: &WebSocketConfig{
			PingInterval:    30 * time.Second,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			SendBuffer:      64,
			MaxMessageBytes: 1 << 20,
			MessageRate:     50,
			MessageBurst:    100,
		},
		Log: &LogConfig{
			Level: "info",
		},
		Room: &RoomConfig{
			EvictionPolicy: string(room.PolicyIdentity),
		},
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP shutdown timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WebSocket send buffer must be positive")
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		return fmt.Errorf("WebSocket max message bytes must be positive")
	}
	if c.WebSocket.MessageRate < 0 {
		return fmt.Errorf("WebSocket message rate cannot be negative")
	}
	if c.WebSocket.MessageRate > 0 && c.WebSocket.MessageBurst <= 0 {
		return fmt.Errorf("WebSocket message burst must be positive when rate limiting")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	if c.Room == nil {
		return fmt.Errorf("room configuration is required")
	}
	if _, err := room.ParsePolicy(c.Room.EvictionPolicy); err != nil {
		return err
	}

	return nil
}

// Addr is the listen address for the HTTP server.
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// StoreConfig maps the database section onto the SQLite layer's settings.
func (d *DatabaseConfig) StoreConfig() *dbconfig.Config {
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = d.Path
	cfg.MaxConnections = d.MaxConnections
	return cfg
}

// Policy returns the parsed eviction policy. Call after Validate.
func (r *RoomConfig) Policy() room.Policy {
	p, _ := room.ParsePolicy(r.EvictionPolicy)
	return p
}

// BuildLogger returns a production or development zap logger at the
// configured level.
func (l *LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// LoadFromEnv applies CODEBLOCKS_* variables over the defaults. PORT is
// honoured for hosting platforms that inject it.
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ConfigFile is the on-disk shape. Durations are strings such as "30s" so the
// same struct decodes JSON and YAML.
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database" yaml:"database"`
	HTTP      *HTTPConfigFile      `json:"http" yaml:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket" yaml:"websocket"`
	Log       *LogConfigFile       `json:"log" yaml:"log"`
	Room      *RoomConfigFile      `json:"room" yaml:"room"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path" yaml:"path"`
	Timeout        string `json:"timeout" yaml:"timeout"`
	MaxConnections int    `json:"max_connections" yaml:"max_connections"`
}

type HTTPConfigFile struct {
	Host            string   `json:"host" yaml:"host"`
	Port            int      `json:"port" yaml:"port"`
	ReadTimeout     string   `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string   `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout string   `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"`
}

type WebSocketConfigFile struct {
	PingInterval    string   `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout     string   `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string   `json:"write_timeout" yaml:"write_timeout"`
	SendBuffer      int      `json:"send_buffer" yaml:"send_buffer"`
	MaxMessageBytes int64    `json:"max_message_bytes" yaml:"max_message_bytes"`
	MessageRate     *float64 `json:"message_rate" yaml:"message_rate"`
	MessageBurst    int      `json:"message_burst" yaml:"message_burst"`
}

type LogConfigFile struct {
	Level       string `json:"level" yaml:"level"`
	Development *bool  `json:"development" yaml:"development"`
}

type RoomConfigFile struct {
	EvictionPolicy string `json:"eviction_policy" yaml:"eviction_policy"`
}

// LoadFromFile reads a JSON or YAML file (chosen by extension) over the
// defaults and validates the result.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// LoadConfigWithPrecedence layers defaults, then environment, then the file
// when path is not empty, and validates the result.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := file.apply(config); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (f *ConfigFile) apply(config *Config) error {
	if db := f.Database; db != nil {
		setString(&config.Database.Path, db.Path)
		setInt(&config.Database.MaxConnections, db.MaxConnections)
		if err := setDuration(&config.Database.Timeout, db.Timeout, "database.timeout"); err != nil {
			return err
		}
	}

	if h := f.HTTP; h != nil {
		setString(&config.HTTP.Host, h.Host)
		setInt(&config.HTTP.Port, h.Port)
		if len(h.AllowedOrigins) > 0 {
			config.HTTP.AllowedOrigins = h.AllowedOrigins
		}
		for _, d := range []struct {
			dst  *time.Duration
			raw  string
			name string
		}{
			{&config.HTTP.ReadTimeout, h.ReadTimeout, "http.read_timeout"},
			{&config.HTTP.WriteTimeout, h.WriteTimeout, "http.write_timeout"},
			{&config.HTTP.ShutdownTimeout, h.ShutdownTimeout, "http.shutdown_timeout"},
		} {
			if err := setDuration(d.dst, d.raw, d.name); err != nil {
				return err
			}
		}
	}

	if ws := f.WebSocket; ws != nil {
		setInt(&config.WebSocket.SendBuffer, ws.SendBuffer)
		setInt(&config.WebSocket.MessageBurst, ws.MessageBurst)
		if ws.MaxMessageBytes > 0 {
			config.WebSocket.MaxMessageBytes = ws.MaxMessageBytes
		}
		if ws.MessageRate != nil {
			config.WebSocket.MessageRate = *ws.MessageRate
		}
		for _, d := range []struct {
			dst  *time.Duration
			raw  string
			name string
		}{
			{&config.WebSocket.PingInterval, ws.PingInterval, "websocket.ping_interval"},
			{&config.WebSocket.ReadTimeout, ws.ReadTimeout, "websocket.read_timeout"},
			{&config.WebSocket.WriteTimeout, ws.WriteTimeout, "websocket.write_timeout"},
		} {
			if err := setDuration(d.dst, d.raw, d.name); err != nil {
				return err
			}
		}
	}

	if l := f.Log; l != nil {
		setString(&config.Log.Level, l.Level)
		if l.Development != nil {
			config.Log.Development = *l.Development
		}
	}

	if r := f.Room; r != nil {
		setString(&config.Room.EvictionPolicy, r.EvictionPolicy)
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, raw, name string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
