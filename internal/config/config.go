// Package config provides Viper-based configuration loading for the relay server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP/WebSocket listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener. Zero selects an ephemeral port.
	Port int `mapstructure:"port"`
	// ReadBufferSize is the upgrader's per-connection read buffer in bytes.
	ReadBufferSize int `mapstructure:"read_buffer_size"`
	// WriteBufferSize is the upgrader's per-connection write buffer in bytes.
	WriteBufferSize int `mapstructure:"write_buffer_size"`
	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	// WriteTimeout bounds each outbound frame write, including probes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PongWait is how long a connection may stay silent (no frame, no pong)
	// before the transport closes it.
	PongWait time.Duration `mapstructure:"pong_wait"`
	// SendBuffer is the number of outbound frames queued per connection.
	SendBuffer int `mapstructure:"send_buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelayConfig holds the periodic maintenance settings.
type RelayConfig struct {
	// ReapInterval is how often empty rooms are checked for staleness.
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	// StaleRoomAge is the age after which a room with no clients is removed.
	StaleRoomAge time.Duration `mapstructure:"stale_room_age"`
	// ProbeInterval is how often every open connection is pinged.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRelay(c.Relay); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Server.PongWait <= c.Relay.ProbeInterval {
		errs = append(errs, fmt.Sprintf("server.pong_wait (%s) must exceed relay.probe_interval (%s)",
			c.Server.PongWait, c.Relay.ProbeInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", s.Port))
	}
	if s.ReadBufferSize < 0 {
		errs = append(errs, "server.read_buffer_size must not be negative")
	}
	if s.WriteBufferSize < 0 {
		errs = append(errs, "server.write_buffer_size must not be negative")
	}
	if s.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Sprintf("server.max_message_size must be > 0, got %d", s.MaxMessageSize))
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if s.PongWait <= 0 {
		errs = append(errs, "server.pong_wait must be positive")
	}
	if s.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("server.send_buffer must be >= 1, got %d", s.SendBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	var errs []string
	if r.ReapInterval <= 0 {
		errs = append(errs, "relay.reap_interval must be positive")
	}
	if r.StaleRoomAge <= 0 {
		errs = append(errs, "relay.stale_room_age must be positive")
	}
	if r.ProbeInterval <= 0 {
		errs = append(errs, "relay.probe_interval must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path skips the file and uses
// defaults plus environment.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and environment bindings
// applied. RELAY_ prefixed variables override any key; the bare PORT variable
// overrides server.port.
//
// Postcondition: Returns a non-nil *viper.Viper.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Hosting platforms inject the listen port as PORT.
	_ = v.BindEnv("server.port", "RELAY_SERVER_PORT", "PORT")

	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_buffer_size", 4096)
	v.SetDefault("server.write_buffer_size", 4096)
	v.SetDefault("server.max_message_size", 1<<20)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.pong_wait", "75s")
	v.SetDefault("server.send_buffer", 256)

	v.SetDefault("relay.reap_interval", "5m")
	v.SetDefault("relay.stale_room_age", "1h")
	v.SetDefault("relay.probe_interval", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
