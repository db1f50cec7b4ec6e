package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/yourusername/swiftsocket/internal/errors"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Relay  RelayConfig  `mapstructure:"relay"`
	Client ClientConfig `mapstructure:"client"`
	Logs   LogConfig    `mapstructure:"logs"`
}

// ServerConfig holds the relay listener configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelayConfig tunes per-connection behaviour on the relay
type RelayConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// ClientConfig holds the client connection and reconnection settings
type ClientConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`

	// Zero selects the default budget, a negative value disables retries
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Directory  string `mapstructure:"directory"`
	JSONFormat bool   `mapstructure:"json_format"`
}

// Validate checks values the relay and client cannot run without
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return errors.Wrapf(errors.ErrInvalidConfiguration, "server.port %d out of range", c.Server.Port)
	case c.Relay.SendBuffer < 1:
		return errors.Wrap(errors.ErrInvalidConfiguration, "relay.send_buffer must be positive")
	case c.Relay.WriteWait <= 0 || c.Relay.PongWait <= 0:
		return errors.Wrap(errors.ErrInvalidConfiguration, "relay.write_wait and relay.pong_wait must be positive")
	case c.Relay.MaxMessageSize < 1:
		return errors.Wrap(errors.ErrInvalidConfiguration, "relay.max_message_size must be positive")
	case c.Client.ReadTimeout < 0:
		return errors.Wrap(errors.ErrInvalidConfiguration, "client.read_timeout must not be negative")
	case c.Client.BaseDelay <= 0:
		return errors.Wrap(errors.ErrInvalidConfiguration, "client.base_delay must be positive")
	}
	return nil
}

// LoadConfig loads configuration from files and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := newViper(configPath)

	// Try to read config file, but don't fail if it doesn't exist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal(v)
}

// Watch reloads the file at configPath whenever it changes and hands the new
// configuration to onChange. Invalid reloads are reported through onError.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	if configPath == "" {
		return errors.Wrap(errors.ErrInvalidConfiguration, "watch needs an explicit config file")
	}

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshal(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	// Set default configuration
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".swiftsocket"))
		}
	}

	// Read environment variables
	v.SetEnvPrefix("SWIFTSOCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Relay defaults
	v.SetDefault("relay.write_wait", 10*time.Second)
	v.SetDefault("relay.pong_wait", 60*time.Second)
	v.SetDefault("relay.max_message_size", 100<<20)
	v.SetDefault("relay.send_buffer", 256)

	// Client defaults
	v.SetDefault("client.url", "ws://localhost:8080/")
	v.SetDefault("client.username", "")
	v.SetDefault("client.max_attempts", 5)
	v.SetDefault("client.base_delay", 2*time.Second)
	v.SetDefault("client.handshake_timeout", 10*time.Second)
	v.SetDefault("client.read_timeout", 70*time.Second)

	// Logs defaults
	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.directory", "")
	v.SetDefault("logs.json_format", false)
}

// WriteDefaultConfig writes a default configuration file
func WriteDefaultConfig(configPath string) error {
	v := viper.New()

	// Set default configuration
	setDefaults(v)

	// Write the config file
	return v.WriteConfigAs(configPath)
}
