// Package config loads the local-server configuration from file,
// environment and defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file base name searched for without an
	// explicit --config path.
	FileName  = "local-server"
	EnvPrefix = "LOCAL_SERVER"
)

// Config holds everything the serve command needs.
type Config struct {
	Network           string        `mapstructure:"network" toml:"network" yaml:"network"`
	Addr              string        `mapstructure:"addr" toml:"addr" yaml:"addr"`
	ReadHeaderTimeout string        `mapstructure:"read_header_timeout" toml:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       string        `mapstructure:"read_timeout" toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      string        `mapstructure:"write_timeout" toml:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       string        `mapstructure:"idle_timeout" toml:"idle_timeout" yaml:"idle_timeout"`
	MaxBodyBytes      int           `mapstructure:"max_body_bytes" toml:"max_body_bytes" yaml:"max_body_bytes"`
	Log               LogConfig     `mapstructure:"log" toml:"log" yaml:"log"`
	Static            []StaticMount `mapstructure:"static" toml:"static" yaml:"static"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level" yaml:"level"`
	Format string `mapstructure:"format" toml:"format" yaml:"format"`
}

// StaticMount serves the directory Dir below the URL prefix Prefix.
type StaticMount struct {
	Prefix string `mapstructure:"prefix" toml:"prefix" yaml:"prefix"`
	Dir    string `mapstructure:"dir" toml:"dir" yaml:"dir"`
}

// Timeouts are the parsed duration settings.
type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Network:           "tcp",
		Addr:              "127.0.0.1:15000",
		ReadHeaderTimeout: "5s",
		ReadTimeout:       "30s",
		WriteTimeout:      "30s",
		IdleTimeout:       "120s",
		MaxBodyBytes:      2 << 20,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration. With an empty path the file is optional and
// searched for in the working directory and ~/.config/local-server.
// Environment variables (LOCAL_SERVER_ADDR, LOCAL_SERVER_LOG_LEVEL, ...)
// override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("network", def.Network)
	v.SetDefault("addr", def.Addr)
	v.SetDefault("read_header_timeout", def.ReadHeaderTimeout)
	v.SetDefault("read_timeout", def.ReadTimeout)
	v.SetDefault("write_timeout", def.WriteTimeout)
	v.SetDefault("idle_timeout", def.IdleTimeout)
	v.SetDefault("max_body_bytes", def.MaxBodyBytes)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return &ConfigError{Field: "addr", Message: "must not be empty"}
	}
	switch c.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return &ConfigError{Field: "network", Message: fmt.Sprintf("unsupported network %q", c.Network)}
	}
	if _, err := c.Timeouts(); err != nil {
		return err
	}
	for i, m := range c.Static {
		if !strings.HasPrefix(m.Prefix, "/") {
			return &ConfigError{Field: fmt.Sprintf("static[%d].prefix", i), Message: "must start with /"}
		}
		if m.Dir == "" {
			return &ConfigError{Field: fmt.Sprintf("static[%d].dir", i), Message: "must not be empty"}
		}
	}
	return nil
}

// Timeouts parses the duration fields. Empty values mean no timeout.
func (c *Config) Timeouts() (Timeouts, error) {
	var t Timeouts
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"read_header_timeout", c.ReadHeaderTimeout, &t.ReadHeader},
		{"read_timeout", c.ReadTimeout, &t.Read},
		{"write_timeout", c.WriteTimeout, &t.Write},
		{"idle_timeout", c.IdleTimeout, &t.Idle},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil || d < 0 {
			return Timeouts{}, &ConfigError{Field: f.name, Message: fmt.Sprintf("invalid duration %q", f.raw)}
		}
		*f.dst = d
	}
	return t, nil
}

// WriteTOML encodes c as a TOML document.
func (c *Config) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// YAML renders c for display.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseStaticMount parses a "prefix=dir" flag value.
func ParseStaticMount(s string) (StaticMount, error) {
	prefix, dir, ok := strings.Cut(s, "=")
	if !ok || prefix == "" || dir == "" {
		return StaticMount{}, fmt.Errorf("invalid static mount %q, want prefix=dir", s)
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return StaticMount{Prefix: prefix, Dir: dir}, nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
