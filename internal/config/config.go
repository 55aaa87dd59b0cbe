package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
}

// ServerConfig holds settings for the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the host:port pair the server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" json:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error string `mapstructure:"error" json:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// BrowserConfig holds settings for the headless browser engine.
type BrowserConfig struct {
	Headless        bool   `mapstructure:"headless"`
	ExecPath        string `mapstructure:"exec_path"`
	WindowWidth     int    `mapstructure:"window_width"`
	WindowHeight    int    `mapstructure:"window_height"`
	IgnoreTLSErrors bool   `mapstructure:"ignore_tls_errors"`

	// NavTimeout bounds a single navigation, SettleTimeout bounds the
	// post-navigation wait for the document to become ready, and
	// InteractionTimeout bounds each form/element interaction.
	NavTimeout         time.Duration `mapstructure:"nav_timeout"`
	SettleTimeout      time.Duration `mapstructure:"settle_timeout"`
	InteractionTimeout time.Duration `mapstructure:"interaction_timeout"`
}

// UpstreamConfig holds settings for the out-of-band HTTP client used by
// the hybrid JSON strategy.
type UpstreamConfig struct {
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
}

// SetDefaults registers default values so the service can run with a
// minimal (or absent) config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "cfresolver")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.nav_timeout", 45*time.Second)
	v.SetDefault("browser.settle_timeout", 10*time.Second)
	v.SetDefault("browser.interaction_timeout", 10*time.Second)

	v.SetDefault("upstream.timeout", 30*time.Second)
}

// Load unmarshals and validates the configuration from Viper.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values that would prevent the
// service from operating correctly.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("invalid browser viewport: %dx%d", c.Browser.WindowWidth, c.Browser.WindowHeight)
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser nav_timeout must be positive")
	}
	if c.Browser.SettleTimeout <= 0 {
		return fmt.Errorf("browser settle_timeout must be positive")
	}
	if c.Browser.InteractionTimeout <= 0 {
		return fmt.Errorf("browser interaction_timeout must be positive")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive")
	}
	return nil
}
