// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// BrowserConfig holds settings for the headless browser that drives the external form.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Platform        string         `mapstructure:"platform" yaml:"platform"`
	Languages       []string       `mapstructure:"languages" yaml:"languages"`
	PluginCount     int            `mapstructure:"plugin_count" yaml:"plugin_count"`
	Timezone        string         `mapstructure:"timezone" yaml:"timezone"`
	Locale          string         `mapstructure:"locale" yaml:"locale"`
	// NavigationTimeout bounds the initial load of the form page.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// DefaultTimeout bounds any browser operation that has no tighter step timeout.
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
}

// ServerConfig configures the HTTP request layer.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "nafauto")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1920, "height": 1080})
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.platform", "Win32")
	v.SetDefault("browser.languages", []string{"pt-BR", "pt", "en-US", "en"})
	v.SetDefault("browser.plugin_count", 5)
	v.SetDefault("browser.timezone", "America/Fortaleza")
	v.SetDefault("browser.locale", "pt-BR")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.default_timeout", "2m")

	// -- Automation --
	setAutomationDefaults(v)

	// -- Server --
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The connection string carries credentials; keep it out of config files.
	if err := v.BindEnv("database.url", "NAFAUTO_DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("error binding database url: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.Browser.DefaultTimeout <= 0 {
		return fmt.Errorf("browser.default_timeout must be a positive duration")
	}
	if c.Browser.PluginCount < 0 {
		return fmt.Errorf("browser.plugin_count must not be negative")
	}
	if err := c.Automation.Validate(); err != nil {
		return fmt.Errorf("automation configuration invalid: %w", err)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}
