// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	OAuth      OAuthConfig      `mapstructure:"oauth" yaml:"oauth"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig tunes the HTTP front door.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// MaxSessions bounds the number of concurrently running browser
	// sessions. Each request owns one full browser instance, so this is
	// effectively a memory/CPU budget for the host.
	MaxSessions int64 `mapstructure:"max_sessions" yaml:"max_sessions"`
	// RateLimit and RateBurst configure the per-client token bucket applied
	// to login automation requests.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath        string        `mapstructure:"exec_path" yaml:"exec_path"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	WindowWidth     int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int           `mapstructure:"window_height" yaml:"window_height"`
	LaunchTimeout   time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	Args            []string      `mapstructure:"args" yaml:"args"`
}

// OAuthConfig describes the identity-provider surface the automation drives.
type OAuthConfig struct {
	ClientID string `mapstructure:"client_id" yaml:"-"`
	// Authority is the provider base (e.g. https://login.microsoftonline.com/common).
	// The authorize and token endpoints are derived from it.
	Authority string `mapstructure:"authority" yaml:"authority"`
	Scopes    string `mapstructure:"scopes" yaml:"scopes"`
	// RedirectPath is appended to the per-request service URL to form the
	// redirect URI the provider sends the authorization code back to.
	RedirectPath    string        `mapstructure:"redirect_path" yaml:"redirect_path"`
	ExchangeTimeout time.Duration `mapstructure:"exchange_timeout" yaml:"exchange_timeout"`
}

// AuthorizeEndpoint returns the provider's authorize URL.
func (o OAuthConfig) AuthorizeEndpoint() string {
	return strings.TrimRight(o.Authority, "/") + "/oauth2/v2.0/authorize"
}

// TokenEndpoint returns the provider's token URL.
func (o OAuthConfig) TokenEndpoint() string {
	return strings.TrimRight(o.Authority, "/") + "/oauth2/v2.0/token"
}

// AutomationConfig tunes the login state machine's waits. The defaults match
// the provider's observed client-side render latencies; they exist so the
// timings can be adjusted without touching control-flow logic.
type AutomationConfig struct {
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	StatusSettleDelay time.Duration `mapstructure:"status_settle_delay" yaml:"status_settle_delay"`
	CandidateWait     time.Duration `mapstructure:"candidate_wait" yaml:"candidate_wait"`
	PasswordWait      time.Duration `mapstructure:"password_wait" yaml:"password_wait"`
	ExtractInterval   time.Duration `mapstructure:"extract_interval" yaml:"extract_interval"`
	ExtractTimeout    time.Duration `mapstructure:"extract_timeout" yaml:"extract_timeout"`
	MaxPromptAttempts int           `mapstructure:"max_prompt_attempts" yaml:"max_prompt_attempts"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tokensmith")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	// Write timeout must cover a full automation run plus token exchange.
	v.SetDefault("server.write_timeout", "3m")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_sessions", 4)
	v.SetDefault("server.rate_limit", 0.5)
	v.SetDefault("server.rate_burst", 3)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 720)
	v.SetDefault("browser.launch_timeout", "30s")

	// -- OAuth --
	v.SetDefault("oauth.authority", "https://login.microsoftonline.com/common")
	v.SetDefault("oauth.scopes", "offline_access Mail.Read Mail.ReadWrite User.Read")
	v.SetDefault("oauth.redirect_path", "/callback")
	v.SetDefault("oauth.exchange_timeout", "30s")

	// -- Automation --
	v.SetDefault("automation.settle_delay", "2s")
	v.SetDefault("automation.status_settle_delay", "3s")
	v.SetDefault("automation.candidate_wait", "3s")
	v.SetDefault("automation.password_wait", "8s")
	v.SetDefault("automation.extract_interval", "500ms")
	v.SetDefault("automation.extract_timeout", "30s")
	v.SetDefault("automation.max_prompt_attempts", 3)
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

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("oauth.client_id", "TOKENSMITH_CLIENT_ID", "CLIENT_ID")
	v.BindEnv("oauth.scopes", "TOKENSMITH_SCOPES", "SCOPES")

	var cfg Config
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
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port")
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be a positive integer")
	}
	if c.OAuth.Authority == "" {
		return fmt.Errorf("oauth.authority is a required configuration field")
	}
	if !strings.HasPrefix(c.OAuth.RedirectPath, "/") {
		return fmt.Errorf("oauth.redirect_path must start with '/'")
	}
	if c.Automation.ExtractInterval <= 0 || c.Automation.ExtractTimeout <= 0 {
		return fmt.Errorf("automation extract interval and timeout must be positive durations")
	}
	if c.Automation.MaxPromptAttempts <= 0 {
		return fmt.Errorf("automation.max_prompt_attempts must be greater than 0")
	}
	return nil
}
