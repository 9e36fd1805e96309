// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Interaction() InteractionConfig
	MCP() MCPConfig

	// Browser Setters
	SetBrowserDebuggerURL(string)
	SetBrowserTrustedInput(bool)

	// Interaction Setters
	SetInteractionWaitTimeout(d time.Duration)
	SetInteractionClearBeforeType(bool)
}

// Config holds the entire application configuration. Sections are read through
// the Interface getters.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	InteractionCfg InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	MCPCfg         MCPConfig         `mapstructure:"mcp" yaml:"mcp"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Interaction() InteractionConfig { return c.InteractionCfg }
func (c *Config) MCP() MCPConfig                 { return c.MCPCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserDebuggerURL(u string) { c.BrowserCfg.DebuggerURL = u }
func (c *Config) SetBrowserTrustedInput(b bool)  { c.BrowserCfg.TrustedInput = b }

func (c *Config) SetInteractionWaitTimeout(d time.Duration) { c.InteractionCfg.WaitTimeout = d }
func (c *Config) SetInteractionClearBeforeType(b bool)      { c.InteractionCfg.ClearBeforeType = b }

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

// BrowserConfig describes how the gateway reaches the already running browser.
type BrowserConfig struct {
	// DebuggerURL is the remote debugging endpoint, http(s):// or ws(s)://.
	DebuggerURL      string        `mapstructure:"debugger_url" yaml:"debugger_url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	// MaxConcurrentScopes bounds how many tool calls may hold a connection at once.
	MaxConcurrentScopes int `mapstructure:"max_concurrent_scopes" yaml:"max_concurrent_scopes"`
	// TrustedInput enables browser-level mouse and keyboard dispatch.
	TrustedInput bool `mapstructure:"trusted_input" yaml:"trusted_input"`
}

// InteractionConfig holds the defaults for the element interaction pipeline.
type InteractionConfig struct {
	WaitTimeout       time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	EvaluateTimeout   time.Duration `mapstructure:"evaluate_timeout" yaml:"evaluate_timeout"`
	// RecheckInterval is the slow safety re-check used alongside mutation notifications.
	RecheckInterval   time.Duration `mapstructure:"recheck_interval" yaml:"recheck_interval"`
	ClearBeforeType   bool          `mapstructure:"clear_before_type" yaml:"clear_before_type"`
	PreviewLength     int           `mapstructure:"preview_length" yaml:"preview_length"`
	MaxSelectorLength int           `mapstructure:"max_selector_length" yaml:"max_selector_length"`
	MaxTextLength     int           `mapstructure:"max_text_length" yaml:"max_text_length"`
	MaxExtractLength  int           `mapstructure:"max_extract_length" yaml:"max_extract_length"`
}

// MCPConfig configures the HTTP and websocket tool surface.
type MCPConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// RateLimit is requests per second per client address. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
	v.SetDefault("logger.service_name", "tabpilot")
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
	v.SetDefault("browser.debugger_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.handshake_timeout", "10s")
	v.SetDefault("browser.max_concurrent_scopes", 8)
	v.SetDefault("browser.trusted_input", true)

	// -- Interaction --
	v.SetDefault("interaction.wait_timeout", "5s")
	v.SetDefault("interaction.navigation_timeout", "30s")
	v.SetDefault("interaction.evaluate_timeout", "10s")
	v.SetDefault("interaction.recheck_interval", "500ms")
	v.SetDefault("interaction.clear_before_type", true)
	v.SetDefault("interaction.preview_length", 50)
	v.SetDefault("interaction.max_selector_length", 1000)
	v.SetDefault("interaction.max_text_length", 10000)
	v.SetDefault("interaction.max_extract_length", 20000)

	// -- MCP --
	v.SetDefault("mcp.listen_addr", "127.0.0.1:8765")
	v.SetDefault("mcp.request_timeout", "120s")
	v.SetDefault("mcp.rate_limit", 20.0)
	v.SetDefault("mcp.rate_burst", 40)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The debugger endpoint is commonly injected by whatever launched the browser.
	_ = v.BindEnv("browser.debugger_url", "TABPILOT_BROWSER_DEBUGGER_URL", "CHROME_DEBUGGER_URL")

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
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.InteractionCfg.Validate(); err != nil {
		return fmt.Errorf("interaction configuration invalid: %w", err)
	}
	if err := c.MCPCfg.Validate(); err != nil {
		return fmt.Errorf("mcp configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser section.
func (b *BrowserConfig) Validate() error {
	if b.DebuggerURL == "" {
		return fmt.Errorf("debugger_url is required")
	}
	u, err := url.Parse(b.DebuggerURL)
	if err != nil {
		return fmt.Errorf("debugger_url is not a valid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("debugger_url must use http, https, ws or wss (got %q)", u.Scheme)
	}
	if b.MaxConcurrentScopes <= 0 {
		return fmt.Errorf("max_concurrent_scopes must be a positive integer")
	}
	if b.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the interaction section.
func (i *InteractionConfig) Validate() error {
	if i.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be a positive duration")
	}
	if i.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	if i.EvaluateTimeout <= 0 {
		return fmt.Errorf("evaluate_timeout must be a positive duration")
	}
	if i.RecheckInterval <= 0 {
		return fmt.Errorf("recheck_interval must be a positive duration")
	}
	if i.PreviewLength < 0 {
		return fmt.Errorf("preview_length must not be negative")
	}
	if i.MaxSelectorLength <= 0 {
		return fmt.Errorf("max_selector_length must be a positive integer")
	}
	if i.MaxTextLength <= 0 {
		return fmt.Errorf("max_text_length must be a positive integer")
	}
	if i.MaxExtractLength <= 0 {
		return fmt.Errorf("max_extract_length must be a positive integer")
	}
	return nil
}

// Validate checks the MCP section.
func (m *MCPConfig) Validate() error {
	if m.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if m.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be a positive duration")
	}
	if m.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if m.RateLimit > 0 && m.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set")
	}
	return nil
}
