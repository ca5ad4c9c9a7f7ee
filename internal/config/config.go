// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components depend on this rather than on *Config so tests can substitute values.
type Interface interface {
	Logger() LoggerConfig
	Instrument() InstrumentConfig
	Agent() AgentConfig
	Server() ServerConfig
	Build() BuildConfig

	SetServerAddr(addr string)
	SetServerRoot(root string)
	SetServerMode(mode string)
}

// Config holds the entire application configuration.
// Fields are exported for viper's decoder; callers go through the getters.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	InstrumentCfg InstrumentConfig `mapstructure:"instrument" yaml:"instrument"`
	AgentCfg      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
	BuildCfg      BuildConfig      `mapstructure:"build" yaml:"build"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Instrument() InstrumentConfig { return c.InstrumentCfg }
func (c *Config) Agent() AgentConfig           { return c.AgentCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }
func (c *Config) Build() BuildConfig           { return c.BuildCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetServerAddr(addr string) { c.ServerCfg.Addr = addr }
func (c *Config) SetServerRoot(root string) { c.ServerCfg.Root = root }
func (c *Config) SetServerMode(mode string) { c.ServerCfg.Mode = mode }

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

// ColorConfig defines the color names used for each log level on the console.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// InstrumentConfig controls which sources the instrumentor touches.
type InstrumentConfig struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	// Exclude lists path fragments; any id containing one is left alone.
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

// AgentConfig tunes the runtime visual edit agent.
type AgentConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// SettleDelay is how long content/class edits wait before overlays are re-measured.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// MutationDebounce coalesces bursts of layout mutations into one reposition.
	MutationDebounce   time.Duration `mapstructure:"mutation_debounce" yaml:"mutation_debounce"`
	MountNotifications bool          `mapstructure:"mount_notifications" yaml:"mount_notifications"`
	CallTimeout        time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	MessageRate        float64       `mapstructure:"message_rate" yaml:"message_rate"`
	MessageBurst       int           `mapstructure:"message_burst" yaml:"message_burst"`
}

// ServerConfig configures the development server.
type ServerConfig struct {
	Addr          string        `mapstructure:"addr" yaml:"addr"`
	Root          string        `mapstructure:"root" yaml:"root"`
	Mode          string        `mapstructure:"mode" yaml:"mode"`
	IndexFile     string        `mapstructure:"index_file" yaml:"index_file"`
	CSSRuntimeURL string        `mapstructure:"css_runtime_url" yaml:"css_runtime_url"`
	HMRNotifier   bool          `mapstructure:"hmr_notifier" yaml:"hmr_notifier"`
	Watch         bool          `mapstructure:"watch" yaml:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce" yaml:"watch_debounce"`
	APIProxy      ProxyConfig   `mapstructure:"api_proxy" yaml:"api_proxy"`
}

// ProxyConfig forwards a path prefix to a backend. An empty Target disables
// the proxy.
type ProxyConfig struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Target string `mapstructure:"target" yaml:"target"`
	// ChangeOrigin rewrites the Host header to the target's host.
	ChangeOrigin bool          `mapstructure:"change_origin" yaml:"change_origin"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Enabled reports whether requests should be proxied.
func (p ProxyConfig) Enabled() bool { return p.Target != "" }

// BuildConfig configures the esbuild bundle.
type BuildConfig struct {
	EntryPoints []string          `mapstructure:"entry_points" yaml:"entry_points"`
	OutDir      string            `mapstructure:"out_dir" yaml:"out_dir"`
	PublicPath  string            `mapstructure:"public_path" yaml:"public_path"`
	Sourcemap   bool              `mapstructure:"sourcemap" yaml:"sourcemap"`
	Define      map[string]string `mapstructure:"define" yaml:"define"`
}

// Development reports whether the server runs in development mode, the only
// mode in which instrumentation and dev-tool injection apply.
func (s ServerConfig) Development() bool {
	return strings.EqualFold(s.Mode, "development")
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

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "vedit")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Instrument --
	v.SetDefault("instrument.enabled", true)
	v.SetDefault("instrument.extensions", []string{".js", ".jsx", ".ts", ".tsx"})
	v.SetDefault("instrument.exclude", []string{"node_modules", "visual-edit-agent"})

	// -- Agent --
	v.SetDefault("agent.enabled", true)
	v.SetDefault("agent.settle_delay", "50ms")
	v.SetDefault("agent.mutation_debounce", "50ms")
	v.SetDefault("agent.mount_notifications", true)
	v.SetDefault("agent.call_timeout", "2s")
	v.SetDefault("agent.message_rate", 200.0)
	v.SetDefault("agent.message_burst", 50)

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:5173")
	v.SetDefault("server.root", ".")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.index_file", "index.html")
	v.SetDefault("server.css_runtime_url", "https://cdn.tailwindcss.com")
	v.SetDefault("server.hmr_notifier", true)
	v.SetDefault("server.watch", true)
	v.SetDefault("server.watch_debounce", "150ms")
	v.SetDefault("server.api_proxy.prefix", "/api")
	v.SetDefault("server.api_proxy.target", "")
	v.SetDefault("server.api_proxy.change_origin", true)
	v.SetDefault("server.api_proxy.timeout", "30s")

	// -- Build --
	v.SetDefault("build.entry_points", []string{"src/main.jsx"})
	v.SetDefault("build.out_dir", "dist")
	v.SetDefault("build.public_path", "/assets")
	v.SetDefault("build.sourcemap", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	root, err := homedir.Expand(cfg.ServerCfg.Root)
	if err != nil {
		return nil, fmt.Errorf("could not expand server.root %q: %w", cfg.ServerCfg.Root, err)
	}
	cfg.ServerCfg.Root = root

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.ServerCfg.Validate(); err != nil {
		return fmt.Errorf("server configuration invalid: %w", err)
	}
	if c.InstrumentCfg.Enabled && len(c.InstrumentCfg.Extensions) == 0 {
		return fmt.Errorf("instrument.extensions must not be empty when instrumentation is enabled")
	}
	return nil
}

// Validate checks the agent timings.
func (a *AgentConfig) Validate() error {
	if a.SettleDelay < 0 || a.MutationDebounce < 0 {
		return fmt.Errorf("settle_delay and mutation_debounce must not be negative")
	}
	if a.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be a positive duration")
	}
	if a.MessageRate <= 0 || a.MessageBurst <= 0 {
		return fmt.Errorf("message_rate and message_burst must be positive")
	}
	return nil
}

// Validate checks the server settings.
func (s *ServerConfig) Validate() error {
	switch strings.ToLower(s.Mode) {
	case "development", "production":
	default:
		return fmt.Errorf("mode must be 'development' or 'production', got %q", s.Mode)
	}
	if s.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if s.Root == "" {
		return fmt.Errorf("root is required")
	}
	if err := s.APIProxy.Validate(); err != nil {
		return fmt.Errorf("api_proxy: %w", err)
	}
	return nil
}

// Validate checks the proxy target when one is set.
func (p *ProxyConfig) Validate() error {
	if !p.Enabled() {
		return nil
	}
	u, err := url.Parse(p.Target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", p.Target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target must be an absolute http(s) URL, got %q", p.Target)
	}
	if !strings.HasPrefix(p.Prefix, "/") || p.Prefix == "/" {
		return fmt.Errorf("prefix must be a path below the root, got %q", p.Prefix)
	}
	return nil
}
