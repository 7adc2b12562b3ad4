// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	Acquire AcquireConfig `mapstructure:"acquire" yaml:"acquire"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
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

// BrowserConfig holds settings for the shared persistent browser.
type BrowserConfig struct {
	// Headless is off by default: the whole point of the persistent profile is
	// that a human can complete MFA in a visible window once.
	Headless    bool     `mapstructure:"headless" yaml:"headless"`
	ProfileDir  string   `mapstructure:"profile_dir" yaml:"profile_dir"`
	DownloadDir string   `mapstructure:"download_dir" yaml:"download_dir"`
	Args        []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig tunes timeouts for browser navigation and API requests.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// MailboxConfig holds the Microsoft Graph connection details for the shared mailbox.
type MailboxConfig struct {
	TenantID     string `mapstructure:"tenant_id" yaml:"tenant_id"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"-"`
	Mailbox      string `mapstructure:"mailbox" yaml:"mailbox"`
	// ClientEmail is the address typed into the portal's login form.
	ClientEmail string `mapstructure:"client_email" yaml:"client_email"`
	// Flow selects the token grant: "client_credentials" or "device_code".
	Flow string `mapstructure:"flow" yaml:"flow"`
}

// AcquireConfig tunes the download acquisition loop. The tick counts are
// empirically tuned heuristics carried from field runs, not hard semantics.
type AcquireConfig struct {
	BudgetTicks     int           `mapstructure:"budget_ticks" yaml:"budget_ticks"`
	TickInterval    time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	SettleTicks     int           `mapstructure:"settle_ticks" yaml:"settle_ticks"`
	RetriggerEvery  int           `mapstructure:"retrigger_every" yaml:"retrigger_every"`
	DisabledRetries int           `mapstructure:"disabled_retries" yaml:"disabled_retries"`
	DisabledWait    time.Duration `mapstructure:"disabled_wait" yaml:"disabled_wait"`
	LoginKeywords   []string      `mapstructure:"login_keywords" yaml:"login_keywords"`
	TransitKeywords []string      `mapstructure:"transit_keywords" yaml:"transit_keywords"`
	LoginDomains    []string      `mapstructure:"login_domains" yaml:"login_domains"`
}

// ExtractConfig parameterizes the email link extractor.
type ExtractConfig struct {
	PortalDomain    string `mapstructure:"portal_domain" yaml:"portal_domain"`
	GatewayDomain   string `mapstructure:"gateway_domain" yaml:"gateway_domain"`
	Label           string `mapstructure:"label" yaml:"label"`
	ProximityWindow int    `mapstructure:"proximity_window" yaml:"proximity_window"`
}

// WatchConfig tunes mailbox polling in watch mode.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
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
	v.SetDefault("logger.service_name", "evergreen-cli")
	v.SetDefault("logger.log_file", "evergreen.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.profile_dir", defaultDataPath("profile"))
	v.SetDefault("browser.download_dir", defaultDataPath("downloads"))
	v.SetDefault("browser.args", []string{})

	// -- Network --
	v.SetDefault("network.navigation_timeout", "60s")
	v.SetDefault("network.request_timeout", "30s")

	// -- Mailbox --
	v.SetDefault("mailbox.flow", "client_credentials")

	// -- Acquire --
	v.SetDefault("acquire.budget_ticks", 120)
	v.SetDefault("acquire.tick_interval", "1s")
	v.SetDefault("acquire.settle_ticks", 15)
	v.SetDefault("acquire.retrigger_every", 15)
	v.SetDefault("acquire.disabled_retries", 25)
	v.SetDefault("acquire.disabled_wait", "200ms")
	v.SetDefault("acquire.login_keywords", []string{"login", "signin", "auth", "logon"})
	v.SetDefault("acquire.transit_keywords", []string{"sso", "saml", "oauth", "verify", "identify"})
	v.SetDefault("acquire.login_domains", []string{"okta.com"})

	// -- Extract --
	v.SetDefault("extract.portal_domain", "findox.com")
	v.SetDefault("extract.gateway_domain", "mimecastprotect.com")
	v.SetDefault("extract.label", "(Web)")
	v.SetDefault("extract.proximity_window", 300)

	// -- Watch --
	v.SetDefault("watch.interval", "60s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("mailbox.client_secret", "EVERGREEN_MAILBOX_CLIENT_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the secret if Unmarshal didn't pick it up.
	if cfg.Mailbox.ClientSecret == "" {
		cfg.Mailbox.ClientSecret = os.Getenv("EVERGREEN_MAILBOX_CLIENT_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// Mailbox credentials are deliberately not required here: they are presence
// checked at the start of a mailbox operation, so browser-only use works
// without any Graph setup.
func (c *Config) Validate() error {
	if c.Acquire.BudgetTicks <= 0 {
		return fmt.Errorf("acquire.budget_ticks must be a positive integer")
	}
	if c.Acquire.TickInterval < 0 {
		return fmt.Errorf("acquire.tick_interval must not be negative")
	}
	if c.Acquire.SettleTicks < 0 {
		return fmt.Errorf("acquire.settle_ticks must not be negative")
	}
	if c.Acquire.RetriggerEvery <= 0 {
		return fmt.Errorf("acquire.retrigger_every must be a positive integer")
	}
	if c.Extract.ProximityWindow <= 0 {
		return fmt.Errorf("extract.proximity_window must be a positive integer")
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be a positive duration")
	}
	switch c.Mailbox.Flow {
	case "client_credentials", "device_code":
	default:
		return fmt.Errorf("mailbox.flow must be 'client_credentials' or 'device_code', got %q", c.Mailbox.Flow)
	}
	return nil
}

// Validate checks that the fields needed to reach the Graph API are present.
// Called at operation start, not config load.
func (m *MailboxConfig) Validate() error {
	if m.Mailbox == "" {
		return fmt.Errorf("mailbox.mailbox is required")
	}
	if m.TenantID == "" || m.ClientID == "" {
		return fmt.Errorf("mailbox.tenant_id and mailbox.client_id are required")
	}
	if m.Flow == "client_credentials" && m.ClientSecret == "" {
		return fmt.Errorf("mailbox.client_secret is required for the client_credentials flow (EVERGREEN_MAILBOX_CLIENT_SECRET)")
	}
	return nil
}

// defaultDataPath resolves a directory under the user's home data dir.
// Falls back to a relative path if the home directory cannot be determined.
func defaultDataPath(elem string) string {
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join("evergreen", elem)
	}
	return filepath.Join(home, ".evergreen", elem)
}
