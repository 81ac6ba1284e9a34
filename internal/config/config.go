package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/amosWeiskopf/portalcrawl/internal/models"
	"github.com/amosWeiskopf/portalcrawl/pkg/auth"
	"github.com/amosWeiskopf/portalcrawl/pkg/browser"
	"github.com/amosWeiskopf/portalcrawl/pkg/crawler"
	"github.com/amosWeiskopf/portalcrawl/pkg/extractor"
	"github.com/amosWeiskopf/portalcrawl/pkg/frontier"
)

// Output formats for page records.
const (
	FormatCSV    = "csv"
	FormatJSONL  = "jsonl"
	FormatSQLite = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Browser BrowserConfig `mapstructure:"browser"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`

	configFileUsed string
}

// AuthConfig describes the login form
type AuthConfig struct {
	LoginURL           string        `mapstructure:"login_url"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	UsernameSelector   string        `mapstructure:"username_selector"`
	PasswordSelector   string        `mapstructure:"password_selector"`
	SubmitSelector     string        `mapstructure:"submit_selector"`
	SuccessURLContains string        `mapstructure:"success_url_contains"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// CrawlerConfig holds crawler-specific configuration
type CrawlerConfig struct {
	BaseHost          string        `mapstructure:"base_host"`
	Mode              string        `mapstructure:"mode"`
	Delay             time.Duration `mapstructure:"delay"`
	MaxContentLength  int           `mapstructure:"max_content_length"`
	MaxDiscoveryPages int           `mapstructure:"max_discovery_pages"`
	MaxContentPages   int           `mapstructure:"max_content_pages"`
	FragmentPolicy    string        `mapstructure:"fragment_policy"`
	LogoutMarker      string        `mapstructure:"logout_marker"`
	ContentSource     string        `mapstructure:"content_source"`
}

// BrowserConfig selects and tunes the browser driver
type BrowserConfig struct {
	Driver            string        `mapstructure:"driver"`
	Headless          bool          `mapstructure:"headless"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ChromePath        string        `mapstructure:"chrome_path"`
}

// OutputConfig holds output file configuration
type OutputConfig struct {
	Dir          string   `mapstructure:"dir"`
	URLsFile     string   `mapstructure:"urls_file"`
	ContentFile  string   `mapstructure:"content_file"`
	RecordsFile  string   `mapstructure:"records_file"`
	SQLiteFile   string   `mapstructure:"sqlite_file"`
	Formats      []string `mapstructure:"formats"`
	Snapshots    bool     `mapstructure:"snapshots"`
	SnapshotDir  string   `mapstructure:"snapshot_dir"`
	ReportFormat string   `mapstructure:"report_format"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "console"
	OutputPath string `mapstructure:"output_path"`
}

// Load reads configuration, lowest precedence first, from defaults, the
// config file, PORTALCRAWL_* environment variables and flags. Only the
// flags named in FlagKeys are bound; flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("portalcrawl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".portalcrawl"))
		}
	}

	v.SetEnvPrefix("PORTALCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags != nil {
		for key, name := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.configFileUsed = v.ConfigFileUsed()
	return &config, nil
}

// FlagKeys maps configuration keys to the command-line flags that
// override them.
var FlagKeys = map[string]string{
	"auth.login_url":              "login-url",
	"auth.username":               "username",
	"crawler.base_host":           "base-host",
	"crawler.mode":                "mode",
	"crawler.delay":               "delay",
	"crawler.max_discovery_pages": "max-discovery-pages",
	"crawler.max_content_pages":   "max-content-pages",
	"browser.driver":              "driver",
	"browser.headless":            "headless",
	"output.dir":                  "output-dir",
	"output.formats":              "format",
	"output.snapshots":            "snapshots",
	"output.report_format":        "report",
	"logging.level":               "log-level",
}

func setDefaults(v *viper.Viper) {
	// Auth defaults
	v.SetDefault("auth.login_url", "")
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.username_selector", auth.DefaultUsernameSelector)
	v.SetDefault("auth.password_selector", auth.DefaultPasswordSelector)
	v.SetDefault("auth.submit_selector", auth.DefaultSubmitSelector)
	v.SetDefault("auth.success_url_contains", auth.DefaultSuccessMarker)
	v.SetDefault("auth.timeout", "15s")

	// Crawler defaults
	v.SetDefault("crawler.base_host", "")
	v.SetDefault("crawler.mode", string(crawler.TwoPass))
	v.SetDefault("crawler.delay", "2s")
	v.SetDefault("crawler.max_content_length", extractor.DefaultMaxContentLength)
	v.SetDefault("crawler.max_discovery_pages", 1000)
	v.SetDefault("crawler.max_content_pages", 1000)
	v.SetDefault("crawler.fragment_policy", string(frontier.FragmentStrip))
	v.SetDefault("crawler.logout_marker", frontier.DefaultLogoutMarker)
	v.SetDefault("crawler.content_source", extractor.SourceBody)

	// Browser defaults
	v.SetDefault("browser.driver", browser.DriverChrome)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.settle_delay", "0s")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.chrome_path", "")

	// Output defaults
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.urls_file", "internal_platform_urls.csv")
	v.SetDefault("output.content_file", "internal_platform_content.csv")
	v.SetDefault("output.records_file", "internal_platform_pages.jsonl")
	v.SetDefault("output.sqlite_file", "internal_platform.db")
	v.SetDefault("output.formats", []string{FormatCSV})
	v.SetDefault("output.snapshots", false)
	v.SetDefault("output.snapshot_dir", "snapshots")
	v.SetDefault("output.report_format", "text")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output_path", "stderr")
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (c *Config) ConfigFileUsed() string {
	return c.configFileUsed
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Auth.LoginURL) == "" {
		errs = append(errs, errors.New("auth.login_url is required"))
	}
	if c.Auth.Timeout < 0 {
		errs = append(errs, errors.New("auth.timeout must not be negative"))
	}

	if _, err := crawler.ParseMode(c.Crawler.Mode); err != nil {
		errs = append(errs, fmt.Errorf("crawler.mode: %w", err))
	}
	if _, err := frontier.ParseFragmentPolicy(c.Crawler.FragmentPolicy); err != nil {
		errs = append(errs, fmt.Errorf("crawler.fragment_policy: %w", err))
	}
	switch c.Crawler.ContentSource {
	case extractor.SourceBody, extractor.SourceReadable:
	default:
		errs = append(errs, fmt.Errorf("crawler.content_source: unknown source %q", c.Crawler.ContentSource))
	}
	if c.Crawler.MaxDiscoveryPages <= 0 {
		errs = append(errs, errors.New("crawler.max_discovery_pages must be positive"))
	}
	if c.Crawler.MaxContentPages < 0 {
		errs = append(errs, errors.New("crawler.max_content_pages must not be negative"))
	}
	if c.Crawler.MaxContentLength <= 0 {
		errs = append(errs, errors.New("crawler.max_content_length must be positive"))
	}
	if c.Crawler.Delay < 0 {
		errs = append(errs, errors.New("crawler.delay must not be negative"))
	}

	switch strings.ToLower(c.Browser.Driver) {
	case browser.DriverChrome, browser.DriverHTTP:
	default:
		errs = append(errs, fmt.Errorf("browser.driver: unknown driver %q", c.Browser.Driver))
	}
	if c.Browser.SettleDelay < 0 {
		errs = append(errs, errors.New("browser.settle_delay must not be negative"))
	}

	for _, f := range c.Output.Formats {
		switch f {
		case FormatCSV, FormatJSONL, FormatSQLite:
		default:
			errs = append(errs, fmt.Errorf("output.formats: unknown format %q", f))
		}
	}

	switch c.Output.ReportFormat {
	case "text", "json", "markdown":
	default:
		errs = append(errs, fmt.Errorf("output.report_format: unknown format %q", c.Output.ReportFormat))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Limits returns the crawl limits of a run.
func (c *Config) Limits() models.CrawlLimits {
	return models.CrawlLimits{
		MaxDiscoveryPages: c.Crawler.MaxDiscoveryPages,
		MaxContentPages:   c.Crawler.MaxContentPages,
		Delay:             c.Crawler.Delay,
		MaxContentLength:  c.Crawler.MaxContentLength,
	}
}

// CrawlOptions returns the engine options. Call Validate first; invalid
// names fall back to their defaults here.
func (c *Config) CrawlOptions() crawler.Options {
	mode, _ := crawler.ParseMode(c.Crawler.Mode)
	policy, _ := frontier.ParseFragmentPolicy(c.Crawler.FragmentPolicy)
	return crawler.Options{
		Mode:           mode,
		BaseHost:       c.Crawler.BaseHost,
		FragmentPolicy: policy,
		LogoutMarker:   c.Crawler.LogoutMarker,
	}
}

// BrowserOptions returns the browser driver options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Driver:            strings.ToLower(c.Browser.Driver),
		Headless:          c.Browser.Headless,
		ChromePath:        c.Browser.ChromePath,
		UserAgent:         c.Browser.UserAgent,
		NavigationTimeout: c.Browser.NavigationTimeout,
		SettleDelay:       c.Browser.SettleDelay,
	}
}

// ExtractorOptions returns the page extractor options.
func (c *Config) ExtractorOptions() extractor.Options {
	return extractor.Options{
		MaxContentLength: c.Crawler.MaxContentLength,
		ContentSource:    c.Crawler.ContentSource,
		Snapshots:        c.Output.Snapshots,
		SnapshotDir:      c.Output.Path(c.Output.SnapshotDir),
	}
}

// AuthForm returns the login form description.
func (c *Config) AuthForm() auth.Form {
	return auth.Form{
		LoginURL:           c.Auth.LoginURL,
		Username:           c.Auth.Username,
		Password:           c.Auth.Password,
		UsernameSelector:   c.Auth.UsernameSelector,
		PasswordSelector:   c.Auth.PasswordSelector,
		SubmitSelector:     c.Auth.SubmitSelector,
		SuccessURLContains: c.Auth.SuccessURLContains,
		Timeout:            c.Auth.Timeout,
	}
}

// Path places name under the output directory unless it is absolute.
func (o OutputConfig) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Dir, name)
}

// HasFormat reports whether records are written in format f.
func (o OutputConfig) HasFormat(f string) bool {
	return slices.Contains(o.Formats, f)
}
