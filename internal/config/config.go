// Package config loads the reporter configuration from YAML, a .env file, and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/codalotl/xrayreport/internal/aggregator"
	"github.com/codalotl/xrayreport/internal/testkey"
	"github.com/codalotl/xrayreport/internal/types"
)

// DefaultPath is read when no --config flag is given and the file exists.
const DefaultPath = "xrayreport.yml"

// DefaultEnvFile is loaded before environment overrides are applied.
const DefaultEnvFile = ".env"

// Environment variables that override file settings.
const (
	EnvXrayURL      = "XRAY_URL"
	EnvJiraUser     = "JIRA_USER"
	EnvJiraPassword = "JIRA_PASSWORD"
	EnvScreenshot   = "XRAY_SCREENSHOT"
	EnvLogLevel     = "XRAY_LOG_LEVEL"
	EnvLogFormat    = "XRAY_LOG_FORMAT"
)

// Config represents the xrayreport.yml file contents after environment overrides.
type Config struct {
	// Screenshot is never, on-failure, or always.
	Screenshot        string        `yaml:"screenshot"`
	ScreenshotCommand string        `yaml:"screenshot-command"`
	EvidenceTimeout   time.Duration `yaml:"evidence-timeout"`

	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	// Info replaces description and version entirely when set.
	Info        *types.Info `yaml:"info"`
	TestComment string      `yaml:"test-comment"`

	KeyDelimiter        string `yaml:"key-delimiter"`
	IgnoreUnkeyedSuites bool   `yaml:"ignore-unkeyed-suites"`

	ImageComparison *ImageComparison `yaml:"image-comparison"`

	Xray    XrayConfig    `yaml:"xray"`
	File    *FileConfig   `yaml:"file"`
	S3      *S3Config     `yaml:"s3"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ImageComparison struct {
	DiffFolder       string  `yaml:"diff-folder"`
	BrowserName      string  `yaml:"browser-name"`
	BrowserWidth     int     `yaml:"browser-width"`
	BrowserHeight    int     `yaml:"browser-height"`
	DevicePixelRatio float64 `yaml:"device-pixel-ratio"`
}

type XrayConfig struct {
	Disabled bool          `yaml:"disabled"`
	URL      string        `yaml:"url"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

type FileConfig struct {
	// Path may contain {runID}.
	Path string `yaml:"path"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Key          string `yaml:"key"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access-key"`
	SecretKey    string `yaml:"secret-key"`
	SessionToken string `yaml:"session-token"`
	PathStyle    bool   `yaml:"path-style"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Path of the Prometheus textfile written after the run. Empty disables metrics output.
	Path string `yaml:"path"`
}

// ConfigurationError lists every problem found in a configuration.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

type LoadOptions struct {
	// Path of the YAML file. Empty means defaults only.
	Path string
	// EnvFile is read if it exists. Variables already in the environment win.
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Screenshot:   string(aggregator.ScreenshotOnFailure),
		KeyDelimiter: testkey.DefaultDelimiter,
		Logging:      LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads the file, applies .env and environment overrides, and fills defaults. It does not validate.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()
	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", opts.Path, err)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", opts.EnvFile, err)
		}
		lookup = withFallback(lookup, dotenv)
	}
	cfg.applyEnv(lookup)
	cfg.fillDefaults()
	return cfg, nil
}

func withFallback(lookup func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Xray.URL, EnvXrayURL)
	set(&c.Xray.User, EnvJiraUser)
	if v, ok := lookup(EnvJiraPassword); ok && v != "" {
		c.Xray.Password = v
	}
	set(&c.Screenshot, EnvScreenshot)
	set(&c.Logging.Level, EnvLogLevel)
	set(&c.Logging.Format, EnvLogFormat)
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Screenshot == "" {
		c.Screenshot = def.Screenshot
	}
	if c.KeyDelimiter == "" {
		c.KeyDelimiter = def.KeyDelimiter
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if ic := c.ImageComparison; ic != nil && ic.DevicePixelRatio == 0 {
		ic.DevicePixelRatio = 1
	}
}

// Validate returns a *ConfigurationError naming every problem, or nil.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if policy, err := aggregator.ParseScreenshotPolicy(c.Screenshot); err != nil {
		add("screenshot: %v", err)
	} else if policy == aggregator.ScreenshotAlways && strings.TrimSpace(c.ScreenshotCommand) == "" {
		add("screenshot-command is required when screenshot is always")
	}
	if c.EvidenceTimeout < 0 {
		add("evidence-timeout must not be negative")
	}
	if strings.TrimSpace(c.KeyDelimiter) == "" {
		add("key-delimiter must not be blank")
	}

	if !c.Xray.Disabled {
		if c.Xray.URL == "" {
			add("xray.url is required (or set %s)", EnvXrayURL)
		} else if u, err := url.Parse(c.Xray.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("xray.url %q is not an http(s) url", c.Xray.URL)
		}
		if c.Xray.User == "" {
			add("xray.user is required (or set %s)", EnvJiraUser)
		}
		if c.Xray.Password == "" {
			add("xray.password is required (or set %s)", EnvJiraPassword)
		}
	}
	if c.File != nil && strings.TrimSpace(c.File.Path) == "" {
		add("file.path is required when file is set")
	}
	if c.S3 != nil && strings.TrimSpace(c.S3.Bucket) == "" {
		add("s3.bucket is required when s3 is set")
	}
	if c.Xray.Disabled && c.File == nil && c.S3 == nil {
		add("no delivery destination: enable xray or configure file or s3")
	}

	if ic := c.ImageComparison; ic != nil {
		if ic.DiffFolder == "" {
			add("image-comparison.diff-folder is required")
		}
		if ic.BrowserName == "" {
			add("image-comparison.browser-name is required")
		}
		if ic.BrowserWidth <= 0 || ic.BrowserHeight <= 0 {
			add("image-comparison.browser-width and browser-height must be positive")
		}
		if ic.DevicePixelRatio <= 0 {
			add("image-comparison.device-pixel-ratio must be positive")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format %q is not one of json, console", c.Logging.Format)
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// Warnings lists settings that are valid but likely not what the user wants.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.ScreenshotPolicy() == aggregator.ScreenshotOnFailure && strings.TrimSpace(c.ScreenshotCommand) == "" {
		warnings = append(warnings, "screenshot is on-failure but screenshot-command is not set: failed steps get no screenshot")
	}
	return warnings
}

// ScreenshotPolicy returns the parsed policy, falling back to on-failure when invalid.
func (c *Config) ScreenshotPolicy() aggregator.ScreenshotPolicy {
	p, err := aggregator.ParseScreenshotPolicy(c.Screenshot)
	if err != nil {
		return aggregator.ScreenshotOnFailure
	}
	return p
}

// ReportInfo is the custom info when configured, otherwise description and version.
func (c *Config) ReportInfo() types.Info {
	if c.Info != nil {
		return *c.Info
	}
	return types.Info{Description: c.Description, Version: c.Version}
}
