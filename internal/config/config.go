// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Oracle() OracleConfig
	Job() JobConfig
	Server() ServerConfig
	Storage() StorageConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	OracleCfg   OracleConfig   `mapstructure:"oracle" yaml:"oracle"`
	JobCfg      JobConfig      `mapstructure:"job" yaml:"job"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	StorageCfg  StorageConfig  `mapstructure:"storage" yaml:"storage"`
}

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Oracle() OracleConfig     { return c.OracleCfg }
func (c *Config) Job() JobConfig           { return c.JobCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Storage() StorageConfig   { return c.StorageCfg }

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

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the job store connection settings. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	MaxConns       int32  `mapstructure:"max_conns" yaml:"max_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start" yaml:"migrate_on_start"`
}

// BrowserDriver selects the automation backend.
type BrowserDriver string

const (
	DriverChromedp BrowserDriver = "chromedp"
)

// ViewportConfig is the page viewport in CSS pixels.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig holds settings for the shared browser session and its pages.
type BrowserConfig struct {
	Driver    BrowserDriver  `mapstructure:"driver" yaml:"driver"`
	Headless  bool           `mapstructure:"headless" yaml:"headless"`
	RemoteURL string         `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath  string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args      []string       `mapstructure:"args" yaml:"args"`
	Viewport  ViewportConfig `mapstructure:"viewport" yaml:"viewport"`

	// Session retirement.
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	IdleCheckInterval time.Duration `mapstructure:"idle_check_interval" yaml:"idle_check_interval"`

	// Per-action policy.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NetworkIdleQuiet  time.Duration `mapstructure:"network_idle_quiet" yaml:"network_idle_quiet"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	MaxContentLength  int           `mapstructure:"max_content_length" yaml:"max_content_length"`
}

// LLMProvider defines the type for supported oracle backends.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// OracleConfig configures the decision oracle endpoint.
type OracleConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// JobConfig bounds the execution loop and the background dispatcher.
type JobConfig struct {
	MaxIterations   int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxWait         time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	PersistTimeout  time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
	StepScreenshots bool          `mapstructure:"step_screenshots" yaml:"step_screenshots"`
	FinalScreenshot bool          `mapstructure:"final_screenshot" yaml:"final_screenshot"`
	MaxGoalLength   int           `mapstructure:"max_goal_length" yaml:"max_goal_length"`
}

// ServerConfig configures the HTTP job API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	JWTSecret       string        `mapstructure:"jwt_secret" yaml:"-"`
}

// StorageBackend selects where screenshots are written.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// S3Config works for AWS S3 and any S3 compatible endpoint such as R2.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"-"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// StorageConfig configures the screenshot object store.
type StorageConfig struct {
	Backend  StorageBackend `mapstructure:"backend" yaml:"backend"`
	LocalDir string         `mapstructure:"local_dir" yaml:"local_dir"`
	S3       S3Config       `mapstructure:"s3" yaml:"s3"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; a failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value with the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "~/.webpilot/webpilot.log")
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

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.migrate_on_start", true)

	// -- Browser --
	v.SetDefault("browser.driver", string(DriverChromedp))
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.idle_timeout", "180s")
	v.SetDefault("browser.idle_check_interval", "10s")
	v.SetDefault("browser.navigation_timeout", "15s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.network_idle_quiet", "500ms")
	v.SetDefault("browser.settle_delay", "1s")
	v.SetDefault("browser.max_content_length", 60000)

	// -- Oracle --
	v.SetDefault("oracle.provider", string(ProviderOpenAI))
	v.SetDefault("oracle.model", "gpt-4o")
	v.SetDefault("oracle.api_timeout", "60s")
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.max_tokens", 2048)

	// -- Job --
	v.SetDefault("job.max_iterations", 12)
	v.SetDefault("job.max_wait", "30s")
	v.SetDefault("job.concurrency", 4)
	v.SetDefault("job.persist_timeout", "30s")
	v.SetDefault("job.step_screenshots", false)
	v.SetDefault("job.final_screenshot", true)
	v.SetDefault("job.max_goal_length", 1000)

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)

	// -- Storage --
	v.SetDefault("storage.backend", string(StorageLocal))
	v.SetDefault("storage.local_dir", "~/.webpilot/screenshots")
	v.SetDefault("storage.s3.region", "auto")
}

// NewConfigFromViper creates a new configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("oracle.api_key", "WEBPILOT_ORACLE_API_KEY")
	v.BindEnv("database.url", "WEBPILOT_DATABASE_URL")
	v.BindEnv("storage.s3.secret_access_key", "WEBPILOT_STORAGE_S3_SECRET_KEY")
	v.BindEnv("server.jwt_secret", "WEBPILOT_SERVER_JWT_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in file system paths.
func (c *Config) expandPaths() error {
	logFile, err := homedir.Expand(c.LoggerCfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	c.LoggerCfg.LogFile = logFile

	localDir, err := homedir.Expand(c.StorageCfg.LocalDir)
	if err != nil {
		return fmt.Errorf("failed to expand storage.local_dir: %w", err)
	}
	c.StorageCfg.LocalDir = localDir
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.OracleCfg.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	if c.JobCfg.MaxIterations <= 0 {
		return fmt.Errorf("job.max_iterations must be a positive integer")
	}
	if c.JobCfg.Concurrency <= 0 {
		return fmt.Errorf("job.concurrency must be a positive integer")
	}
	if err := c.StorageCfg.Validate(); err != nil {
		return fmt.Errorf("storage configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser session settings.
func (b BrowserConfig) Validate() error {
	switch b.Driver {
	case DriverChromedp:
	default:
		return fmt.Errorf("unsupported browser.driver %q", b.Driver)
	}
	if b.IdleTimeout <= 0 {
		return fmt.Errorf("browser.idle_timeout must be positive")
	}
	if b.IdleCheckInterval <= 0 {
		return fmt.Errorf("browser.idle_check_interval must be positive")
	}
	if b.IdleCheckInterval > b.IdleTimeout {
		return fmt.Errorf("browser.idle_check_interval (%s) must not exceed browser.idle_timeout (%s)", b.IdleCheckInterval, b.IdleTimeout)
	}
	if b.RemoteURL != "" && !strings.HasPrefix(b.RemoteURL, "ws://") && !strings.HasPrefix(b.RemoteURL, "wss://") {
		return fmt.Errorf("browser.remote_url must be a ws:// or wss:// devtools endpoint")
	}
	return nil
}

// Validate checks the oracle backend selection.
func (o OracleConfig) Validate() error {
	switch LLMProvider(strings.ToLower(string(o.Provider))) {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unsupported oracle.provider %q", o.Provider)
	}
	if o.Model == "" {
		return fmt.Errorf("oracle.model is required")
	}
	return nil
}

// Validate checks the object store selection.
func (s StorageConfig) Validate() error {
	switch s.Backend {
	case StorageLocal:
		if s.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case StorageS3:
		if s.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported storage.backend %q", s.Backend)
	}
	return nil
}
