package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zen-systems/routegate/pkg/classifier"
	"github.com/zen-systems/routegate/pkg/engine"
	"github.com/zen-systems/routegate/pkg/registry"
	"github.com/zen-systems/routegate/pkg/router"
)

// EnvPrefix prefixes every settings override read from the environment.
const EnvPrefix = "ROUTEGATE"

// Config holds the application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Router    RouterConfig    `mapstructure:"router"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Health    HealthConfig    `mapstructure:"health"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Providers string          `mapstructure:"providers_file"`
	Sensitive SensitiveConfig `mapstructure:"sensitivity"`

	// API keys are only ever read from the provider environment variables.
	AnthropicAPIKey string `mapstructure:"-"`
	OpenAIAPIKey    string `mapstructure:"-"`
	GoogleAPIKey    string `mapstructure:"-"`
	DeepSeekAPIKey  string `mapstructure:"-"`

	ConfigDir string `mapstructure:"-"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RouterConfig holds ranking configuration.
type RouterConfig struct {
	TopK    int            `mapstructure:"top_k"`
	Weights router.Weights `mapstructure:"weights"`
}

// SensitiveConfig selects the sensitivity policy and its trigger words.
type SensitiveConfig struct {
	Policy     string   `mapstructure:"policy"`
	Indicators []string `mapstructure:"indicators"`
}

// BreakerConfig holds scoring and circuit breaker configuration.
type BreakerConfig struct {
	Alpha            float64       `mapstructure:"alpha"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	FailureWindow    time.Duration `mapstructure:"failure_window"`
	CoolDown         time.Duration `mapstructure:"cool_down"`
}

// TimeoutConfig holds per-attempt timeouts. PerTask is keyed by task type.
type TimeoutConfig struct {
	Default time.Duration            `mapstructure:"default"`
	Min     time.Duration            `mapstructure:"min"`
	Max     time.Duration            `mapstructure:"max"`
	PerTask map[string]time.Duration `mapstructure:"per_task"`
}

// RetryConfig defines same-provider retry and backoff behavior.
type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

// HealthConfig holds provider health probe configuration. A zero interval disables probing.
type HealthConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// RedisConfig configures the optional outcome mirror. An empty address disables it.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load reads configuration from path, or from config.yaml in the config
// directory when path is empty, then applies ROUTEGATE_* environment overrides.
func Load(path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.ConfigDir = configDir
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")
	if password := os.Getenv(EnvPrefix + "_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if cfg.Providers != "" && !filepath.IsAbs(cfg.Providers) {
		cfg.Providers = filepath.Join(configDir, cfg.Providers)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component could run with.
func (c *Config) Validate() error {
	w := c.Router.Weights
	if w.Dynamic < 0 || w.SpeedBias < 0 || w.Match < 0 {
		return fmt.Errorf("router.weights must not be negative")
	}
	if w.Dynamic+w.SpeedBias+w.Match == 0 {
		return fmt.Errorf("router.weights must not all be zero")
	}
	if c.Breaker.Alpha < 0 || c.Breaker.Alpha > 1 {
		return fmt.Errorf("breaker.alpha %.2f outside [0,1]", c.Breaker.Alpha)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	for name := range c.Timeouts.PerTask {
		if !classifier.TaskType(name).Valid() {
			return fmt.Errorf("timeouts.per_task: unknown task type %q", name)
		}
	}
	return nil
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai", "openai-image":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "deepseek":
		return c.DeepSeekAPIKey != ""
	case "mock", "compat":
		return true
	default:
		return false
	}
}

// RegistrySettings converts the breaker section.
func (c *Config) RegistrySettings() registry.Settings {
	return registry.Settings{
		Alpha:            c.Breaker.Alpha,
		FailureThreshold: c.Breaker.FailureThreshold,
		FailureWindow:    c.Breaker.FailureWindow,
		CoolDown:         c.Breaker.CoolDown,
	}
}

// TimeoutPolicy converts the timeouts section, starting from the built-in
// per-task budgets.
func (c *Config) TimeoutPolicy() engine.TimeoutPolicy {
	p := engine.DefaultTimeoutPolicy()
	if c.Timeouts.Default > 0 {
		p.Default = c.Timeouts.Default
	}
	if c.Timeouts.Min > 0 {
		p.Min = c.Timeouts.Min
	}
	if c.Timeouts.Max > 0 {
		p.Max = c.Timeouts.Max
	}
	for name, d := range c.Timeouts.PerTask {
		p.Base[classifier.TaskType(name)] = d
	}
	return p
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() engine.RetryPolicy {
	return engine.RetryPolicy{
		MaxRetries:  c.Retry.MaxRetries,
		BaseBackoff: c.Retry.BaseBackoff,
		MaxBackoff:  c.Retry.MaxBackoff,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 6*time.Minute)

	weights := router.DefaultWeights()
	v.SetDefault("router.top_k", router.DefaultTopK)
	v.SetDefault("router.weights.dynamic", weights.Dynamic)
	v.SetDefault("router.weights.speed_bias", weights.SpeedBias)
	v.SetDefault("router.weights.match", weights.Match)

	v.SetDefault("sensitivity.policy", "ignore")
	v.SetDefault("sensitivity.indicators", classifier.DefaultSensitivityIndicators)

	settings := registry.DefaultSettings()
	v.SetDefault("breaker.alpha", settings.Alpha)
	v.SetDefault("breaker.failure_threshold", settings.FailureThreshold)
	v.SetDefault("breaker.failure_window", settings.FailureWindow)
	v.SetDefault("breaker.cool_down", settings.CoolDown)

	timeouts := engine.DefaultTimeoutPolicy()
	v.SetDefault("timeouts.default", timeouts.Default)
	v.SetDefault("timeouts.min", timeouts.Min)
	v.SetDefault("timeouts.max", timeouts.Max)

	retry := engine.DefaultRetryPolicy()
	v.SetDefault("retry.max_retries", retry.MaxRetries)
	v.SetDefault("retry.base_backoff", retry.BaseBackoff)
	v.SetDefault("retry.max_backoff", retry.MaxBackoff)

	v.SetDefault("health.interval", time.Duration(0))
	v.SetDefault("health.timeout", 10*time.Second)
	v.SetDefault("health.concurrency", 4)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "routegate:stats")
	v.SetDefault("redis.ttl", 7*24*time.Hour)

	v.SetDefault("providers_file", "providers.yaml")
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".routegate")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
