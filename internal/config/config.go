package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type LLMConfig struct {
	Provider        string
	Model           string
	BaseURL         string
	OpenAIKey       string
	OpenRouterKey   string
	AnthropicKey    string
	MaxTokens       int
	Temperature     float32
	RateLimit       float64
	DecisionTimeout time.Duration
}

// APIKey returns the credential for the selected provider.
func (c LLMConfig) APIKey() string {
	switch c.Provider {
	case ProviderOpenRouter:
		return c.OpenRouterKey
	case ProviderAnthropic:
		return c.AnthropicKey
	default:
		return c.OpenAIKey
	}
}

type BrowserConfig struct {
	Headless        bool
	ViewportWidth   int
	ViewportHeight  int
	UserAgent       string
	MaxConcurrent   int
	ActionTimeout   time.Duration
	RequestDelayMin time.Duration
	RequestDelayMax time.Duration
	ArtifactsDir    string
}

type AgentConfig struct {
	MaxActions          int
	MaxRetries          int
	RetryDelay          time.Duration
	BackoffMultiplier   float64
	MaxBackoff          time.Duration
	RunTimeout          time.Duration
	ConfidenceThreshold float64
	HistoryWindow       int
	SnapshotMaxElements int
}

type LoggerConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type Config struct {
	AppEnv  string
	LLM     LLMConfig
	Browser BrowserConfig
	Agent   AgentConfig
	Logger  LoggerConfig
}

// SetDefaults registers every option with its default value. Keys are flat so
// that AutomaticEnv maps them to upper-case environment names.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm_provider", ProviderOpenAI)
	v.SetDefault("llm_model", "gpt-4")
	v.SetDefault("llm_base_url", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openrouter_api_key", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("max_tokens", 1000)
	v.SetDefault("temperature", 0.1)
	v.SetDefault("llm_rate_limit", 0)
	v.SetDefault("decision_timeout", "60s")

	v.SetDefault("headless", true)
	v.SetDefault("viewport_width", 1920)
	v.SetDefault("viewport_height", 1080)
	v.SetDefault("user_agent", "")
	v.SetDefault("max_concurrent_browsers", 3)
	v.SetDefault("action_timeout", "30s")
	v.SetDefault("request_delay_min", "1s")
	v.SetDefault("request_delay_max", "3s")
	v.SetDefault("artifacts_dir", "artifacts")

	v.SetDefault("max_actions", 20)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_delay", "2s")
	v.SetDefault("backoff_multiplier", 2.0)
	v.SetDefault("max_backoff", "30s")
	v.SetDefault("run_timeout", "10m")
	v.SetDefault("confidence_threshold", 0.5)
	v.SetDefault("history_window", 10)
	v.SetDefault("snapshot_max_elements", 150)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 50)
	v.SetDefault("log_max_backups", 5)
}

// LoadEnv reads .env and then .env.<APP_ENV> into the process environment.
// Missing files are not an error.
func LoadEnv() string {
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "dev"
	}
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(fmt.Sprintf(".env.%s", appEnv))
	return appEnv
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	appEnv := LoadEnv()

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}
	cfg.AppEnv = appEnv
	return cfg, nil
}

func FromViper(v *viper.Viper) (*Config, error) {
	var errs []error
	dur := func(key string) time.Duration {
		d, err := parseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		LLM: LLMConfig{
			Provider:        strings.ToLower(strings.TrimSpace(v.GetString("llm_provider"))),
			Model:           v.GetString("llm_model"),
			BaseURL:         v.GetString("llm_base_url"),
			OpenAIKey:       v.GetString("openai_api_key"),
			OpenRouterKey:   v.GetString("openrouter_api_key"),
			AnthropicKey:    v.GetString("anthropic_api_key"),
			MaxTokens:       v.GetInt("max_tokens"),
			Temperature:     float32(v.GetFloat64("temperature")),
			RateLimit:       v.GetFloat64("llm_rate_limit"),
			DecisionTimeout: dur("decision_timeout"),
		},
		Browser: BrowserConfig{
			Headless:        v.GetBool("headless"),
			ViewportWidth:   v.GetInt("viewport_width"),
			ViewportHeight:  v.GetInt("viewport_height"),
			UserAgent:       v.GetString("user_agent"),
			MaxConcurrent:   v.GetInt("max_concurrent_browsers"),
			ActionTimeout:   dur("action_timeout"),
			RequestDelayMin: dur("request_delay_min"),
			RequestDelayMax: dur("request_delay_max"),
			ArtifactsDir:    v.GetString("artifacts_dir"),
		},
		Agent: AgentConfig{
			MaxActions:          v.GetInt("max_actions"),
			MaxRetries:          v.GetInt("max_retries"),
			RetryDelay:          dur("retry_delay"),
			BackoffMultiplier:   v.GetFloat64("backoff_multiplier"),
			MaxBackoff:          dur("max_backoff"),
			RunTimeout:          dur("run_timeout"),
			ConfidenceThreshold: v.GetFloat64("confidence_threshold"),
			HistoryWindow:       v.GetInt("history_window"),
			SnapshotMaxElements: v.GetInt("snapshot_max_elements"),
		},
		Logger: LoggerConfig{
			Level:      v.GetString("log_level"),
			Format:     v.GetString("log_format"),
			File:       v.GetString("log_file"),
			MaxSizeMB:  v.GetInt("log_max_size_mb"),
			MaxBackups: v.GetInt("log_max_backups"),
		},
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic:
	default:
		return fmt.Errorf("%w: unknown llm_provider %q", ErrInvalidConfig, c.LLM.Provider)
	}
	if c.LLM.APIKey() == "" {
		return fmt.Errorf("%w: missing API key for provider %s", ErrInvalidConfig, c.LLM.Provider)
	}
	if c.Browser.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max_concurrent_browsers must be at least 1, got %d", ErrInvalidConfig, c.Browser.MaxConcurrent)
	}
	if c.Browser.RequestDelayMin < 0 || c.Browser.RequestDelayMin > c.Browser.RequestDelayMax {
		return fmt.Errorf("%w: request delay range [%s, %s] is inverted", ErrInvalidConfig, c.Browser.RequestDelayMin, c.Browser.RequestDelayMax)
	}
	if c.Agent.ConfidenceThreshold < 0 || c.Agent.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be within [0,1], got %v", ErrInvalidConfig, c.Agent.ConfidenceThreshold)
	}
	if c.Agent.MaxActions < 1 {
		return fmt.Errorf("%w: max_actions must be positive", ErrInvalidConfig)
	}
	if c.Agent.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be positive", ErrInvalidConfig)
	}
	if c.Agent.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: backoff_multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.Agent.HistoryWindow < 0 || c.Agent.SnapshotMaxElements < 1 {
		return fmt.Errorf("%w: history_window and snapshot_max_elements must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// parseDuration accepts Go duration strings ("1500ms") or plain seconds ("2", "0.5").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
