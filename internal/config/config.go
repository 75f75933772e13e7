package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "CONFDESK"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "confdesk.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultPollTimeout     = 60
	defaultRefreshInterval = 60
	defaultSubscribers     = "database"
	defaultSubscribersPath = "chats_for_updates.json"
	defaultLockPath        = "confdesk-bot.lock"
	defaultPageSize        = 8
	defaultColumns         = 4
	defaultNotifyRate      = 25
	defaultNotifyAttempts  = 3
	defaultLLMModel        = "GigaChat"
	defaultTrackerBaseURL  = "https://api.tracker.yandex.net"
)

// Subscriber persistence backends.
const (
	SubscribersBackendDatabase = "database"
	SubscribersBackendFile     = "file"
)

// AppConfig captures runtime configuration shared by the bot and the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string
	LogFormat    string

	TelegramToken       string
	TelegramPollTimeout time.Duration

	RefreshInterval time.Duration
	RefreshCron     string

	SubscribersBackend string
	SubscribersPath    string

	LockPath       string
	PageSize       int
	Columns        int
	MetricsAddress string

	NotifyRatePerSecond float64
	NotifyMaxAttempts   int

	LLM     ExternalServiceConfig
	Speech  ExternalServiceConfig
	Tracker TrackerConfig
}

// ExternalServiceConfig describes a third-party HTTP API.
type ExternalServiceConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// TrackerConfig describes the issue tracker account used for board creation.
type TrackerConfig struct {
	BaseURL string
	Token   string
	OrgID   string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("telegram.token", "")
	configViper.SetDefault("telegram.poll_timeout_seconds", defaultPollTimeout)
	configViper.SetDefault("updates.interval_seconds", defaultRefreshInterval)
	configViper.SetDefault("updates.cron", "")
	configViper.SetDefault("subscribers.backend", defaultSubscribers)
	configViper.SetDefault("subscribers.path", defaultSubscribersPath)
	configViper.SetDefault("bot.lock_path", defaultLockPath)
	configViper.SetDefault("bot.page_size", defaultPageSize)
	configViper.SetDefault("bot.columns", defaultColumns)
	configViper.SetDefault("bot.metrics_address", "")
	configViper.SetDefault("notify.rate_per_second", defaultNotifyRate)
	configViper.SetDefault("notify.max_attempts", defaultNotifyAttempts)
	configViper.SetDefault("llm.base_url", "")
	configViper.SetDefault("llm.api_key", "")
	configViper.SetDefault("llm.model", defaultLLMModel)
	configViper.SetDefault("speech.base_url", "")
	configViper.SetDefault("speech.api_key", "")
	configViper.SetDefault("tracker.base_url", defaultTrackerBaseURL)
	configViper.SetDefault("tracker.token", "")
	configViper.SetDefault("tracker.org_id", "")
}

// Load parses runtime configuration from viper without command specific checks.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		LogFormat:           configViper.GetString("log.format"),
		TelegramToken:       configViper.GetString("telegram.token"),
		TelegramPollTimeout: time.Duration(configViper.GetInt("telegram.poll_timeout_seconds")) * time.Second,
		RefreshInterval:     time.Duration(configViper.GetInt("updates.interval_seconds")) * time.Second,
		RefreshCron:         strings.TrimSpace(configViper.GetString("updates.cron")),
		SubscribersBackend:  strings.ToLower(strings.TrimSpace(configViper.GetString("subscribers.backend"))),
		SubscribersPath:     configViper.GetString("subscribers.path"),
		LockPath:            configViper.GetString("bot.lock_path"),
		PageSize:            configViper.GetInt("bot.page_size"),
		Columns:             configViper.GetInt("bot.columns"),
		MetricsAddress:      configViper.GetString("bot.metrics_address"),

		NotifyRatePerSecond: configViper.GetFloat64("notify.rate_per_second"),
		NotifyMaxAttempts:   configViper.GetInt("notify.max_attempts"),

		LLM: ExternalServiceConfig{
			BaseURL: configViper.GetString("llm.base_url"),
			APIKey:  configViper.GetString("llm.api_key"),
			Model:   configViper.GetString("llm.model"),
		},
		Speech: ExternalServiceConfig{
			BaseURL: configViper.GetString("speech.base_url"),
			APIKey:  configViper.GetString("speech.api_key"),
		},
		Tracker: TrackerConfig{
			BaseURL: configViper.GetString("tracker.base_url"),
			Token:   configViper.GetString("tracker.token"),
			OrgID:   configViper.GetString("tracker.org_id"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadBot parses configuration and enforces the settings the Telegram bot needs.
func LoadBot(configViper *viper.Viper) (AppConfig, error) {
	cfg, err := Load(configViper)
	if err != nil {
		return AppConfig{}, err
	}
	if err := cfg.validateBot(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("bot.page_size must be positive")
	}
	if c.Columns <= 0 {
		return fmt.Errorf("bot.columns must be positive")
	}
	switch c.SubscribersBackend {
	case SubscribersBackendDatabase, SubscribersBackendFile:
	default:
		return fmt.Errorf("subscribers.backend must be %q or %q", SubscribersBackendDatabase, SubscribersBackendFile)
	}
	return nil
}

func (c AppConfig) validateBot() error {
	if strings.TrimSpace(c.TelegramToken) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.RefreshCron == "" && c.RefreshInterval <= 0 {
		return fmt.Errorf("updates.interval_seconds must be positive when updates.cron is empty")
	}
	if c.SubscribersBackend == SubscribersBackendFile && strings.TrimSpace(c.SubscribersPath) == "" {
		return fmt.Errorf("subscribers.path is required for the file backend")
	}
	if strings.TrimSpace(c.LockPath) == "" {
		return fmt.Errorf("bot.lock_path is required")
	}
	if c.NotifyRatePerSecond <= 0 {
		return fmt.Errorf("notify.rate_per_second must be positive")
	}
	return nil
}
