package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "CHARLIB"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultWorkerAddress     = "0.0.0.0:8081"
	defaultDatabasePath      = "characters.db"
	defaultLogLevel          = "info"
	defaultImagesRoot        = "blobs"
	defaultImagesAccount     = "dragonballstorage"
	defaultImagesContainer   = "characters"
	defaultQueueChannel      = "character-events"
	defaultCleanupTimeoutMS  = 30000
	defaultPollTimeoutMS     = 5000
	defaultProcessingDelayMS = 500
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	SeedDatabase    bool
	LogLevel        string
	ImagesRoot      string
	ImagesAccount   string
	ImagesContainer string
	QueueURL        string
	QueueChannel    string
	AllowedOrigins  []string
	CleanupTimeout  time.Duration
	ProcessingDelay time.Duration
}

// WorkerConfig captures runtime configuration for the background worker.
type WorkerConfig struct {
	HTTPAddress     string
	LogLevel        string
	QueueURL        string
	QueueChannel    string
	PollTimeout     time.Duration
	ProcessingDelay time.Duration
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
	configViper.SetDefault("database.seed", true)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("images.root", defaultImagesRoot)
	configViper.SetDefault("images.account", defaultImagesAccount)
	configViper.SetDefault("images.container", defaultImagesContainer)
	configViper.SetDefault("images.cleanup_timeout_ms", defaultCleanupTimeoutMS)
	configViper.SetDefault("queue.url", "")
	configViper.SetDefault("queue.channel", defaultQueueChannel)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("worker.http_address", defaultWorkerAddress)
	configViper.SetDefault("worker.poll_timeout_ms", defaultPollTimeoutMS)
	configViper.SetDefault("worker.processing_delay_ms", defaultProcessingDelayMS)
}

// Load parses API server configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		SeedDatabase:    configViper.GetBool("database.seed"),
		LogLevel:        configViper.GetString("log.level"),
		ImagesRoot:      configViper.GetString("images.root"),
		ImagesAccount:   configViper.GetString("images.account"),
		ImagesContainer: configViper.GetString("images.container"),
		QueueURL:        strings.TrimSpace(configViper.GetString("queue.url")),
		QueueChannel:    strings.TrimSpace(configViper.GetString("queue.channel")),
		AllowedOrigins:  splitList(configViper.GetStringSlice("cors.allowed_origins")),
		CleanupTimeout:  time.Duration(configViper.GetInt("images.cleanup_timeout_ms")) * time.Millisecond,
		ProcessingDelay: time.Duration(configViper.GetInt("worker.processing_delay_ms")) * time.Millisecond,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadWorker parses background worker configuration from viper.
func LoadWorker(configViper *viper.Viper) (WorkerConfig, error) {
	cfg := WorkerConfig{
		HTTPAddress:     configViper.GetString("worker.http_address"),
		LogLevel:        configViper.GetString("log.level"),
		QueueURL:        strings.TrimSpace(configViper.GetString("queue.url")),
		QueueChannel:    strings.TrimSpace(configViper.GetString("queue.channel")),
		PollTimeout:     time.Duration(configViper.GetInt("worker.poll_timeout_ms")) * time.Millisecond,
		ProcessingDelay: time.Duration(configViper.GetInt("worker.processing_delay_ms")) * time.Millisecond,
	}

	if err := cfg.validate(); err != nil {
		return WorkerConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.ImagesRoot) == "" {
		return fmt.Errorf("images.root is required")
	}
	if c.QueueChannel == "" {
		return fmt.Errorf("queue.channel is required")
	}
	if c.CleanupTimeout <= 0 {
		return fmt.Errorf("images.cleanup_timeout_ms must be positive")
	}
	if c.ProcessingDelay < 0 {
		return fmt.Errorf("worker.processing_delay_ms must not be negative")
	}
	return nil
}

func (c WorkerConfig) validate() error {
	if c.QueueURL == "" {
		return fmt.Errorf("queue.url is required")
	}
	if c.QueueChannel == "" {
		return fmt.Errorf("queue.channel is required")
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("worker.poll_timeout_ms must be positive")
	}
	if c.ProcessingDelay < 0 {
		return fmt.Errorf("worker.processing_delay_ms must not be negative")
	}
	return nil
}

func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
