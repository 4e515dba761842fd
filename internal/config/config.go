package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "ONEIROS"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultStorageDriver = StorageDriverSQLite
	defaultDatabasePath  = "oneiros.db"
	defaultSnapshotPath  = "oneiros-journal.json"
	defaultLogLevel      = "info"
	defaultTextModel     = "gemini-3-pro-preview"
	defaultImageModel    = "gemini-3-pro-image-preview"
	defaultTokenTTLMins  = 720
)

// Storage driver names accepted by storage.driver.
const (
	StorageDriverSQLite   = "sqlite"
	StorageDriverSnapshot = "snapshot"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	StorageDriver string
	DatabasePath  string
	SnapshotPath  string
	LogLevel      string
	GeminiAPIKey  string
	TextModel     string
	ImageModel    string
	SigningSecret string
	ClientSecret  string
	TokenTTL      time.Duration
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
	configViper.SetDefault("storage.driver", defaultStorageDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("storage.snapshot_path", defaultSnapshotPath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("gemini.text_model", defaultTextModel)
	configViper.SetDefault("gemini.image_model", defaultImageModel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMins)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		StorageDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("storage.driver"))),
		DatabasePath:  configViper.GetString("database.path"),
		SnapshotPath:  configViper.GetString("storage.snapshot_path"),
		LogLevel:      configViper.GetString("log.level"),
		GeminiAPIKey:  configViper.GetString("gemini.api_key"),
		TextModel:     configViper.GetString("gemini.text_model"),
		ImageModel:    configViper.GetString("gemini.image_model"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		ClientSecret:  configViper.GetString("auth.client_secret"),
		TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("auth.client_secret is required")
	}
	switch c.StorageDriver {
	case StorageDriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case StorageDriverSnapshot:
		if strings.TrimSpace(c.SnapshotPath) == "" {
			return fmt.Errorf("storage.snapshot_path is required")
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q", StorageDriverSQLite, StorageDriverSnapshot)
	}
	if strings.TrimSpace(c.TextModel) == "" {
		return fmt.Errorf("gemini.text_model is required")
	}
	if strings.TrimSpace(c.ImageModel) == "" {
		return fmt.Errorf("gemini.image_model is required")
	}
	return nil
}
