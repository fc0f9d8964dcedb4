package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "REE"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "ree.db"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultTokenIssuer        = "ree-auth"
	defaultTokenAudience      = "ree-api"
	defaultTokenTTLMinutes    = 60
	defaultRefreshTTLHours    = 24
	defaultCompletionBaseURL  = "https://openrouter.ai/api/v1"
	defaultCompletionModel    = "openai/gpt-4o-mini"
	defaultCompletionTemp     = 0.7
	defaultCompletionTimeoutS = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress           string
	DatabasePath          string
	LogLevel              string
	LogFormat             string
	SigningSecret         string
	TokenIssuer           string
	TokenAudience         string
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	AllowedOrigins        []string
	CompletionBaseURL     string
	CompletionAPIKey      string
	CompletionModel       string
	CompletionTemperature float64
	CompletionTimeout     time.Duration
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
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("token.refresh_ttl_hours", defaultRefreshTTLHours)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("completion.base_url", defaultCompletionBaseURL)
	configViper.SetDefault("completion.model", defaultCompletionModel)
	configViper.SetDefault("completion.temperature", defaultCompletionTemp)
	configViper.SetDefault("completion.timeout_seconds", defaultCompletionTimeoutS)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:           configViper.GetString("http.address"),
		DatabasePath:          configViper.GetString("database.path"),
		LogLevel:              configViper.GetString("log.level"),
		LogFormat:             configViper.GetString("log.format"),
		SigningSecret:         configViper.GetString("auth.signing_secret"),
		TokenIssuer:           configViper.GetString("auth.issuer"),
		TokenAudience:         configViper.GetString("auth.audience"),
		AccessTokenTTL:        time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		RefreshTokenTTL:       time.Duration(configViper.GetInt("token.refresh_ttl_hours")) * time.Hour,
		AllowedOrigins:        splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		CompletionBaseURL:     strings.TrimRight(strings.TrimSpace(configViper.GetString("completion.base_url")), "/"),
		CompletionAPIKey:      strings.TrimSpace(configViper.GetString("completion.api_key")),
		CompletionModel:       strings.TrimSpace(configViper.GetString("completion.model")),
		CompletionTemperature: configViper.GetFloat64("completion.temperature"),
		CompletionTimeout:     time.Duration(configViper.GetInt("completion.timeout_seconds")) * time.Second,
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
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("token.refresh_ttl_hours must exceed the access token ttl")
	}
	if c.CompletionBaseURL == "" {
		return fmt.Errorf("completion.base_url is required")
	}
	if c.CompletionModel == "" {
		return fmt.Errorf("completion.model is required")
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("completion.timeout_seconds must be positive")
	}
	return nil
}

// splitOrigins accepts both list values and a single comma separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
