package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "SURAT"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = "sqlite"
	defaultDatabaseDSN    = "surat.db"
	defaultLogLevel       = "info"
	defaultLogEncoding    = "json"
	defaultTokenTTL       = 7 * 24 * time.Hour
	defaultIssuer         = "surat-api"
	defaultUploadDir      = "uploads"
	defaultMaxUploadBytes = 1 << 20
	defaultTimezone       = "Asia/Jakarta"
	defaultEditWindowDays = 20
	defaultAllowedOrigins = "*"
	defaultAdminUsername  = "admin"
)

var supportedDrivers = map[string]bool{
	"sqlite":   true,
	"postgres": true,
	"mysql":    true,
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabaseDriver string
	DatabaseDSN    string
	LogLevel       string
	LogEncoding    string
	SigningSecret  string
	TokenTTL       time.Duration
	TokenIssuer    string
	UploadDir      string
	MaxUploadBytes int64
	Timezone       string
	EditWindowDays int
	AllowedOrigins []string
	AdminUsername  string
	AdminPassword  string
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
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("storage.upload_dir", defaultUploadDir)
	configViper.SetDefault("storage.max_upload_bytes", defaultMaxUploadBytes)
	configViper.SetDefault("numbering.timezone", defaultTimezone)
	configViper.SetDefault("numbering.edit_window_days", defaultEditWindowDays)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("seed.admin_username", defaultAdminUsername)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		LogLevel:       configViper.GetString("log.level"),
		LogEncoding:    configViper.GetString("log.encoding"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:       configViper.GetDuration("auth.token_ttl"),
		TokenIssuer:    configViper.GetString("auth.issuer"),
		UploadDir:      configViper.GetString("storage.upload_dir"),
		MaxUploadBytes: configViper.GetInt64("storage.max_upload_bytes"),
		Timezone:       configViper.GetString("numbering.timezone"),
		EditWindowDays: configViper.GetInt("numbering.edit_window_days"),
		AllowedOrigins: splitOrigins(configViper.GetString("cors.allowed_origins")),
		AdminUsername:  configViper.GetString("seed.admin_username"),
		AdminPassword:  configViper.GetString("seed.admin_password"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RequireAdminSeed checks the keys the seed command needs on top of Load.
func (c AppConfig) RequireAdminSeed() error {
	if strings.TrimSpace(c.AdminUsername) == "" {
		return fmt.Errorf("seed.admin_username is required")
	}
	if strings.TrimSpace(c.AdminPassword) == "" {
		return fmt.Errorf("seed.admin_password is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if !supportedDrivers[c.DatabaseDriver] {
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("storage.upload_dir is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("storage.max_upload_bytes must be positive")
	}
	if c.EditWindowDays <= 0 {
		return fmt.Errorf("numbering.edit_window_days must be positive")
	}
	return nil
}

func splitOrigins(raw string) []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{defaultAllowedOrigins}
	}
	return origins
}
