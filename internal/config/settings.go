package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds runtime settings for the server and worker processes.
type Settings struct {
	Env       string `envconfig:"ENV" default:"development"`
	Addr      string `envconfig:"ADDR" default:"127.0.0.1:8080"`
	BasePath  string `envconfig:"BASE_PATH" default:"/v1"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	JWTSecret string `envconfig:"JWT_SECRET"`
	DevAuth   bool   `envconfig:"DEV_AUTH" default:"false"`

	RateLimit       int           `envconfig:"RATE_LIMIT" default:"120"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"ticket-attachments"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	// MinioPublicURL overrides the base used for public attachment links.
	MinioPublicURL string `envconfig:"MINIO_PUBLIC_URL"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	MailFrom      string `envconfig:"MAIL_FROM" default:"Service Notifications <notifications@farmhouse.local>"`
}

const settingsPrefix = "FSH"

// LoadSettings reads settings from FSH_* environment variables.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(settingsPrefix, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RequireServe checks the settings the HTTP server cannot run without.
func (s *Settings) RequireServe() error {
	if s.JWTSecret == "" {
		return errors.New("FSH_JWT_SECRET is required for bearer auth")
	}
	if s.MinioEndpoint == "" {
		return errors.New("FSH_MINIO_ENDPOINT is required for attachments")
	}
	return nil
}

func (s *Settings) IsProduction() bool {
	return s != nil && s.Env == "production"
}

// QueueEnabled reports whether a Redis backend is configured for notifications.
func (s *Settings) QueueEnabled() bool {
	return s != nil && s.RedisAddr != ""
}
