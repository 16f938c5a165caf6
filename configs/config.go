package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

type R2 struct {
	AccountID  string `envconfig:"R2_ACCOUNT_ID"`
	AccessKey  string `envconfig:"R2_ACCESS_KEY"`
	SecretKey  string `envconfig:"R2_SECRET_KEY"`
	BucketName string `envconfig:"R2_BUCKET_NAME"`
	PublicURL  string `envconfig:"R2_PUBLIC_URL"`
}

// Publish holds the orchestrator's retry, fan-out and timeout tunables.
type Publish struct {
	MaxAttempts    int           `envconfig:"PUBLISH_MAX_ATTEMPTS" default:"3"`
	BackoffInitial time.Duration `envconfig:"PUBLISH_BACKOFF_INITIAL" default:"1s"`
	BackoffMax     time.Duration `envconfig:"PUBLISH_BACKOFF_MAX" default:"30s"`
	FanoutLimit    int           `envconfig:"PUBLISH_FANOUT_LIMIT" default:"10"`
	Ceiling        time.Duration `envconfig:"PUBLISH_CEILING" default:"10m"`
	PlatformRPS    float64       `envconfig:"PUBLISH_PLATFORM_RPS" default:"5"`
	LeaseTimeout   time.Duration `envconfig:"LEASE_TIMEOUT" default:"15m"`
}

type Queue struct {
	Concurrency int `envconfig:"QUEUE_CONCURRENCY" default:"10"`
	MaxAttempts int `envconfig:"QUEUE_MAX_ATTEMPTS" default:"5"`
}

type Refresh struct {
	Interval       time.Duration `envconfig:"REFRESH_INTERVAL" default:"10m"`
	Lookahead      time.Duration `envconfig:"REFRESH_LOOKAHEAD" default:"30m"`
	Concurrency    int           `envconfig:"REFRESH_CONCURRENCY" default:"10"`
	MaxAttempts    int           `envconfig:"REFRESH_MAX_ATTEMPTS" default:"3"`
	BackoffInitial time.Duration `envconfig:"REFRESH_BACKOFF_INITIAL" default:"1s"`
	Skew           time.Duration `envconfig:"CREDENTIAL_SKEW" default:"2m"`
}

type Config struct {
	InstagramClientID     string  `envconfig:"INSTAGRAM_CLIENT_ID"`
	InstagramClientSecret string  `envconfig:"INSTAGRAM_CLIENT_SECRET"`
	InstagramRedirectURI  string  `envconfig:"INSTAGRAM_REDIRECT_URI"`
	TiktokClientKey       string  `envconfig:"TIKTOK_CLIENT_KEY"`
	TiktokClientSecret    string  `envconfig:"TIKTOK_CLIENT_SECRET"`
	TiktokRedirectURI     string  `envconfig:"TIKTOK_REDIRECT_URI"`
	GoogleClientID        string  `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string  `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI     string  `envconfig:"GOOGLE_REDIRECT_URI"`
	GoogleLoginRedirect   string  `envconfig:"GOOGLE_LOGIN_REDIRECT_URI"`
	LinkedinClientID      string  `envconfig:"LINKEDIN_CLIENT_ID"`
	LinkedinClientSecret  string  `envconfig:"LINKEDIN_CLIENT_SECRET"`
	LinkedinRedirectURI   string  `envconfig:"LINKEDIN_REDIRECT_URI"`
	PostgresURI           string  `envconfig:"POSTGRES_URI"`
	RedisURI              string  `envconfig:"REDIS_URI" default:"localhost:6379"`
	FrontendURL           string  `envconfig:"FRONTEND_URL" default:"http://localhost:5173"`
	Port                  string  `envconfig:"PORT" default:"3000"`
	SecretKey             string  `envconfig:"SECRET_KEY"`
	TokenEncryptionKey    string  `envconfig:"TOKEN_ENCRYPTION_KEY" required:"true"`
	AdminUserIDs          []int64 `envconfig:"ADMIN_USER_IDS"`
	CookieName            string  `envconfig:"COOKIE_NAME" default:"postflow_session"`
	LogLevel              string  `envconfig:"LOG_LEVEL" default:"info"`
	R2                    R2
	Publish               Publish
	Queue                 Queue
	Refresh               Refresh
}

// LoadConfig reads .env when present and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warnf("no .env file loaded: %v", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if n := len(cfg.TokenEncryptionKey); n != 32 {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY must be 32 bytes, got %d", n)
	}
	return &cfg, nil
}
