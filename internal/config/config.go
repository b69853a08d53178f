package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort             string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL          string `env:"DATABASE_URL"`
	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`
	LLMAPIKey            string `env:"LLM_API_KEY"`
	LLMBaseURL           string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel             string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	ResponderURL         string `env:"RESPONDER_URL"`
	ResponderSecret      string `env:"RESPONDER_SECRET"`
	RealtimeDriver       string `env:"REALTIME_DRIVER" envDefault:"postgres"`
	SMTPHost             string `env:"SMTP_HOST"`
	SMTPPort             int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser             string `env:"SMTP_USER"`
	SMTPPass             string `env:"SMTP_PASS"`
	SMTPFrom             string `env:"SMTP_FROM"`
	SMTPFromName         string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS           bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	RedisAddr            string `env:"REDIS_ADDR"`
	RedisPassword        string `env:"REDIS_PASSWORD"`
	RedisDB              int    `env:"REDIS_DB" envDefault:"0"`
	RequireVerifiedEmail bool   `env:"AUTH_REQUIRE_VERIFIED_EMAIL" envDefault:"false"`
	SignInRateLimit      int    `env:"SIGNIN_RATE_LIMIT" envDefault:"10"`
	MaxMessageLength     int    `env:"MAX_MESSAGE_LENGTH" envDefault:"4000"`
}

// Drivers de tiempo real soportados.
const (
	RealtimeMemory   = "memory"
	RealtimePostgres = "postgres"
	RealtimeRedis    = "redis"
)

var ErrDatabaseURLMissing = errors.New("DATABASE_URL is required")

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, ErrDatabaseURLMissing
	}
	return &cfg, nil
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLMinutes) * time.Minute
}

// ClientConfig agrupa la configuración del cliente de terminal.
type ClientConfig struct {
	APIURL                string `env:"VARTALAP_API_URL" envDefault:"http://localhost:8080"`
	SessionFile           string `env:"VARTALAP_SESSION_FILE"`
	LogFile               string `env:"VARTALAP_LOG_FILE" envDefault:"vartalap.log"`
	MaxMessageLength      int    `env:"MAX_MESSAGE_LENGTH" envDefault:"4000"`
	RequestTimeoutSeconds int    `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
}

// LoadClientConfig carga la configuración del cliente desde variables de entorno.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
