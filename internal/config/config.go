package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime knob the service reads from the environment.
type Config struct {
	Addr        string `env:"CIVITEC_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"CIVITEC_PG_DSN"`

	AuthSecret string        `env:"CIVITEC_AUTH_SECRET"`
	TokenTTL   time.Duration `env:"CIVITEC_TOKEN_TTL" envDefault:"15m"`

	// Invite onboarding.
	InviteExpiresHours int    `env:"CIVITEC_INVITE_EXPIRES_HOURS" envDefault:"72"`
	FrontendBaseURL    string `env:"CIVITEC_FRONTEND_BASE_URL" envDefault:"http://localhost:3000"`

	// Outbound mail. When SMTPHost is empty the console sender is used.
	SMTPHost     string `env:"CIVITEC_SMTP_HOST"`
	SMTPPort     int    `env:"CIVITEC_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"CIVITEC_SMTP_USERNAME"`
	SMTPPassword string `env:"CIVITEC_SMTP_PASSWORD"`
	EmailFrom    string `env:"CIVITEC_EMAIL_FROM" envDefault:"no-reply@civitec.local"`

	RateBurst  int `env:"CIVITEC_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"CIVITEC_RATE_PER_SEC" envDefault:"10"`
}

// Load parses configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if cfg.InviteExpiresHours <= 0 {
		cfg.InviteExpiresHours = 72
	}
	return cfg, nil
}

// InviteTTL returns the invite validity window as a duration.
func (c Config) InviteTTL() time.Duration {
	return time.Duration(c.InviteExpiresHours) * time.Hour
}
