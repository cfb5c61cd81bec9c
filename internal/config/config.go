package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the whole environment surface of the server. Defaults keep
// a dev instance bootable with no env set; SMTP stays disabled until a
// host is configured.
type Config struct {
	Addr          string `env:"EAMS_ADDR" envDefault:":3000"`
	SQLitePath    string `env:"EAMS_SQLITE_PATH" envDefault:"data/sessions.db"`
	MigrationsDir string `env:"EAMS_MIGRATIONS_DIR"`

	// JWTSecret signs the email-verification tokens.
	JWTSecret string `env:"EAMS_JWT_SECRET" envDefault:"eams-dev-secret"`

	// BaseURL is the public origin verification links point back at.
	BaseURL string `env:"EAMS_BASE_URL" envDefault:"http://localhost:3000"`

	// CORSOrigin is the single allowed frontend origin.
	CORSOrigin string `env:"EAMS_CORS_ORIGIN" envDefault:"https://easthma.ca"`

	SMTPHost string `env:"EAMS_SMTP_HOST"`
	SMTPPort int    `env:"EAMS_SMTP_PORT" envDefault:"465"`
	SMTPUser string `env:"EMAIL_USER"`
	SMTPPass string `env:"EMAIL_PASS"`
	MailFrom string `env:"EAMS_MAIL_FROM"`

	// LogoPath points at the certificate header image; empty renders
	// the certificate without one.
	LogoPath string `env:"EAMS_LOGO_PATH" envDefault:"eams.png"`

	Commit    string `env:"EAMS_COMMIT"`
	BuildTime string `env:"EAMS_BUILD_TIME"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}
	return cfg, nil
}
