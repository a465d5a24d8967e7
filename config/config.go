package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	IsProd        bool
	DBDriver      string // sqlite or postgres
	DBDSN         string
	SessionSecret string
	UploadsDir    string
	MaxUploadMB   int
	SiteTitle     string
	Domain        string
	SMTP          SMTP
}

type SMTP struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	NotifyTo string // where contact form notifications go
}

// Enabled reports whether enough is configured to send mail.
func (s SMTP) Enabled() bool {
	return s.Host != "" && s.Port != "" && s.From != "" && s.NotifyTo != ""
}

// Load reads the environment, after merging an optional .env file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}

	cfg := &Config{
		Port:          get("PORT", "8080"),
		IsProd:        isProd(get("MODE", os.Getenv("GIN_MODE"))),
		DBDriver:      strings.ToLower(get("DB_DRIVER", "sqlite")),
		DBDSN:         get("DB_DSN", get("sqlite_db", "blogs.db")),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		UploadsDir:    get("UPLOADS_DIR", "static/uploads"),
		MaxUploadMB:   getInt("MAX_UPLOAD_MB", 8),
		SiteTitle:     get("SITE_TITLE", "vatsuoK"),
		Domain:        strings.TrimRight(get("DOMAIN", "http://localhost:8080"), "/"),
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     os.Getenv("SMTP_PORT"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			NotifyTo: os.Getenv("CONTACT_NOTIFY_TO"),
		},
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET environment variable not set")
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	return cfg, nil
}

func isProd(mode string) bool {
	mode = strings.ToLower(mode)
	return strings.HasPrefix(mode, "p") || mode == "release"
}

func get(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
