package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretLength = 16

type Config struct {
	Port           string
	BaseURL        string
	DatabaseURL    string
	RedisURL       string
	MigrationsDir  string
	JWTSecret      string
	SessionTTL     time.Duration
	CookieSecure   bool
	CORSOrigins    []string
	// TrustedProxies lists IPs/CIDRs whose forwarded headers are believed.
	TrustedProxies []string
	Log            LogConfig
	Email          EmailConfig
}

type LogConfig struct {
	File       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Secure   bool
}

func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.Port != 0 && e.From != ""
}

func Load() (Config, error) {
	clean := func(val string) string {
		return strings.Trim(val, "\"' \t\r\n")
	}

	env := strings.ToLower(firstNonEmpty(os.Getenv("APP_ENV"), os.Getenv("NODE_ENV"), "production"))
	development := env == "development" || env == "dev"

	sessionTTL, err := parseDuration(os.Getenv("SESSION_TTL"), 7*24*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("SESSION_TTL: %w", err)
	}

	cfg := Config{
		Port:          getenvDefault("PORT", "5000"),
		BaseURL:       strings.TrimRight(firstNonEmpty(os.Getenv("APP_BASE_URL"), os.Getenv("CLIENT_URL"), "http://localhost:5173"), "/"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      getenvDefault("REDIS_URL", "redis://localhost:6379"),
		MigrationsDir: getenvDefault("MIGRATIONS_DIR", "./migrations"),
		JWTSecret:     clean(os.Getenv("JWT_SECRET")),
		SessionTTL:    sessionTTL,
		CookieSecure:  !development,
		Log: LogConfig{
			File:       os.Getenv("LOG_FILE"),
			Level:      getenvDefault("LOG_LEVEL", "info"),
			MaxSizeMB:  parseInt(os.Getenv("LOG_MAX_SIZE_MB"), 20),
			MaxBackups: parseInt(os.Getenv("LOG_MAX_BACKUPS"), 5),
		},
	}
	if raw := os.Getenv("COOKIE_SECURE"); raw != "" {
		cfg.CookieSecure = parseBool(raw)
	}
	cfg.CORSOrigins = parseList(getenvDefault("CORS_ORIGINS", cfg.BaseURL))
	cfg.TrustedProxies = parseList(os.Getenv("TRUSTED_PROXIES"))

	emailPort := parseInt(os.Getenv("MAIL_PORT"), 587)
	cfg.Email = EmailConfig{
		Host:     clean(os.Getenv("MAIL_HOST")),
		Port:     emailPort,
		Username: clean(os.Getenv("MAIL_USER")),
		Password: clean(os.Getenv("MAIL_PASSWORD")),
		From:     clean(firstNonEmpty(os.Getenv("MAIL_FROM"), os.Getenv("MAIL_USER"))),
		FromName: clean(getenvDefault("MAIL_FROM_NAME", "Attendance System")),
		Secure:   emailPort == 465,
	}
	if raw := os.Getenv("MAIL_SECURE"); raw != "" {
		cfg.Email.Secure = parseBool(raw)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if len(cfg.JWTSecret) < minSecretLength {
		return Config{}, fmt.Errorf("JWT_SECRET is required and must be at least %d characters", minSecretLength)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return Config{}, fmt.Errorf("APP_BASE_URL: %w", err)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBool(val string) bool {
	if val == "" {
		return false
	}
	val = strings.ToLower(strings.Trim(val, "\"' "))
	return val == "1" || val == "true" || val == "yes"
}

func parseInt(val string, def int) int {
	val = strings.Trim(val, "\"' ")
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func parseDuration(val string, def time.Duration) (time.Duration, error) {
	val = strings.Trim(val, "\"' ")
	if val == "" {
		return def, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func parseList(val string) []string {
	parts := strings.Split(val, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
