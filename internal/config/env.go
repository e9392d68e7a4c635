// config/env.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// OverlayEnv applies environment variables on top of cfg. The SMTP_* and
// EMAIL_* names are the ones existing alert setups already export.
func OverlayEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("INTERNWATCH_URL", &cfg.Source.URL)
	str("INTERNWATCH_LOG_LEVEL", &cfg.Log.Level)
	str("SMTP_SERVER", &cfg.Email.Server)
	str("SMTP_USER", &cfg.Email.Username)
	str("EMAIL_FROM", &cfg.Email.From)
	str("TELEGRAM_TOKEN", &cfg.Telegram.Token)

	// passwords are used verbatim
	if v, ok := os.LookupEnv("SMTP_PASS"); ok && v != "" {
		cfg.Email.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("EMAIL_TO")); v != "" {
		cfg.Email.To = strings.Split(v, ",")
	}

	if v := strings.TrimSpace(os.Getenv("SMTP_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT=%q: %w", v, err)
		}
		cfg.Email.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID=%q: %w", v, err)
		}
		cfg.Telegram.ChatID = id
	}
	return nil
}
