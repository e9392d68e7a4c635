// internal/config/config.go
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultURL     = "https://raw.githubusercontent.com/vanshb03/Summer2026-Internships/main/README.md"
	DefaultPageURL = "https://github.com/vanshb03/Summer2026-Internships"
)

type Config struct {
	Source struct {
		URL            string  `yaml:"url"`
		PageURL        string  `yaml:"page_url"`
		Format         string  `yaml:"format"` // markdown | html | auto
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		UserAgent      string  `yaml:"user_agent"`
		RatePerMinute  float64 `yaml:"rate_per_minute"`
	} `yaml:"source"`

	Storage struct {
		Driver string `yaml:"driver"` // file | sqlite
		Path   string `yaml:"path"`
	} `yaml:"storage"`

	Polling struct {
		IntervalSeconds int    `yaml:"interval_seconds"`
		Cron            string `yaml:"cron"`
	} `yaml:"polling"`

	Email struct {
		Enabled  bool     `yaml:"enabled"`
		Server   string   `yaml:"smtp_server"`
		Port     int      `yaml:"smtp_port"`
		StartTLS bool     `yaml:"starttls"`
		Username string   `yaml:"username"`
		Password string   `yaml:"password,omitempty"` // prefer SMTP_PASS or the keychain
		From     string   `yaml:"from"`
		To       []string `yaml:"to"`
	} `yaml:"email"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		Token    string `yaml:"token,omitempty"`
		ChatID   int64  `yaml:"chat_id"`
		ThreadID int    `yaml:"thread_id"`
	} `yaml:"telegram"`

	HTTP struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`
}

// Default returns the configuration used when the file leaves a field unset.
func Default() Config {
	var cfg Config
	cfg.Source.URL = DefaultURL
	cfg.Source.PageURL = DefaultPageURL
	cfg.Source.Format = "markdown"
	cfg.Source.TimeoutSeconds = 30
	cfg.Source.RatePerMinute = 6
	cfg.Storage.Driver = "file"
	cfg.Email.Enabled = true
	cfg.Email.Port = 465
	cfg.HTTP.Addr = "127.0.0.1:38472"
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// Load reads path over Default().
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}

func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalSeconds) * time.Second
}

// Scheduled reports whether the config asks for a polling loop.
func (c Config) Scheduled() bool {
	return c.Polling.Cron != "" || c.Polling.IntervalSeconds > 0
}

const redacted = "********"

// Redacted returns a copy safe to expose, with secrets masked.
func (c Config) Redacted() Config {
	if c.Email.Password != "" {
		c.Email.Password = redacted
	}
	if c.Telegram.Token != "" {
		c.Telegram.Token = redacted
	}
	c.Email.To = append([]string(nil), c.Email.To...)
	return c
}
