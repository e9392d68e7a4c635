package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// Err folds the errors into one, or returns nil.
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return errors.New("config validation failed:\n- " + strings.Join(v.Errors, "\n- "))
}

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong
// with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}
	lower := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	out.Email.To = trimList(out.Email.To)
	out.Source.URL = strings.TrimSpace(out.Source.URL)
	out.Source.Format = lower(out.Source.Format)
	out.Storage.Driver = lower(out.Storage.Driver)
	out.Polling.Cron = strings.TrimSpace(out.Polling.Cron)
	out.Log.Level = lower(out.Log.Level)
	out.Log.Format = lower(out.Log.Format)

	// ---- source ----

	if u, err := url.Parse(out.Source.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		res.addErr("source.url must be an http(s) URL, got %q", out.Source.URL)
	}
	switch out.Source.Format {
	case "":
		out.Source.Format = "markdown"
	case "markdown", "html", "auto":
	default:
		res.addErr("source.format must be markdown, html or auto, got %q", out.Source.Format)
	}
	if out.Source.TimeoutSeconds < 0 {
		res.addErr("source.timeout_seconds must be >= 0")
	}
	if out.Source.RatePerMinute <= 0 {
		res.addErr("source.rate_per_minute must be > 0")
	}

	// ---- storage ----

	switch out.Storage.Driver {
	case "":
		out.Storage.Driver = "file"
	case "file", "sqlite":
	default:
		res.addErr("storage.driver must be file or sqlite, got %q", out.Storage.Driver)
	}

	// ---- polling ----

	if out.Polling.IntervalSeconds < 0 {
		res.addErr("polling.interval_seconds must be >= 0")
	} else if out.Polling.IntervalSeconds > 0 && out.Polling.IntervalSeconds < 60 {
		res.addWarn("polling.interval_seconds is very low (%d); GitHub may rate limit raw downloads.", out.Polling.IntervalSeconds)
	}
	if out.Polling.Cron != "" {
		if _, err := cron.ParseStandard(out.Polling.Cron); err != nil {
			res.addErr("polling.cron %q: %v", out.Polling.Cron, err)
		}
		if out.Polling.IntervalSeconds > 0 {
			res.addWarn("polling.cron is set; polling.interval_seconds is ignored.")
		}
	}

	// ---- notifiers ----

	if out.Email.Enabled {
		if strings.TrimSpace(out.Email.Server) == "" {
			res.addErr("email.smtp_server is required when email.enabled=true (or set SMTP_SERVER)")
		}
		if strings.TrimSpace(out.Email.Username) == "" {
			res.addErr("email.username is required when email.enabled=true (or set SMTP_USER)")
		}
		if out.Email.Port <= 0 || out.Email.Port > 65535 {
			res.addErr("email.smtp_port must be 1..65535")
		}
	}
	if out.Telegram.Enabled {
		if strings.TrimSpace(out.Telegram.Token) == "" {
			res.addErr("telegram.token is required when telegram.enabled=true (or set TELEGRAM_TOKEN)")
		}
		if out.Telegram.ChatID == 0 {
			res.addErr("telegram.chat_id is required when telegram.enabled=true")
		}
	}
	if !out.Email.Enabled && !out.Telegram.Enabled {
		res.addWarn("no notifier enabled; new listings are only logged.")
	}

	// ---- http / log ----

	if out.HTTP.Enabled {
		if _, _, err := net.SplitHostPort(out.HTTP.Addr); err != nil {
			res.addErr("http.addr %q: %v", out.HTTP.Addr, err)
		}
	}
	switch out.Log.Format {
	case "":
		out.Log.Format = "console"
	case "console", "json":
	default:
		res.addErr("log.format must be console or json, got %q", out.Log.Format)
	}

	return out, res
}
