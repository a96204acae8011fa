package config

import (
	"fmt"
	"strings"
	"time"

	logx "immowatch/pkg/logx"
)

// Groups that a rule may name.
var knownGroups = map[string]bool{"watch": true, "report": true}

// Validate checks a filled config. Reloads that fail validation are
// rejected before they are published.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone)); err != nil {
		return fmt.Errorf("timezone: invalid %q: %w", cfg.Timezone, err)
	}

	if _, err := ParseDurationField("scheduler.poll", cfg.Scheduler.Poll); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, r := range cfg.Scheduler.Rules {
		at := fmt.Sprintf("scheduler.rules[%d]", i)
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return fmt.Errorf("%s.name is required", at)
		}
		if seen[name] {
			return fmt.Errorf("%s.name %q is duplicated", at, name)
		}
		seen[name] = true
		if len(r.Hours) == 0 {
			return fmt.Errorf("%s.hours is empty", at)
		}
		for _, h := range r.Hours {
			if h < 0 || h > 23 {
				return fmt.Errorf("%s.hours: %d out of range 0..23", at, h)
			}
		}
		if r.MinuteBefore < 1 || r.MinuteBefore > 60 {
			return fmt.Errorf("%s.minute_before: %d out of range 1..60", at, r.MinuteBefore)
		}
		switch r.Key {
		case "hour", "date":
		default:
			return fmt.Errorf("%s.key: want hour or date, got %q", at, r.Key)
		}
		if !knownGroups[r.Group] {
			return fmt.Errorf("%s.group: unknown %q", at, r.Group)
		}
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port: invalid %d", cfg.Server.Port)
	}
	for path, raw := range map[string]string{
		"server.read_timeout":     cfg.Server.ReadTimeout,
		"server.shutdown_timeout": cfg.Server.ShutdownTimeout,
		"watch.timeout":           cfg.Watch.Timeout,
		"verify.timeout":          cfg.Verify.Timeout,
		"sync.timeout":            cfg.Sync.Timeout,
		"mail.timeout":            cfg.Mail.Timeout,
		"scraper.start_timeout":   cfg.Scraper.StartTimeout,
		"scraper.status_timeout":  cfg.Scraper.StatusTimeout,
		"scraper.results_timeout": cfg.Scraper.ResultsTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if cfg.Watch.URLTemplate != "" && !strings.Contains(cfg.Watch.URLTemplate, "{locality}") {
		return fmt.Errorf("watch.url_template must contain {locality}")
	}
	if (cfg.Sync.Owner == "") != (cfg.Sync.Repo == "") {
		return fmt.Errorf("sync.owner and sync.repo must be set together")
	}
	for _, rcpt := range cfg.Report.Recipients {
		if !strings.Contains(rcpt, "@") {
			return fmt.Errorf("report.recipients: invalid address %q", rcpt)
		}
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown %q", cfg.Logging.Level)
	}
	if !logx.ValidLevel(cfg.Logging.Telegram.MinLevel) {
		return fmt.Errorf("logging.telegram.min_level: unknown %q", cfg.Logging.Telegram.MinLevel)
	}
	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
