package app

import (
	"fmt"
	"strings"
	"time"

	"immowatch/internal/config"
	"immowatch/internal/logstore"
	"immowatch/internal/storage"
	"immowatch/internal/task/scheduler"
	"immowatch/internal/tasks"
	logx "immowatch/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config, operatorReady bool) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Operator: logx.OperatorConfig{
			Enabled:    l.Telegram.Enabled && operatorReady,
			ChatID:     cfg.Telegram.ChatID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapStoreConfig(cfg *config.Config) logstore.Config {
	f := cfg.Files
	files := map[string]string{
		logstore.Journal:       f.Journal,
		logstore.Watch:         f.Watch,
		logstore.Report:        f.Report,
		logstore.Opportunities: f.Opportunities,
		logstore.Agencies:      f.Agencies,
	}
	skip := map[string]bool{}
	for _, n := range f.Untracked {
		skip[strings.TrimSpace(n)] = true
	}
	var tracked []string
	for _, n := range allFiles {
		if !skip[n] {
			tracked = append(tracked, n)
		}
	}
	return logstore.Config{Dir: cfg.DataDir, Files: files, Tracked: tracked}
}

// allFiles is the bootstrap order.
var allFiles = []string{
	logstore.Report,
	logstore.Watch,
	logstore.Opportunities,
	logstore.Journal,
	logstore.Agencies,
}

func mapReportConfig(cfg *config.Config) tasks.ReportConfig {
	r := cfg.Report
	return tasks.ReportConfig{
		Recipients:        r.Recipients,
		SubjectPrefix:     r.SubjectPrefix,
		WatchTail:         r.WatchTail,
		OpportunitiesTail: r.OpportunitiesTail,
		JournalTail:       r.JournalTail,
		Notify:            r.NotifyTelegram,
	}
}

func mapCatalogConfig(cfg *config.Config, loc *time.Location) tasks.Config {
	portals := make([]tasks.Portal, 0, len(cfg.Verify.Portals))
	for _, p := range cfg.Verify.Portals {
		portals = append(portals, tasks.Portal{Name: p.Name, URL: p.URL})
	}
	market := make([]tasks.MarketStat, 0, len(cfg.Market))
	for _, m := range cfg.Market {
		market = append(market, tasks.MarketStat{Locality: m.Locality, PricePerM2: m.PricePerM2, Trend: m.Trend})
	}
	return tasks.Config{
		Location:      loc,
		Localities:    cfg.Watch.Localities,
		URLTemplate:   cfg.Watch.URLTemplate,
		UserAgent:     cfg.Watch.UserAgent,
		WatchTimeout:  config.MustDuration(cfg.Watch.Timeout, 15*time.Second),
		RatePerSec:    cfg.Watch.RatePerSec,
		Portals:       portals,
		VerifyTimeout: config.MustDuration(cfg.Verify.Timeout, 10*time.Second),
		Market:        market,
		Report:        mapReportConfig(cfg),
	}
}

func mapSchedulerConfig(cfg *config.Config, loc *time.Location) scheduler.Config {
	rules := make([]scheduler.Rule, 0, len(cfg.Scheduler.Rules))
	for _, r := range cfg.Scheduler.Rules {
		rules = append(rules, scheduler.Rule{
			Name:         r.Name,
			Hours:        append([]int(nil), r.Hours...),
			MinuteBefore: r.MinuteBefore,
			Key:          scheduler.KeyKind(r.Key),
			Group:        r.Group,
		})
	}
	return scheduler.Config{
		Location: loc,
		Poll:     config.MustDuration(cfg.Scheduler.Poll, time.Minute),
		Rules:    rules,
	}
}
