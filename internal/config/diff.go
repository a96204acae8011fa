package config

import (
	"reflect"
	"sort"
	"strings"

	logx "immowatch/pkg/logx"
)

// SummarizeConfigChange compares two configs. It returns the changed
// sections that apply live, safe log attrs (never secrets) and the changed
// sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (live []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		live = append(live, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Report.Recipients, newCfg.Report.Recipients) ||
		oldCfg.Report.SubjectPrefix != newCfg.Report.SubjectPrefix ||
		oldCfg.Report.NotifyTelegram != newCfg.Report.NotifyTelegram {
		live = append(live, "report")
		attrs = append(attrs,
			logx.Int("report.recipient_count", len(newCfg.Report.Recipients)),
			logx.Bool("report.notify_telegram", newCfg.Report.NotifyTelegram),
		)
	}

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		restart = append(restart, "timezone")
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		restart = append(restart, "scheduler")
	}
	if oldCfg.DataDir != newCfg.DataDir || !reflect.DeepEqual(oldCfg.Files, newCfg.Files) {
		restart = append(restart, "files")
	}
	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		restart = append(restart, "server")
	}
	if !reflect.DeepEqual(oldCfg.Watch, newCfg.Watch) ||
		!reflect.DeepEqual(oldCfg.Verify, newCfg.Verify) ||
		!reflect.DeepEqual(oldCfg.Market, newCfg.Market) {
		restart = append(restart, "tasks")
	}
	// Secret fields only count as "set or unset".
	if oldCfg.Sync.Owner != newCfg.Sync.Owner || oldCfg.Sync.Repo != newCfg.Sync.Repo ||
		oldCfg.Sync.Branch != newCfg.Sync.Branch || (oldCfg.Sync.Token == "") != (newCfg.Sync.Token == "") {
		restart = append(restart, "sync")
		attrs = append(attrs, logx.Bool("sync.token_set", newCfg.Sync.Token != ""))
	}
	if oldCfg.Mail.Host != newCfg.Mail.Host || oldCfg.Mail.Port != newCfg.Mail.Port ||
		oldCfg.Mail.User != newCfg.Mail.User || (oldCfg.Mail.Password == "") != (newCfg.Mail.Password == "") {
		restart = append(restart, "mail")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		restart = append(restart, "storage")
	}

	sort.Strings(live)
	sort.Strings(restart)
	return live, attrs, restart
}
