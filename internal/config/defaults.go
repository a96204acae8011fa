package config

import "strings"

const (
	DefaultTimezone = "Europe/Paris"
	DefaultPort     = 8080

	// Remote mirror used when neither the file nor GITHUB_REPO names one.
	DefaultSyncOwner = "laetony-cmd"
	DefaultSyncRepo  = "axi-agences"
)

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: &StorageConfig{Driver: "file", Path: "./runs"},
	}
	cfg.fillDefaults()
	return cfg
}

// fillDefaults sets every omitted field. Durations stay strings here and
// are parsed by the caller.
func (c *Config) fillDefaults() {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "."
	}

	f := &c.Files
	setStr(&f.Journal, "activity_journal.txt")
	setStr(&f.Watch, "competitor_watch.txt")
	setStr(&f.Report, "daily_report.txt")
	setStr(&f.Opportunities, "opportunities.txt")
	setStr(&f.Agencies, "agency_config.txt")

	setStr(&c.Scheduler.Poll, "60s")
	if len(c.Scheduler.Rules) == 0 {
		c.Scheduler.Rules = []RuleConfig{
			{Name: "watch", Hours: []int{8, 10, 12, 14, 16}, MinuteBefore: 5, Key: "hour", Group: "watch"},
			{Name: "report", Hours: []int{18}, MinuteBefore: 5, Key: "date", Group: "report"},
		}
	}

	s := &c.Server
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	setInt(&s.JournalTail, 5000)
	setInt(&s.WatchTail, 3000)
	setInt(&s.RecentRuns, 20)
	setStr(&s.ReadTimeout, "10s")
	setStr(&s.ShutdownTimeout, "5s")

	if len(c.Watch.Localities) == 0 {
		c.Watch.Localities = []string{"vergt", "le-bugue", "perigueux", "bergerac", "sarlat"}
	}
	setStr(&c.Watch.UserAgent, "Mozilla/5.0 (X11; Linux x86_64) immowatch")
	setStr(&c.Watch.Timeout, "15s")
	if c.Watch.RatePerSec <= 0 {
		c.Watch.RatePerSec = 1
	}

	if len(c.Verify.Portals) == 0 {
		c.Verify.Portals = []PortalConfig{
			{Name: "seloger", URL: "https://www.seloger.com"},
			{Name: "leboncoin", URL: "https://www.leboncoin.fr"},
			{Name: "bienici", URL: "https://www.bienici.com"},
		}
	}
	setStr(&c.Verify.Timeout, "10s")

	if len(c.Market) == 0 {
		c.Market = []MarketEntry{
			{Locality: "vergt", PricePerM2: 1850, Trend: "+2%"},
			{Locality: "le_bugue", PricePerM2: 2100, Trend: "+1%"},
			{Locality: "perigueux", PricePerM2: 1650, Trend: "stable"},
		}
	}

	r := &c.Report
	setStr(&r.SubjectPrefix, "Daily report")
	setInt(&r.WatchTail, 2000)
	setInt(&r.OpportunitiesTail, 1000)
	setInt(&r.JournalTail, 3000)

	setStr(&c.Sync.Owner, DefaultSyncOwner)
	setStr(&c.Sync.Repo, DefaultSyncRepo)
	setStr(&c.Sync.Branch, "main")
	setStr(&c.Sync.Timeout, "10s")

	m := &c.Mail
	setStr(&m.Host, "smtp.gmail.com")
	if m.Port == 0 {
		m.Port = 465
	}
	setStr(&m.FromName, "Immowatch")
	setStr(&m.Timeout, "30s")

	sc := &c.Scraper
	setStr(&sc.BaseURL, "https://api.apify.com")
	setStr(&sc.StartTimeout, "30s")
	setStr(&sc.StatusTimeout, "10s")
	setStr(&sc.ResultsTimeout, "60s")

	setStr(&c.Logging.Level, "info")
	if c.Logging.Telegram.RatePerSec == 0 {
		c.Logging.Telegram.RatePerSec = 1
	}
}

func setStr(p *string, def string) {
	if strings.TrimSpace(*p) == "" {
		*p = def
	}
}

func setInt(p *int, def int) {
	if *p <= 0 {
		*p = def
	}
}
