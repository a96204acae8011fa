package config

// Config is the on-disk configuration (JSON or YAML).
//
// Secrets (tokens, SMTP password) may be set here but the environment
// always wins; see ApplyEnv.
type Config struct {
	// Timezone is the IANA zone every schedule window and timestamp uses.
	Timezone string `json:"timezone"`
	// DataDir holds the tracked text files.
	DataDir string `json:"data_dir"`

	Files     FilesConfig     `json:"files"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Server    ServerConfig    `json:"server"`
	Watch     WatchConfig     `json:"watch"`
	Verify    VerifyConfig    `json:"verify"`
	Market    []MarketEntry   `json:"market"`
	Report    ReportConfig    `json:"report"`
	Sync      SyncConfig      `json:"sync"`
	Mail      MailConfig      `json:"mail"`
	Scraper   ScraperConfig   `json:"scraper"`
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

// FilesConfig maps logical log names to file names inside DataDir.
type FilesConfig struct {
	Journal       string `json:"journal"`
	Watch         string `json:"watch"`
	Report        string `json:"report"`
	Opportunities string `json:"opportunities"`
	Agencies      string `json:"agencies"`
	// Untracked lists logical names that are never pushed to the remote.
	Untracked []string `json:"untracked,omitempty"`
}

type SchedulerConfig struct {
	// Poll is a Go duration string; default "60s".
	Poll  string       `json:"poll"`
	Rules []RuleConfig `json:"rules"`
}

// RuleConfig is one time window.
//
// Example:
//
//	{ "name": "watch", "hours": [8,10,12], "minute_before": 5, "key": "hour", "group": "watch" }
type RuleConfig struct {
	Name         string `json:"name"`
	Hours        []int  `json:"hours"`
	MinuteBefore int    `json:"minute_before"`
	// Key is "hour" (once per clock hour) or "date" (once per day).
	Key   string `json:"key"`
	Group string `json:"group"`
}

type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host,omitempty"`

	JournalTail int `json:"journal_tail,omitempty"`
	WatchTail   int `json:"watch_tail,omitempty"`
	RecentRuns  int `json:"recent_runs,omitempty"`

	ReadTimeout     string `json:"read_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type WatchConfig struct {
	Localities []string `json:"localities"`
	// URLTemplate is fetched once per locality with "{locality}" replaced.
	// Empty records the pass without fetching.
	URLTemplate string  `json:"url_template,omitempty"`
	UserAgent   string  `json:"user_agent,omitempty"`
	Timeout     string  `json:"timeout,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
}

type VerifyConfig struct {
	Portals []PortalConfig `json:"portals"`
	Timeout string         `json:"timeout,omitempty"`
}

type PortalConfig struct {
	Name string `json:"name"`
	// URL is probed with HEAD; empty means not checked.
	URL string `json:"url,omitempty"`
}

type MarketEntry struct {
	Locality   string `json:"locality"`
	PricePerM2 int    `json:"price_per_m2"`
	Trend      string `json:"trend"`
}

type ReportConfig struct {
	Recipients        []string `json:"recipients"`
	SubjectPrefix     string   `json:"subject_prefix,omitempty"`
	WatchTail         int      `json:"watch_tail,omitempty"`
	OpportunitiesTail int      `json:"opportunities_tail,omitempty"`
	JournalTail       int      `json:"journal_tail,omitempty"`
	// NotifyTelegram posts a one-line notice to telegram.chat_id after sending.
	NotifyTelegram bool `json:"notify_telegram,omitempty"`
}

type SyncConfig struct {
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	Branch  string `json:"branch,omitempty"`
	Token   string `json:"token,omitempty"` // do not log
	BaseURL string `json:"base_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type MailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	FromName string `json:"from_name,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type ScraperConfig struct {
	Token          string `json:"token,omitempty"` // do not log
	BaseURL        string `json:"base_url,omitempty"`
	StartTimeout   string `json:"start_timeout,omitempty"`
	StatusTimeout  string `json:"status_timeout,omitempty"`
	ResultsTimeout string `json:"results_timeout,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"` // do not log
	ChatID int64  `json:"chat_id,omitempty"`
	// URL overrides the Bot API endpoint.
	URL string `json:"url,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the run-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/runs.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
