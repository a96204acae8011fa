// Package tasks holds the agent's task catalog: competitor watch, portal
// verification, market analysis and the daily report, plus the two groups
// the scheduler fires ("watch" and "report").
package tasks

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"immowatch/internal/eventbus"
	"immowatch/internal/logstore"
	logx "immowatch/pkg/logx"
)

// Store is the subset of the log store the catalog needs.
type Store interface {
	Read(name string) string
	Tail(name string, n int) string
	Write(ctx context.Context, name, text string) error
	Append(ctx context.Context, name, text string) error
}

// Mailer delivers the daily report. Send reports success; failures are
// logged by the implementation.
type Mailer interface {
	Enabled() bool
	Send(ctx context.Context, to []string, subject, html string) bool
}

// Notifier posts a short operator notice (Telegram).
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Portal struct {
	Name string
	URL  string
}

type MarketStat struct {
	Locality   string `json:"locality"`
	PricePerM2 int    `json:"price_per_m2"`
	Trend      string `json:"trend"`
}

// ReportConfig is the hot-reloadable part of the catalog.
type ReportConfig struct {
	Recipients        []string
	SubjectPrefix     string
	WatchTail         int
	OpportunitiesTail int
	JournalTail       int
	Notify            bool
}

type Config struct {
	Location *time.Location

	Localities   []string
	URLTemplate  string
	UserAgent    string
	WatchTimeout time.Duration
	RatePerSec   float64

	Portals       []Portal
	VerifyTimeout time.Duration

	Market []MarketStat
	Report ReportConfig
}

type Deps struct {
	Store    Store
	Mailer   Mailer
	Notifier Notifier
	Bus      eventbus.Bus
	HTTP     *http.Client
	Log      logx.Logger
	// Now is overridable in tests.
	Now func() time.Time
}

type Catalog struct {
	cfg      Config
	store    Store
	mailer   Mailer
	notifier Notifier
	bus      eventbus.Bus
	http     *http.Client
	limiter  *rate.Limiter
	log      logx.Logger
	now      func() time.Time

	mu     sync.RWMutex
	report ReportConfig
}

func New(cfg Config, d Deps) *Catalog {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.HTTP == nil {
		d.HTTP = &http.Client{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WatchTimeout <= 0 {
		cfg.WatchTimeout = 15 * time.Second
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	c := &Catalog{
		cfg:      cfg,
		store:    d.Store,
		mailer:   d.Mailer,
		notifier: d.Notifier,
		bus:      d.Bus,
		http:     d.HTTP,
		limiter:  rate.NewLimiter(limit, 1),
		log:      d.Log.With(logx.String("comp", "tasks")),
		now:      d.Now,
	}
	c.SetReport(cfg.Report)
	return c
}

// SetReport swaps recipients, subject and tail sizes at runtime.
func (c *Catalog) SetReport(r ReportConfig) {
	r.Recipients = append([]string(nil), r.Recipients...)
	if r.SubjectPrefix == "" {
		r.SubjectPrefix = "Daily report"
	}
	if r.WatchTail <= 0 {
		r.WatchTail = 2000
	}
	if r.OpportunitiesTail <= 0 {
		r.OpportunitiesTail = 1000
	}
	if r.JournalTail <= 0 {
		r.JournalTail = 3000
	}
	c.mu.Lock()
	c.report = r
	c.mu.Unlock()
}

func (c *Catalog) reportConfig() ReportConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.report
}

// Now returns the current time in the business timezone.
func (c *Catalog) Now() time.Time { return c.now().In(c.cfg.Location) }

// Record appends one timestamped line to the activity journal. A failed
// append is logged and otherwise ignored.
func (c *Catalog) Record(ctx context.Context, msg string) {
	line := "[" + c.Now().Format("2006-01-02 15:04:05") + "] " + msg + "\n"
	c.log.Info(msg)
	if c.store == nil {
		return
	}
	if err := c.store.Append(ctx, logstore.Journal, line); err != nil {
		c.log.Warn("journal append failed", logx.Err(err))
	}
}
