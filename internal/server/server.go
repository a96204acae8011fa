// Package server is the status endpoint: a small dashboard, manual
// triggers for the watch and report tasks, and a JSON status view. It runs
// alongside the scheduler and shares the log store with it; it never
// touches scheduler state.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"immowatch/internal/logstore"
	"immowatch/internal/storage"
	"immowatch/internal/task/scheduler"
	"immowatch/internal/tasks"
	logx "immowatch/pkg/logx"
)

type Catalog interface {
	Run(ctx context.Context, name, trigger string) error
	Now() time.Time
}

type Store interface {
	Tail(name string, n int) string
}

type Schedules interface {
	Snapshot() []scheduler.RuleState
}

type History interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.RunRecord, error)
}

type Config struct {
	Addr string
	// Repo is the remote mirror shown on /status ("owner/name").
	Repo string

	JournalTail int
	WatchTail   int
	RecentRuns  int

	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type Deps struct {
	Catalog   Catalog
	Store     Store
	Schedules Schedules // optional
	History   History   // optional
	Log       logx.Logger
}

type Server struct {
	cfg  Config
	cat  Catalog
	st   Store
	sch  Schedules
	hist History
	log  logx.Logger
}

func New(cfg Config, d Deps) *Server {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if cfg.JournalTail <= 0 {
		cfg.JournalTail = 5000
	}
	if cfg.WatchTail <= 0 {
		cfg.WatchTail = 3000
	}
	if cfg.RecentRuns <= 0 {
		cfg.RecentRuns = 20
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		cfg:  cfg,
		cat:  d.Catalog,
		st:   d.Store,
		sch:  d.Schedules,
		hist: d.History,
		log:  d.Log.With(logx.String("comp", "server")),
	}
}

// Addr joins host and port; an empty host listens on every interface.
func Addr(host string, port int) string {
	return net.JoinHostPort(strings.TrimSpace(host), strconv.Itoa(port))
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /trigger-watch", s.trigger(tasks.TaskCollect))
	mux.HandleFunc("GET /trigger-report", s.trigger(tasks.TaskReport))
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", http.NotFound)
	return mux
}

// trigger runs the task to completion, then sends the browser back to
// the dashboard. A client hanging up does not abort the run.
func (s *Server) trigger(task string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("manual trigger", logx.String("task", task), logx.String("remote", r.RemoteAddr))
		if err := s.cat.Run(context.WithoutCancel(r.Context()), task, tasks.TriggerManual); err != nil {
			s.log.Warn("manual run failed", logx.String("task", task), logx.Err(err))
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// Serve listens on cfg.Addr until ctx is done, then shuts down within
// ShutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
	}
	defer func() { _ = srv.Close() }()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn("shutdown incomplete", logx.Err(err))
		}
	}()

	s.log.Info("status server started", logx.String("addr", ln.Addr().String()))
	err := srv.Serve(ln)
	if ctx.Err() != nil {
		<-stopped
		s.log.Info("status server stopped")
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("status server exited unexpectedly")
	}
	return err
}

func (s *Server) journalTail() string {
	if s.st == nil {
		return ""
	}
	return s.st.Tail(logstore.Journal, s.cfg.JournalTail)
}

func (s *Server) watchTail() string {
	if s.st == nil {
		return ""
	}
	return s.st.Tail(logstore.Watch, s.cfg.WatchTail)
}

func (s *Server) recentRuns(ctx context.Context) []storage.RunRecord {
	if s.hist == nil {
		return nil
	}
	runs, err := s.hist.RecentRuns(ctx, s.cfg.RecentRuns)
	if err != nil {
		s.log.Debug("recent runs unavailable", logx.Err(err))
		return nil
	}
	return runs
}
