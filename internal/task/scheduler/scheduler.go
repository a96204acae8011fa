// Package scheduler fires task groups inside fixed wall-clock windows.
//
// A rule is eligible while the local hour is in its hour set and the
// minute is below its threshold. It fires at most once per de-duplication
// key: the clock hour for intraday rules, the calendar date for daily
// rules. Ticks poll the clock; a missed tick inside the window is caught up
// by the next one.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	logx "immowatch/pkg/logx"
)

const DefaultTimezone = "Europe/Paris"

// KeyKind selects the de-duplication period.
type KeyKind string

const (
	KeyHour KeyKind = "hour"
	KeyDate KeyKind = "date"
)

func (k KeyKind) format(t time.Time) string {
	if k == KeyDate {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02T15")
}

type Rule struct {
	Name         string
	Hours        []int
	MinuteBefore int
	Key          KeyKind
	Group        string
}

func (r Rule) inWindow(t time.Time) bool {
	if t.Minute() >= r.MinuteBefore {
		return false
	}
	h := t.Hour()
	for _, x := range r.Hours {
		if x == h {
			return true
		}
	}
	return false
}

// Runner executes one task group. Errors and panics are logged by the
// scheduler and never stop the loop.
type Runner func(ctx context.Context, group string) error

type Config struct {
	Location *time.Location
	Poll     time.Duration
	Rules    []Rule
}

type Option func(*Scheduler)

// WithHeartbeat calls fn at the start of every tick (systemd watchdog).
func WithHeartbeat(fn func() bool) Option { return func(s *Scheduler) { s.heartbeat = fn } }

// WithFailureHook calls fn after a group returns an error or panics, with
// the rule and group names. The key is recorded regardless.
func WithFailureHook(fn func(ctx context.Context, rule, group string, err error)) Option {
	return func(s *Scheduler) { s.onFailure = fn }
}

// WithClock overrides time.Now for the polling loop.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// Scheduler owns the last-fired table. Nothing outside Tick mutates it.
type Scheduler struct {
	loc   *time.Location
	poll  time.Duration
	rules []Rule
	run   Runner
	log   logx.Logger

	heartbeat func() bool
	onFailure func(ctx context.Context, rule, group string, err error)
	now       func() time.Time

	tickMu sync.Mutex

	mu    sync.Mutex
	state []ruleState
}

type ruleState struct {
	lastKey   string
	lastFired time.Time
	lastErr   string
	fires     int
}

// LoadLocation resolves the business timezone. Empty means Europe/Paris;
// an unknown zone is an error, never a silent fallback.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

func New(cfg Config, run Runner, log logx.Logger, opts ...Option) (*Scheduler, error) {
	if run == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if cfg.Location == nil {
		return nil, errors.New("scheduler: location is required")
	}
	if cfg.Poll <= 0 {
		cfg.Poll = time.Minute
	}
	if cfg.Poll < time.Second {
		cfg.Poll = time.Second
	}
	if err := validateRules(cfg.Rules); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		loc:   cfg.Location,
		poll:  cfg.Poll,
		rules: append([]Rule(nil), cfg.Rules...),
		run:   run,
		log:   log.With(logx.String("comp", "scheduler")),
		now:   time.Now,
		state: make([]ruleState, len(cfg.Rules)),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func validateRules(rules []Rule) error {
	seen := map[string]bool{}
	for i, r := range rules {
		where := fmt.Sprintf("scheduler: rule %d", i)
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		if seen[r.Name] {
			return fmt.Errorf("%s: duplicate name %q", where, r.Name)
		}
		seen[r.Name] = true
		if len(r.Hours) == 0 {
			return fmt.Errorf("%s (%s): hours are required", where, r.Name)
		}
		for _, h := range r.Hours {
			if h < 0 || h > 23 {
				return fmt.Errorf("%s (%s): hour %d out of range", where, r.Name, h)
			}
		}
		if r.MinuteBefore < 1 || r.MinuteBefore > 60 {
			return fmt.Errorf("%s (%s): minute_before must be 1..60", where, r.Name)
		}
		if r.Key != KeyHour && r.Key != KeyDate {
			return fmt.Errorf("%s (%s): key must be hour or date", where, r.Name)
		}
		if strings.TrimSpace(r.Group) == "" {
			return fmt.Errorf("%s (%s): group is required", where, r.Name)
		}
	}
	return nil
}

func (s *Scheduler) Location() *time.Location { return s.loc }

// Tick evaluates every rule at now, in declaration order, and runs the
// groups that are due. It returns the names of the rules that fired. The
// key is recorded even when the group fails.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []string {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.heartbeat != nil {
		s.heartbeat()
	}
	local := now.In(s.loc)

	var fired []string
	for i, r := range s.rules {
		if ctx.Err() != nil {
			return fired
		}
		if !r.inWindow(local) {
			continue
		}
		key := r.Key.format(local)
		s.mu.Lock()
		last := s.state[i].lastKey
		s.mu.Unlock()
		if key == last {
			continue
		}

		log := s.log.With(logx.String("rule", r.Name), logx.String("group", r.Group), logx.String("key", key))
		log.Info("rule firing")
		start := time.Now()
		err := s.fire(ctx, r.Group)
		took := time.Since(start)
		if err != nil {
			log.Error("group failed", logx.Duration("took", took), logx.Err(err))
			if s.onFailure != nil {
				s.onFailure(ctx, r.Name, r.Group, err)
			}
		} else {
			log.Debug("group done", logx.Duration("took", took))
		}

		s.mu.Lock()
		st := &s.state[i]
		st.lastKey = key
		st.lastFired = local
		st.fires++
		st.lastErr = ""
		if err != nil {
			st.lastErr = err.Error()
		}
		s.mu.Unlock()
		fired = append(fired, r.Name)
	}
	return fired
}

func (s *Scheduler) fire(ctx context.Context, group string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("group panicked", logx.String("group", group), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.run(ctx, group)
}

// RuleState is a read-only copy of one rule and its last firing.
type RuleState struct {
	Name         string    `json:"name"`
	Group        string    `json:"group"`
	Hours        []int     `json:"hours"`
	MinuteBefore int       `json:"minute_before"`
	Key          string    `json:"key"`
	LastKey      string    `json:"last_key,omitempty"`
	LastFired    time.Time `json:"last_fired,omitzero"`
	LastErr      string    `json:"last_error,omitempty"`
	Fires        int       `json:"fires"`
}

func (s *Scheduler) Snapshot() []RuleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RuleState, 0, len(s.rules))
	for i, r := range s.rules {
		st := s.state[i]
		out = append(out, RuleState{
			Name:         r.Name,
			Group:        r.Group,
			Hours:        append([]int(nil), r.Hours...),
			MinuteBefore: r.MinuteBefore,
			Key:          string(r.Key),
			LastKey:      st.lastKey,
			LastFired:    st.lastFired,
			LastErr:      st.lastErr,
			Fires:        st.fires,
		})
	}
	return out
}
