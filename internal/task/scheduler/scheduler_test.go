package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "immowatch/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	groups []string
	err    error
	panic  bool
}

func (r *recorder) run(_ context.Context, group string) error {
	r.mu.Lock()
	r.groups = append(r.groups, group)
	r.mu.Unlock()
	if r.panic {
		panic("group blew up")
	}
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadLocation("")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

func newScheduler(t *testing.T, rules []Rule, rec *recorder) *Scheduler {
	t.Helper()
	s, err := New(Config{Location: paris(t), Rules: rules}, rec.run, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func at(t *testing.T, day, hour, minute int) time.Time {
	return time.Date(2026, 6, day, hour, minute, 0, 0, paris(t))
}

func TestHourRuleFiresOncePerWindow(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newScheduler(t, []Rule{{Name: "watch", Hours: []int{8, 9}, MinuteBefore: 5, Key: KeyHour, Group: "watch"}}, rec)
	ctx := context.Background()

	steps := []struct {
		hour, minute int
		wantFire     bool
	}{
		{8, 3, true},
		{8, 4, false},
		{8, 6, false},
		{9, 3, true},
		{9, 4, false},
	}
	for _, st := range steps {
		fired := s.Tick(ctx, at(t, 1, st.hour, st.minute))
		if got := len(fired) == 1; got != st.wantFire {
			t.Fatalf("tick %02d:%02d fired = %v, want %v", st.hour, st.minute, got, st.wantFire)
		}
	}
	if got := rec.count(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

func TestWindowUpperBoundIsExclusive(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newScheduler(t, []Rule{{Name: "watch", Hours: []int{8}, MinuteBefore: 5, Key: KeyHour, Group: "watch"}}, rec)
	if fired := s.Tick(context.Background(), at(t, 1, 8, 5)); len(fired) != 0 {
		t.Fatalf("08:05 fired %v", fired)
	}
	if fired := s.Tick(context.Background(), at(t, 1, 7, 59)); len(fired) != 0 {
		t.Fatalf("07:59 fired %v", fired)
	}
}

func TestTickUsesBusinessTimezone(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newScheduler(t, []Rule{{Name: "watch", Hours: []int{8}, MinuteBefore: 5, Key: KeyHour, Group: "watch"}}, rec)

	// 06:02 UTC is 08:02 in Paris during summer time.
	if fired := s.Tick(context.Background(), time.Date(2026, 6, 1, 6, 2, 0, 0, time.UTC)); len(fired) != 1 {
		t.Fatalf("fired = %v, want watch", fired)
	}
	// 08:02 UTC is 10:02 in Paris.
	if fired := s.Tick(context.Background(), time.Date(2026, 6, 2, 8, 2, 0, 0, time.UTC)); len(fired) != 0 {
		t.Fatalf("fired = %v, want none", fired)
	}
}

func TestDateRuleFiresOncePerDay(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newScheduler(t, []Rule{{Name: "report", Hours: []int{18}, MinuteBefore: 5, Key: KeyDate, Group: "report"}}, rec)
	ctx := context.Background()

	for _, tm := range []time.Time{at(t, 1, 18, 0), at(t, 1, 18, 4), at(t, 2, 18, 1), at(t, 2, 18, 2)} {
		s.Tick(ctx, tm)
	}
	if got := rec.count(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
	snap := s.Snapshot()
	if snap[0].LastKey != "2026-06-02" || snap[0].Fires != 2 {
		t.Fatalf("snapshot = %+v", snap[0])
	}
}

func TestFailureStillRecordsKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rec  *recorder
	}{
		{"error", &recorder{err: errors.New("smtp down")}},
		{"panic", &recorder{panic: true}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newScheduler(t, []Rule{{Name: "watch", Hours: []int{8}, MinuteBefore: 5, Key: KeyHour, Group: "watch"}}, tt.rec)
			ctx := context.Background()
			s.Tick(ctx, at(t, 1, 8, 1))
			s.Tick(ctx, at(t, 1, 8, 2))
			if got := tt.rec.count(); got != 1 {
				t.Fatalf("runs = %d, want 1", got)
			}
			if snap := s.Snapshot(); snap[0].LastErr == "" || snap[0].LastKey != "2026-06-01T08" {
				t.Fatalf("snapshot = %+v", snap[0])
			}
		})
	}
}

func TestFailureHookReportsGroupErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		rec     *recorder
		wantErr string
	}{
		{"error", &recorder{err: errors.New("smtp down")}, "smtp down"},
		{"panic", &recorder{panic: true}, "panic: group blew up"},
		{"ok", &recorder{}, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got []string
			s, err := New(Config{
				Location: paris(t),
				Rules:    []Rule{{Name: "evening", Hours: []int{18}, MinuteBefore: 5, Key: KeyDate, Group: "report"}},
			}, tt.rec.run, logx.Nop(), WithFailureHook(func(_ context.Context, rule, group string, err error) {
				got = append(got, rule+"/"+group+": "+err.Error())
			}))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			s.Tick(context.Background(), at(t, 1, 18, 2))

			if tt.wantErr == "" {
				if len(got) != 0 {
					t.Fatalf("hook calls = %v, want none", got)
				}
				return
			}
			if want := "evening/report: " + tt.wantErr; len(got) != 1 || got[0] != want {
				t.Fatalf("hook calls = %v, want [%s]", got, want)
			}
		})
	}
}

func TestSnapshotJSONOmitsNeverFired(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newScheduler(t, []Rule{
		{Name: "watch", Hours: []int{8}, MinuteBefore: 5, Key: KeyHour, Group: "watch"},
		{Name: "report", Hours: []int{18}, MinuteBefore: 5, Key: KeyDate, Group: "report"},
	}, rec)
	s.Tick(context.Background(), at(t, 1, 8, 1))

	b, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var rules []map[string]any
	if err := json.Unmarshal(b, &rules); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := rules[0]["last_fired"]; !ok {
		t.Fatalf("fired rule lacks last_fired: %s", b)
	}
	if _, ok := rules[1]["last_fired"]; ok {
		t.Fatalf("idle rule has last_fired: %s", b)
	}
}

func TestOverlappingRulesFireInDeclarationOrder(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newScheduler(t, []Rule{
		{Name: "report", Hours: []int{18}, MinuteBefore: 5, Key: KeyDate, Group: "report"},
		{Name: "watch", Hours: []int{18}, MinuteBefore: 10, Key: KeyHour, Group: "watch"},
	}, rec)
	fired := s.Tick(context.Background(), at(t, 1, 18, 2))
	if strings.Join(fired, ",") != "report,watch" || strings.Join(rec.groups, ",") != "report,watch" {
		t.Fatalf("fired = %v, groups = %v", fired, rec.groups)
	}
}

func TestNewRejectsBadRules(t *testing.T) {
	t.Parallel()
	ok := Rule{Name: "watch", Hours: []int{8}, MinuteBefore: 5, Key: KeyHour, Group: "watch"}
	tests := []struct {
		name  string
		rules []Rule
		want  string
	}{
		{"no name", []Rule{{Hours: []int{8}, MinuteBefore: 5, Key: KeyHour, Group: "g"}}, "name is required"},
		{"duplicate", []Rule{ok, ok}, "duplicate name"},
		{"no hours", []Rule{{Name: "a", MinuteBefore: 5, Key: KeyHour, Group: "g"}}, "hours are required"},
		{"hour range", []Rule{{Name: "a", Hours: []int{24}, MinuteBefore: 5, Key: KeyHour, Group: "g"}}, "out of range"},
		{"minute", []Rule{{Name: "a", Hours: []int{8}, Key: KeyHour, Group: "g"}}, "minute_before"},
		{"key", []Rule{{Name: "a", Hours: []int{8}, MinuteBefore: 5, Key: "week", Group: "g"}}, "key must be"},
		{"group", []Rule{{Name: "a", Hours: []int{8}, MinuteBefore: 5, Key: KeyDate}}, "group is required"},
	}
	rec := &recorder{}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(Config{Location: time.UTC, Rules: tt.rules}, rec.run, logx.Nop())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("New err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadLocationRejectsUnknownZone(t *testing.T) {
	t.Parallel()
	if _, err := LoadLocation("Mars/Olympus_Mons"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
	loc, err := LoadLocation("Europe/Paris")
	if err != nil || loc.String() != "Europe/Paris" {
		t.Fatalf("LoadLocation = %v, %v", loc, err)
	}
}

func TestRunTicksImmediatelyAndStops(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	var beats atomic.Int32
	loc := paris(t)
	s, err := New(Config{
		Location: loc,
		Poll:     time.Hour,
		Rules:    []Rule{{Name: "watch", Hours: []int{8}, MinuteBefore: 5, Key: KeyHour, Group: "watch"}},
	}, rec.run, logx.Nop(),
		WithClock(func() time.Time { return time.Date(2026, 6, 1, 8, 1, 0, 0, loc) }),
		WithHeartbeat(func() bool { beats.Add(1); return false }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("runs = %d, want 1", rec.count())
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if beats.Load() == 0 {
		t.Fatal("heartbeat not called")
	}
}
