package logstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	logx "immowatch/pkg/logx"
)

type fakeSyncer struct {
	enabled bool
	ok      bool

	mu    sync.Mutex
	saved map[string][]string
}

func (f *fakeSyncer) Enabled() bool { return f.enabled }

func (f *fakeSyncer) Save(_ context.Context, file, content string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string][]string{}
	}
	f.saved[file] = append(f.saved[file], content)
	return f.ok
}

func (f *fakeSyncer) pushes(file string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.saved[file]...)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func newStore(t *testing.T, syncer Syncer, log logx.Logger) *Store {
	t.Helper()
	s, err := New(Config{
		Dir:     t.TempDir(),
		Files:   map[string]string{Journal: "activity_journal.txt", Watch: "competitor_watch.txt"},
		Tracked: []string{Journal, Watch},
	}, syncer, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestReadMissingIsEmpty(t *testing.T) {
	t.Parallel()
	s := newStore(t, nil, logx.Nop())
	if got := s.Read(Journal); got != "" {
		t.Fatalf("Read = %q, want empty", got)
	}
}

func TestAppendThenRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, nil, logx.Nop())

	if err := s.Write(ctx, Watch, "hello "); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Append(ctx, Watch, "world"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := s.Read(Watch); got != "hello world" {
		t.Fatalf("Read = %q, want %q", got, "hello world")
	}

	if err := s.Write(ctx, Watch, "reset"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := s.Read(Watch); got != "reset" {
		t.Fatalf("Read after overwrite = %q", got)
	}
	if _, err := os.Stat(filepath.Join(s.dir, "competitor_watch.txt")); err != nil {
		t.Fatalf("expected mapped file name on disk: %v", err)
	}
}

func TestAppendWithUnconfiguredSyncStillWrites(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	s := newStore(t, &fakeSyncer{enabled: false}, logx.NewJSON(&buf, "debug"))

	if err := s.Append(context.Background(), Journal, "line\n"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := s.Read(Journal); got != "line\n" {
		t.Fatalf("Read = %q", got)
	}
	if !strings.Contains(buf.String(), "remote sync not configured") {
		t.Fatalf("expected sync notice in log, got %q", buf.String())
	}
}

func TestFailedSyncIsLoggedNotReturned(t *testing.T) {
	t.Parallel()
	var buf syncBuffer
	fs := &fakeSyncer{enabled: true, ok: false}
	s := newStore(t, fs, logx.NewJSON(&buf, "debug"))

	if err := s.Append(context.Background(), Journal, "x"); err != nil {
		t.Fatalf("Append returned sync failure: %v", err)
	}
	if got := fs.pushes("activity_journal.txt"); len(got) != 1 || got[0] != "x" {
		t.Fatalf("pushes = %v", got)
	}
	if !strings.Contains(buf.String(), "remote sync failed") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}

func TestUntrackedAndEmptyAreNotPushed(t *testing.T) {
	t.Parallel()
	fs := &fakeSyncer{enabled: true, ok: true}
	s := newStore(t, fs, logx.Nop())
	ctx := context.Background()

	if err := s.Write(ctx, Report, "report body"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(ctx, Watch, ""); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := fs.pushes("report"); len(got) != 0 {
		t.Fatalf("untracked name pushed: %v", got)
	}
	if got := fs.pushes("competitor_watch.txt"); len(got) != 0 {
		t.Fatalf("empty content pushed: %v", got)
	}
}

func TestConcurrentAppendsKeepEveryLine(t *testing.T) {
	t.Parallel()
	fs := &fakeSyncer{enabled: true, ok: true}
	s := newStore(t, fs, logx.Nop())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			line := fmt.Sprintf("line-%02d-%s\n", i, strings.Repeat("x", 40))
			if err := s.Append(ctx, Journal, line); err != nil {
				t.Errorf("Append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(s.Read(Journal), "\n"), "\n")
	if len(lines) != n {
		t.Fatalf("got %d lines, want %d", len(lines), n)
	}
	seen := map[string]bool{}
	for _, l := range lines {
		if len(l) != len("line-00-")+40 {
			t.Fatalf("interleaved line %q", l)
		}
		seen[l[:7]] = true
	}
	if len(seen) != n {
		t.Fatalf("distinct lines = %d, want %d", len(seen), n)
	}

	// The last push must carry the final content.
	pushes := fs.pushes("activity_journal.txt")
	if len(pushes) != n {
		t.Fatalf("pushes = %d, want %d", len(pushes), n)
	}
	if last := pushes[len(pushes)-1]; last != s.Read(Journal) {
		t.Fatal("last push is not the final content")
	}
}

func TestEnsureCreatesOnce(t *testing.T) {
	t.Parallel()
	s := newStore(t, nil, logx.Nop())
	created, err := s.Ensure(Agencies, "# agencies\n")
	if err != nil || !created {
		t.Fatalf("Ensure = %v, %v; want created", created, err)
	}
	created, err = s.Ensure(Agencies, "# other\n")
	if err != nil || created {
		t.Fatalf("second Ensure = %v, %v; want no-op", created, err)
	}
	if got := s.Read(Agencies); got != "# agencies\n" {
		t.Fatalf("content = %q", got)
	}
}

func TestTail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter than n", "abc", 10, "abc"},
		{"exact", "abc", 3, "abc"},
		{"cut", "abcdef", 2, "ef"},
		{"zero", "abc", 0, ""},
		{"last rune multi-byte", "prix é", 1, "é"},
		{"counts runes", "café", 2, "fé"},
		{"fewer runes than bytes", "éééé", 5, "éééé"},
		{"euro sign", "1 850 €", 3, "0 €"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Tail(tt.in, tt.n); got != tt.want {
				t.Fatalf("Tail(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}
