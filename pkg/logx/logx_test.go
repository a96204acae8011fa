package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{" DEBUG ", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"Error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
				t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	if !ValidLevel("") || !ValidLevel("warn") {
		t.Fatal("expected empty and warn to be valid")
	}
	if ValidLevel("verbose") {
		t.Fatal("expected verbose to be rejected")
	}
}

func TestNewJSONWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 3), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if m["message"] != "hello" || m["comp"] != "test" || m["err"] != "boom" {
		t.Fatalf("unexpected line: %v", m)
	}
	if n, _ := m["n"].(float64); n != 3 {
		t.Fatalf("n = %v, want 3", m["n"])
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %q, want logx_test.go:<line>", c)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("expected zero logger")
	}
	l.Error("ignored", String("k", "v"))
	if Nop().IsZero() {
		t.Fatal("Nop should not report zero")
	}
}

func TestFormatOperatorLine(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"sync failed","file":"journal.txt","comp":"logstore","caller":"store.go:12"}` + "\n")
	got := formatOperatorLine(line)
	want := "[WARN] logstore: sync failed\n- file=journal.txt"
	if got != want {
		t.Fatalf("formatOperatorLine = %q, want %q", got, want)
	}

	if got := formatOperatorLine([]byte("  not json  ")); got != "not json" {
		t.Fatalf("raw line = %q", got)
	}
}

type recSender struct {
	mu   sync.Mutex
	msgs []string
	ch   chan struct{}
}

func (r *recSender) SendText(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, text)
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
	return nil
}

func TestServiceOperatorSinkHonoursMinLevel(t *testing.T) {
	snd := &recSender{ch: make(chan struct{}, 4)}
	svc, log := New(Config{
		Level:    "debug",
		Operator: OperatorConfig{Enabled: true, ChatID: 42, MinLevel: "error", RatePerSec: 5},
	}, snd)
	t.Cleanup(func() { _ = svc.Close() })

	log.Warn("below threshold")
	log.Error("page me", String("task", "report"))

	select {
	case <-snd.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("operator message not delivered")
	}

	snd.mu.Lock()
	defer snd.mu.Unlock()
	if len(snd.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d: %v", len(snd.msgs), snd.msgs)
	}
	if !strings.HasPrefix(snd.msgs[0], "[ERROR] page me") {
		t.Fatalf("unexpected message %q", snd.msgs[0])
	}
}
