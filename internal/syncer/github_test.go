package syncer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	logx "immowatch/pkg/logx"
)

type putBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

type fakeGitHub struct {
	mu      sync.Mutex
	sha     string // "" = file absent
	puts    []putBody
	failPut bool
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/logs/contents/activity_journal.txt" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			if f.sha == "" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message":"Not Found"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"type": "file", "name": "activity_journal.txt", "sha": f.sha})
		case http.MethodPut:
			if f.failPut {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"message":"conflict"}`))
				return
			}
			var b putBody
			if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
				t.Errorf("decode: %v", err)
			}
			f.puts = append(f.puts, b)
			raw, _ := base64.StdEncoding.DecodeString(b.Content)
			f.sha = blobSHA(string(raw))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"content":{"sha":"new-sha"},"commit":{"sha":"c1"}}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})
}

func newTestSyncer(t *testing.T, srv *httptest.Server) *GitHub {
	t.Helper()
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	g, err := New(Config{
		Owner: "acme", Repo: "logs", Branch: "main", Token: "tok",
		BaseURL: srv.URL, Timeout: 2 * time.Second, Location: paris,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g.now = func() time.Time { return time.Date(2026, 10, 14, 6, 30, 0, 0, time.UTC) }
	return g
}

func TestSaveCreatesThenUpdates(t *testing.T) {
	t.Parallel()
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	g := newTestSyncer(t, srv)

	if !g.Save(context.Background(), "activity_journal.txt", "first") {
		t.Fatal("create: Save = false")
	}
	if !g.Save(context.Background(), "activity_journal.txt", "second") {
		t.Fatal("update: Save = false")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.puts) != 2 {
		t.Fatalf("puts = %d, want 2", len(fake.puts))
	}
	first, second := fake.puts[0], fake.puts[1]
	if first.SHA != "" {
		t.Fatalf("create sent sha %q", first.SHA)
	}
	if want := blobSHA("first"); second.SHA != want {
		t.Fatalf("update sha = %q, want %q", second.SHA, want)
	}
	raw, _ := base64.StdEncoding.DecodeString(second.Content)
	if string(raw) != "second" {
		t.Fatalf("content = %q", raw)
	}
	if want := "sync activity_journal.txt - 2026-10-14 08:30"; first.Message != want {
		t.Fatalf("message = %q, want %q", first.Message, want)
	}
	if first.Branch != "main" {
		t.Fatalf("branch = %q", first.Branch)
	}
}

func TestSaveSkipsUnchangedContent(t *testing.T) {
	t.Parallel()
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	g := newTestSyncer(t, srv)

	for i := 0; i < 2; i++ {
		if !g.Save(context.Background(), "activity_journal.txt", "same line\n") {
			t.Fatalf("Save #%d = false", i+1)
		}
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(fake.puts))
	}
}

func TestBlobSHA(t *testing.T) {
	t.Parallel()
	// git hash-object of an empty file and of "hello\n".
	tests := []struct{ in, want string }{
		{"", "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"},
		{"hello\n", "ce013625030ba8dba906f756967f9e9ca394464a"},
	}
	for _, tt := range tests {
		if got := blobSHA(tt.in); got != tt.want {
			t.Fatalf("blobSHA(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSaveSoftFails(t *testing.T) {
	t.Parallel()
	fake := &fakeGitHub{failPut: true}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	g := newTestSyncer(t, srv)

	if g.Save(context.Background(), "activity_journal.txt", "x") {
		t.Fatal("Save = true on conflict")
	}
	if g.Save(context.Background(), "activity_journal.txt", "") {
		t.Fatal("Save = true for empty content")
	}
}

func TestDisabledWithoutToken(t *testing.T) {
	t.Parallel()
	g, err := New(Config{Owner: "acme", Repo: "logs"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Enabled() {
		t.Fatal("expected disabled")
	}
	if g.Save(context.Background(), "f.txt", "x") {
		t.Fatal("disabled Save = true")
	}
	if g.Repo() != "acme/logs" {
		t.Fatalf("Repo = %q", g.Repo())
	}
}
