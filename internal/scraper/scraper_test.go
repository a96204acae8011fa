package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	logx "immowatch/pkg/logx"
)

type fakeApify struct {
	mu     sync.Mutex
	starts []string
	inputs []map[string]any
}

func (f *fakeApify) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/acts/{actor}/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		f.starts = append(f.starts, r.PathValue("actor"))
		f.inputs = append(f.inputs, in)
		n := len(f.starts)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"data":{"id":"run-` + string(rune('0'+n)) + `","status":"READY"}}`))
	})
	mux.HandleFunc("GET /v2/actor-runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"` + r.PathValue("id") + `","status":"SUCCEEDED","finishedAt":"2026-06-01T08:10:00.000Z"}}`))
	})
	mux.HandleFunc("GET /v2/actor-runs/{id}/dataset/items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"title":"Maison 5 pièces","price":185000,"location":"Vergt","url":"https://example.fr/1"},{"titre":"Grange"}]`))
	})
	return mux
}

func newClient(t *testing.T, token string) (*Client, *fakeApify) {
	t.Helper()
	f := &fakeApify{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{Token: token, BaseURL: srv.URL + "/"}, logx.Nop()), f
}

func TestStartStatusResults(t *testing.T) {
	t.Parallel()
	c, f := newClient(t, "tok")
	ctx := context.Background()

	spec, err := BuildJob(PortalLeboncoin, ZoneVergt)
	if err != nil {
		t.Fatalf("BuildJob: %v", err)
	}
	run, err := c.Start(ctx, spec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.ID != "run-1" || run.Actor != "drobnikj/crawler-leboncoin" {
		t.Fatalf("run = %+v", run)
	}
	if f.starts[0] != "drobnikj~crawler-leboncoin" {
		t.Fatalf("actor path = %q", f.starts[0])
	}
	if urls := f.inputs[0]["startUrls"].([]any); len(urls) != 3 {
		t.Fatalf("startUrls = %v", urls)
	}

	st, err := c.Status(ctx, run.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != "SUCCEEDED" || st.FinishedAt == "" {
		t.Fatalf("status = %+v", st)
	}

	items, err := c.Results(ctx, run.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	want := "1. Maison 5 pièces\n   Price: 185000 | Location: Vergt\n   https://example.fr/1\n\n" +
		"2. Grange\n   Price: Price not given | Location: Location not given\n"
	if got := FormatListings(items); got != want {
		t.Fatalf("FormatListings = %q, want %q", got, want)
	}
}

func TestStartRejectedToken(t *testing.T) {
	t.Parallel()
	c, _ := newClient(t, "wrong")
	spec, _ := BuildJob(PortalBienici, ZoneBugue)
	if _, err := c.Start(context.Background(), spec); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("Start err = %v, want http 401", err)
	}
}

func TestNotConfigured(t *testing.T) {
	t.Parallel()
	c := New(Config{}, logx.Nop())
	if _, err := c.Start(context.Background(), JobSpec{Actor: "a/b"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Start err = %v", err)
	}
	if _, err := c.Status(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Status err = %v", err)
	}
	if _, err := c.Results(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Results err = %v", err)
	}
}

func TestSweepStartsEveryZone(t *testing.T) {
	t.Parallel()
	c, f := newClient(t, "tok")
	res, err := c.Sweep(context.Background(), PortalLeboncoin)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(res) != 2 || res[0].Zone != "vergt" || res[1].Zone != "bugue" || res[1].Run.ID != "run-2" {
		t.Fatalf("sweep = %+v", res)
	}
	if len(f.starts) != 2 {
		t.Fatalf("starts = %d", len(f.starts))
	}
}

func TestBuildJob(t *testing.T) {
	t.Parallel()
	spec, err := BuildJob(PortalSeloger, ZoneVergt)
	if err != nil {
		t.Fatalf("BuildJob: %v", err)
	}
	in := spec.Input.(crawlerInput)
	if len(in.StartURLs) != 5 || in.CrawlerType != "cheerio" || in.MaxCrawlPages != 20 {
		t.Fatalf("input = %+v", in)
	}
	if got := in.StartURLs[1].URL; got != "https://www.seloger.com/immobilier/achat/immo-eglise-neuve-de-vergt-24/" {
		t.Fatalf("url = %q", got)
	}
	if _, err := BuildJob("pap", ZoneVergt); err == nil {
		t.Fatal("expected unknown portal error")
	}
}

func TestZoneByKey(t *testing.T) {
	t.Parallel()
	z, err := ZoneByKey(" Bugue ")
	if err != nil || z.Center != "Le Bugue" {
		t.Fatalf("ZoneByKey = %+v, %v", z, err)
	}
	if _, err := ZoneByKey("paris"); err == nil {
		t.Fatal("expected unknown zone error")
	}
}

func TestFormatListingsEmptyAndCap(t *testing.T) {
	t.Parallel()
	if got := FormatListings(nil); got != "No listings found." {
		t.Fatalf("empty = %q", got)
	}
	items := make([]map[string]any, 60)
	for i := range items {
		items[i] = map[string]any{"title": "x"}
	}
	out := FormatListings(items)
	if !strings.Contains(out, "50. x") || strings.Contains(out, "51. x") {
		t.Fatal("cap not applied")
	}
}
