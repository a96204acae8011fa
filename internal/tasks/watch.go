package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"immowatch/internal/logstore"
	logx "immowatch/pkg/logx"
)

// WatchResult is the outcome for one locality.
type WatchResult struct {
	Locality string `json:"locality"`
	Fetched  bool   `json:"fetched"`
	Status   int    `json:"status,omitempty"`
	Err      string `json:"error,omitempty"`
}

func (r WatchResult) line() string {
	tag := "[" + strings.ToUpper(r.Locality) + "]"
	switch {
	case r.Err != "":
		return tag + " search failed: " + r.Err
	case r.Fetched:
		return fmt.Sprintf("%s search done (HTTP %d)", tag, r.Status)
	default:
		return tag + " search recorded"
	}
}

// Portal statuses. Unknown covers both a failed check and no check.
const (
	StatusOK      = "OK"
	StatusUnknown = "UNKNOWN"
)

// CollectListings queries every configured locality in turn. A failing
// locality is journaled and skipped. The batch is appended to the watch
// file as one timestamped block. The returned error is only ever a local
// write failure.
func (c *Catalog) CollectListings(ctx context.Context) ([]WatchResult, error) {
	c.Record(ctx, "competitor watch started")

	results := make([]WatchResult, 0, len(c.cfg.Localities))
	for _, loc := range c.cfg.Localities {
		r := WatchResult{Locality: loc}
		if c.cfg.URLTemplate != "" {
			status, err := c.search(ctx, loc)
			r.Status = status
			if err != nil {
				r.Err = err.Error()
				c.log.Warn("watch query failed", logx.String("locality", loc), logx.Err(err))
				c.Record(ctx, fmt.Sprintf("watch error %s: %v", loc, err))
			} else {
				r.Fetched = true
			}
		}
		results = append(results, r)
		if ctx.Err() != nil {
			break
		}
	}

	var b strings.Builder
	b.WriteString("\n=== WATCH " + c.Now().Format("2006-01-02 15:04") + " ===\n")
	for _, r := range results {
		b.WriteString(r.line())
		b.WriteByte('\n')
	}
	if c.store == nil {
		return results, nil
	}
	if err := c.store.Append(ctx, logstore.Watch, b.String()); err != nil {
		return results, fmt.Errorf("watch: %w", err)
	}
	return results, nil
}

func (c *Catalog) search(ctx context.Context, locality string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WatchTimeout)
	defer cancel()

	u := strings.ReplaceAll(c.cfg.URLTemplate, "{locality}", url.QueryEscape(locality))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("http %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// VerifyPresence probes each portal and returns portal name -> status.
func (c *Catalog) VerifyPresence(ctx context.Context) map[string]string {
	c.Record(ctx, "listing verification started")

	out := make(map[string]string, len(c.cfg.Portals))
	parts := make([]string, 0, len(c.cfg.Portals))
	for _, p := range c.cfg.Portals {
		st := StatusUnknown
		if p.URL != "" {
			if err := c.probe(ctx, p.URL); err != nil {
				c.log.Debug("portal check failed", logx.String("portal", p.Name), logx.Err(err))
			} else {
				st = StatusOK
			}
		}
		out[p.Name] = st
		parts = append(parts, p.Name+"="+st)
	}
	c.Record(ctx, "portals: "+strings.Join(parts, " "))
	return out
}

func (c *Catalog) probe(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.VerifyTimeout)
	defer cancel()

	status, err := c.request(ctx, http.MethodHead, target)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = c.request(ctx, http.MethodGet, target)
	}
	if err != nil {
		return err
	}
	if status < 200 || status >= 400 {
		return fmt.Errorf("http %d", status)
	}
	return nil
}

func (c *Catalog) request(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
