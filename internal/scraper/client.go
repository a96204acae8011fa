// Package scraper launches hosted crawling jobs (Apify actors) for the
// agent's search zones and fetches their datasets. It is driven from the
// CLI only; the scheduler never waits on a job.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "immowatch/pkg/logx"
)

var ErrNotConfigured = errors.New("scraper: token not configured")

type Config struct {
	Token          string
	BaseURL        string
	StartTimeout   time.Duration
	StatusTimeout  time.Duration
	ResultsTimeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.apify.com"
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 30 * time.Second
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 10 * time.Second
	}
	if cfg.ResultsTimeout <= 0 {
		cfg.ResultsTimeout = 60 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{}, log: log.With(logx.String("comp", "scraper"))}
}

func (c *Client) Enabled() bool { return c != nil && c.cfg.Token != "" }

// Run is a started actor run.
type Run struct {
	ID    string `json:"run_id"`
	Actor string `json:"actor"`
}

type RunStatus struct {
	Status     string `json:"status"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type runEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		FinishedAt string `json:"finishedAt"`
	} `json:"data"`
}

// Start launches spec and returns the run id.
func (c *Client) Start(ctx context.Context, spec JobSpec) (Run, error) {
	if !c.Enabled() {
		return Run{}, ErrNotConfigured
	}
	body, err := json.Marshal(spec.Input)
	if err != nil {
		return Run{}, fmt.Errorf("scraper: encode input: %w", err)
	}
	path := "/v2/acts/" + url.PathEscape(strings.ReplaceAll(spec.Actor, "/", "~")) + "/runs"

	var env runEnvelope
	if err := c.do(ctx, http.MethodPost, path, body, c.cfg.StartTimeout, &env); err != nil {
		return Run{}, fmt.Errorf("scraper: start %s: %w", spec.Actor, err)
	}
	if env.Data.ID == "" {
		return Run{}, fmt.Errorf("scraper: start %s: no run id returned", spec.Actor)
	}
	c.log.Info("actor run started", logx.String("actor", spec.Actor), logx.String("run_id", env.Data.ID))
	return Run{ID: env.Data.ID, Actor: spec.Actor}, nil
}

func (c *Client) Status(ctx context.Context, runID string) (RunStatus, error) {
	if !c.Enabled() {
		return RunStatus{}, ErrNotConfigured
	}
	var env runEnvelope
	if err := c.do(ctx, http.MethodGet, "/v2/actor-runs/"+url.PathEscape(runID), nil, c.cfg.StatusTimeout, &env); err != nil {
		return RunStatus{}, fmt.Errorf("scraper: status %s: %w", runID, err)
	}
	return RunStatus{Status: env.Data.Status, FinishedAt: env.Data.FinishedAt}, nil
}

// Results fetches the run's dataset items.
func (c *Client) Results(ctx context.Context, runID string) ([]map[string]any, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	var items []map[string]any
	if err := c.do(ctx, http.MethodGet, "/v2/actor-runs/"+url.PathEscape(runID)+"/dataset/items", nil, c.cfg.ResultsTimeout, &items); err != nil {
		return nil, fmt.Errorf("scraper: results %s: %w", runID, err)
	}
	return items, nil
}

// SweepResult is one zone's outcome in a sweep.
type SweepResult struct {
	Zone  string `json:"zone"`
	Run   Run    `json:"run"`
	Error string `json:"error,omitempty"`
}

// Sweep starts a portal job for every built-in zone. A failing zone does
// not stop the others.
func (c *Client) Sweep(ctx context.Context, portal string) ([]SweepResult, error) {
	out := make([]SweepResult, 0, len(Zones()))
	for _, z := range Zones() {
		spec, err := BuildJob(portal, z)
		if err != nil {
			return nil, err
		}
		res := SweepResult{Zone: z.Key}
		run, err := c.Start(ctx, spec)
		if err != nil {
			res.Error = err.Error()
			c.log.Warn("zone sweep failed", logx.String("zone", z.Key), logx.Err(err))
		}
		res.Run = run
		out = append(out, res)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := c.cfg.BaseURL + path + "?" + url.Values{"token": {c.cfg.Token}}.Encode()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return redact(err, c.cfg.Token)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// redact strips the token from transport errors, which embed the URL.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "***"))
}
