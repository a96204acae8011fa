// Package syncer mirrors text files into a GitHub repository through the
// contents API.
package syncer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	logx "immowatch/pkg/logx"
)

type Config struct {
	Owner  string
	Repo   string
	Branch string
	Token  string
	// BaseURL overrides https://api.github.com/ (enterprise, tests).
	BaseURL string
	Timeout time.Duration
	// Location formats the commit message timestamp.
	Location *time.Location
}

// GitHub implements logstore.Syncer.
type GitHub struct {
	cfg    Config
	client *github.Client
	log    logx.Logger
	now    func() time.Time
}

// New returns a syncer. Without a token or repository it is disabled and
// every Save reports false.
func New(cfg Config, log logx.Logger) (*GitHub, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	g := &GitHub{cfg: cfg, log: log, now: time.Now}
	if !g.Enabled() {
		return g, nil
	}

	c := github.NewClient(&http.Client{Timeout: cfg.Timeout}).WithAuthToken(cfg.Token)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("sync.base_url: %w", err)
		}
		c.BaseURL = u
	}
	g.client = c
	return g, nil
}

func (g *GitHub) Enabled() bool {
	return strings.TrimSpace(g.cfg.Token) != "" && g.cfg.Owner != "" && g.cfg.Repo != ""
}

// Repo returns "owner/name", or "" when unset.
func (g *GitHub) Repo() string {
	if g.cfg.Owner == "" || g.cfg.Repo == "" {
		return ""
	}
	return g.cfg.Owner + "/" + g.cfg.Repo
}

// Save writes content to file on the configured branch, creating or
// updating it. Empty content is never pushed.
func (g *GitHub) Save(ctx context.Context, file, content string) bool {
	if !g.Enabled() || g.client == nil {
		return false
	}
	if content == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	sha, err := g.currentSHA(ctx, file)
	if err != nil {
		g.log.Warn("github lookup failed", logx.String("file", file), logx.Err(err))
		return false
	}

	if sha != "" && sha == blobSHA(content) {
		g.log.Debug("github content unchanged", logx.String("file", file))
		return true
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(fmt.Sprintf("sync %s - %s", file, g.now().In(g.cfg.Location).Format("2006-01-02 15:04"))),
		Content: []byte(content),
	}
	if g.cfg.Branch != "" {
		opts.Branch = github.String(g.cfg.Branch)
	}
	if sha != "" {
		opts.SHA = github.String(sha)
		_, _, err = g.client.Repositories.UpdateFile(ctx, g.cfg.Owner, g.cfg.Repo, file, opts)
	} else {
		_, _, err = g.client.Repositories.CreateFile(ctx, g.cfg.Owner, g.cfg.Repo, file, opts)
	}
	if err != nil {
		g.log.Warn("github push failed", logx.String("file", file), logx.Err(err))
		return false
	}
	g.log.Debug("github push ok", logx.String("file", file), logx.Int("bytes", len(content)), logx.Duration("took", time.Since(start)))
	return true
}

// currentSHA returns the blob sha of file, or "" if it does not exist yet.
func (g *GitHub) currentSHA(ctx context.Context, file string) (string, error) {
	var opts *github.RepositoryContentGetOptions
	if g.cfg.Branch != "" {
		opts = &github.RepositoryContentGetOptions{Ref: g.cfg.Branch}
	}
	fc, _, resp, err := g.client.Repositories.GetContents(ctx, g.cfg.Owner, g.cfg.Repo, file, opts)
	if err != nil {
		var gerr *github.ErrorResponse
		if errors.As(err, &gerr) && gerr.Response != nil && gerr.Response.StatusCode == http.StatusNotFound {
			return "", nil
		}
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	if fc == nil {
		return "", nil
	}
	return fc.GetSHA(), nil
}

// blobSHA is the git object id of content, as GitHub reports it for files.
func blobSHA(content string) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	_, _ = io.WriteString(h, content)
	return hex.EncodeToString(h.Sum(nil))
}
