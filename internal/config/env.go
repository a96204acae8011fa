package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read at startup. They override the config file.
const (
	EnvGitHubToken   = "GITHUB_TOKEN"
	EnvGitHubRepo    = "GITHUB_REPO" // owner/name
	EnvMailUser      = "MAIL_USER"
	EnvMailPassword  = "MAIL_PASSWORD"
	EnvApifyToken    = "APIFY_TOKEN"
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvPort          = "PORT"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Existing variables are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("dotenv %s: %w", path, err)
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays credentials and the listen port from the environment.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvGitHubToken); ok {
		cfg.Sync.Token = v
	}
	if v, ok := get(EnvGitHubRepo); ok {
		owner, repo, found := strings.Cut(v, "/")
		if !found || owner == "" || repo == "" {
			return fmt.Errorf("%s: want owner/name, got %q", EnvGitHubRepo, v)
		}
		cfg.Sync.Owner, cfg.Sync.Repo = owner, repo
	}
	if v, ok := get(EnvMailUser); ok {
		cfg.Mail.User = v
	}
	if v, ok := get(EnvMailPassword); ok {
		cfg.Mail.Password = v
	}
	if v, ok := get(EnvApifyToken); ok {
		cfg.Scraper.Token = v
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvPort); ok {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		cfg.Server.Port = p
	}
	return nil
}
