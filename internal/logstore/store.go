// Package logstore keeps the agent's plain-text files and pushes tracked
// ones to the remote copy after every local write.
package logstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	logx "immowatch/pkg/logx"
)

// Logical names of the files the agent manages.
const (
	Journal       = "journal"
	Watch         = "watch"
	Report        = "report"
	Opportunities = "opportunities"
	Agencies      = "agencies"
)

// Syncer pushes the full content of one file to the remote store. It
// reports success and never returns an error; failures are its own to log.
type Syncer interface {
	Enabled() bool
	Save(ctx context.Context, file, content string) bool
}

type Config struct {
	Dir string
	// Files maps logical names to file names inside Dir. Names missing
	// from the map are used as file names directly.
	Files map[string]string
	// Tracked lists logical names pushed after each write.
	Tracked []string
}

// Store serializes all access per logical name. A second per-name lock
// orders remote pushes; each push re-reads the file so the remote never
// moves back to an older local version.
type Store struct {
	dir     string
	files   map[string]string
	tracked map[string]bool
	sync    Syncer
	log     logx.Logger

	mu    sync.Mutex
	locks map[string]*nameLocks
}

type nameLocks struct {
	file sync.Mutex
	push sync.Mutex
}

func New(cfg Config, syncer Syncer, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logstore: %w", err)
	}
	s := &Store{
		dir:     dir,
		files:   map[string]string{},
		tracked: map[string]bool{},
		sync:    syncer,
		log:     log,
		locks:   map[string]*nameLocks{},
	}
	for k, v := range cfg.Files {
		s.files[k] = v
	}
	for _, n := range cfg.Tracked {
		s.tracked[n] = true
	}
	return s, nil
}

// FileName returns the on-disk file name for a logical name.
func (s *Store) FileName(name string) string {
	if f, ok := s.files[name]; ok && f != "" {
		return f
	}
	return name
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, s.FileName(name)) }

// Tracked returns the sorted tracked logical names.
func (s *Store) Tracked() []string {
	out := make([]string, 0, len(s.tracked))
	for n := range s.tracked {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *Store) lockFor(name string) *nameLocks {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.locks[name]
	if l == nil {
		l = &nameLocks{}
		s.locks[name] = l
	}
	return l
}

// Read returns the whole file, or "" if it does not exist. Other read
// errors are logged and also yield "".
func (s *Store) Read(name string) string {
	l := s.lockFor(name)
	l.file.Lock()
	defer l.file.Unlock()
	return s.readLocked(name)
}

func (s *Store) readLocked(name string) string {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("read failed", logx.String("file", s.FileName(name)), logx.Err(err))
		}
		return ""
	}
	return string(b)
}

// Tail returns the last n characters of a file.
func (s *Store) Tail(name string, n int) string {
	return Tail(s.Read(name), n)
}

// Write replaces the file content, then syncs tracked names.
func (s *Store) Write(ctx context.Context, name, text string) error {
	if err := s.writeFile(name, text, os.O_CREATE|os.O_TRUNC|os.O_WRONLY); err != nil {
		return err
	}
	s.push(ctx, name)
	return nil
}

// Append adds text to the end of the file, creating it if needed, then
// syncs tracked names.
func (s *Store) Append(ctx context.Context, name, text string) error {
	if err := s.writeFile(name, text, os.O_CREATE|os.O_APPEND|os.O_WRONLY); err != nil {
		return err
	}
	s.push(ctx, name)
	return nil
}

func (s *Store) writeFile(name, text string, flag int) error {
	l := s.lockFor(name)
	l.file.Lock()
	defer l.file.Unlock()

	f, err := os.OpenFile(s.path(name), flag, 0o644)
	if err != nil {
		return fmt.Errorf("logstore: open %s: %w", s.FileName(name), err)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return fmt.Errorf("logstore: write %s: %w", s.FileName(name), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("logstore: close %s: %w", s.FileName(name), err)
	}
	return nil
}

// Ensure creates the file with header when it is missing. It does not
// sync. created reports whether the file was written.
func (s *Store) Ensure(name, header string) (created bool, err error) {
	l := s.lockFor(name)
	l.file.Lock()
	defer l.file.Unlock()

	f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("logstore: create %s: %w", s.FileName(name), err)
	}
	if _, err := f.WriteString(header); err != nil {
		_ = f.Close()
		return true, fmt.Errorf("logstore: write %s: %w", s.FileName(name), err)
	}
	return true, f.Close()
}

// Push syncs one tracked name on demand (CLI).
func (s *Store) Push(ctx context.Context, name string) {
	s.push(ctx, name)
}

func (s *Store) push(ctx context.Context, name string) {
	if !s.tracked[name] {
		return
	}
	file := s.FileName(name)
	if s.sync == nil || !s.sync.Enabled() {
		s.log.Debug("remote sync not configured", logx.String("file", file))
		return
	}

	l := s.lockFor(name)
	l.push.Lock()
	defer l.push.Unlock()

	content := s.Read(name)
	if content == "" {
		s.log.Debug("remote sync skipped: empty file", logx.String("file", file))
		return
	}
	if !s.sync.Save(ctx, file, content) {
		s.log.Warn("remote sync failed", logx.String("file", file))
	}
}
