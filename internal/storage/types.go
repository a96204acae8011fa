package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects a driver. An empty Driver or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Keep bounds the file driver's in-memory tail used by RecentRuns.
	Keep int
}

// RunRecord is one finished task run. Keep it compact and schema-stable.
type RunRecord struct {
	At      time.Time `json:"at"`
	RunID   string    `json:"run_id"`
	Task    string    `json:"task"`
	Trigger string    `json:"trigger"` // "schedule", "manual" or "cli"
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}
