// Package storage persists the task run history.
//
// Drivers:
//   - "file": JSON Lines, one record per line
//   - "sqlite": modernc.org/sqlite, no cgo
package storage
