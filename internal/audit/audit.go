// Package audit persists a bounded rolling window of run summaries as a
// JSON array on disk. History is best-effort diagnostic data: corruption
// reads back as empty and write failures are logged, never surfaced.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/danamir/banksync/internal/logger"
	"github.com/danamir/banksync/internal/metrics"
)

// DefaultMaxEntries is the rolling window's default capacity.
const DefaultMaxEntries = 90

// SourceEntry is one source's line in a persisted run entry.
type SourceEntry struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration int64  `json:"duration,omitempty"` // milliseconds
	Txns     int    `json:"txns"`
	Error    string `json:"error,omitempty"`
}

// Entry is one persisted run summary.
type Entry struct {
	Timestamp         string        `json:"timestamp"`
	TotalSources      int           `json:"totalSources"`
	Successes         int           `json:"successes"`
	Failures          int           `json:"failures"`
	TotalTransactions int           `json:"totalTransactions"`
	TotalDuplicates   int           `json:"totalDuplicates"`
	TotalDuration     int64         `json:"totalDuration"` // milliseconds
	SuccessRate       float64       `json:"successRate"`
	Sources           []SourceEntry `json:"sources"`
}

// Log is a rolling audit log backed by one JSON file.
type Log struct {
	Path       string
	MaxEntries int

	// Now is overridable in tests. Nil means time.Now.
	Now func() time.Time
}

// NewLog returns a Log at path. maxEntries <= 0 selects the default.
func NewLog(path string, maxEntries int) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Log{Path: path, MaxEntries: maxEntries}
}

// Record appends a summary to the log, evicting the oldest entries beyond
// the capacity.
func (l *Log) Record(ctx context.Context, summary *metrics.Summary) {
	entries := l.load()
	entries = append(entries, l.buildEntry(summary))
	if len(entries) > l.MaxEntries {
		entries = entries[len(entries)-l.MaxEntries:]
	}
	l.save(ctx, entries)
}

// Recent returns the newest count entries, oldest first.
func (l *Log) Recent(count int) []Entry {
	entries := l.load()
	if len(entries) > count {
		entries = entries[len(entries)-count:]
	}
	return entries
}

func (l *Log) buildEntry(summary *metrics.Summary) Entry {
	entry := Entry{
		Timestamp:         l.now().UTC().Format(time.RFC3339),
		TotalSources:      summary.TotalSources,
		Successes:         summary.Successes,
		Failures:          summary.Failures,
		TotalTransactions: summary.TotalTransactions,
		TotalDuplicates:   summary.TotalDuplicates,
		TotalDuration:     summary.TotalDuration.Milliseconds(),
		SuccessRate:       summary.SuccessRate,
	}
	for _, m := range summary.Sources {
		entry.Sources = append(entry.Sources, SourceEntry{
			Name:     m.Name,
			Status:   string(m.Status),
			Duration: m.Duration.Milliseconds(),
			Txns:     m.Imported,
			Error:    m.Error,
		})
	}
	return entry
}

func (l *Log) load() []Entry {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupt history degrades to empty rather than failing the run.
		return nil
	}
	return entries
}

func (l *Log) save(ctx context.Context, entries []Entry) {
	log := logger.FromContext(ctx)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode audit log")
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		log.Error().Err(err).Str("path", l.Path).Msg("Failed to create audit log directory")
		return
	}
	if err := os.WriteFile(l.Path, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", l.Path).Msg("Failed to write audit log")
	}
}

func (l *Log) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
