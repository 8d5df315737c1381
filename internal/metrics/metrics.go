// Package metrics accumulates per-source outcomes for one run and derives
// the run summary handed to audit and notification collaborators. The
// accumulator is touched only from the run's single control-flow thread and
// is never persisted itself.
package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/danamir/banksync/internal/errs"
	"github.com/danamir/banksync/internal/ingest"
	"github.com/danamir/banksync/internal/reconcile"
)

// SourceStatus is a source's outcome within the run.
type SourceStatus string

const (
	StatusPending SourceStatus = "pending"
	StatusSuccess SourceStatus = "success"
	StatusFailure SourceStatus = "failure"
)

// AccountDetail is the per-account projection recorded during a source's
// processing.
type AccountDetail struct {
	AccountNumber   string
	Balance         *decimal.Decimal
	Currency        string
	NewRecords      []ingest.Record
	ExistingRecords []ingest.Record
}

// SourceMetrics is one source's entry in the run.
type SourceMetrics struct {
	Name       string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Status     SourceStatus
	Error      string
	ErrorKind  string
	Imported   int
	Duplicates int

	ReconciliationStatus reconcile.Status
	ReconciliationDiff   int64

	Accounts []AccountDetail
}

// Summary is the derived run-level aggregate.
type Summary struct {
	TotalSources      int
	Successes         int
	Failures          int
	TotalTransactions int
	TotalDuplicates   int
	TotalDuration     time.Duration
	AverageDuration   time.Duration
	SuccessRate       float64
	Sources           []SourceMetrics
}

// Run accumulates metrics for one import run.
type Run struct {
	startTime time.Time
	order     []string
	sources   map[string]*SourceMetrics

	// Now is overridable in tests. Nil means time.Now.
	Now func() time.Time
}

// NewRun returns an empty accumulator.
func NewRun() *Run {
	r := &Run{}
	r.StartRun()
	return r
}

// StartRun resets all state and marks the run start.
func (r *Run) StartRun() {
	r.startTime = r.now()
	r.order = nil
	r.sources = make(map[string]*SourceMetrics)
}

// StartSource begins tracking a source with status pending.
func (r *Run) StartSource(name string) {
	if _, ok := r.sources[name]; !ok {
		r.order = append(r.order, name)
	}
	r.sources[name] = &SourceMetrics{
		Name:      name,
		StartTime: r.now(),
		Status:    StatusPending,
	}
}

// RecordAccount attaches one account's import detail to a source entry.
func (r *Run) RecordAccount(name string, detail AccountDetail) {
	if m, ok := r.sources[name]; ok {
		m.Accounts = append(m.Accounts, detail)
	}
}

// RecordSourceSuccess finalizes a source entry as successful.
func (r *Run) RecordSourceSuccess(name string, imported, duplicates int) {
	if m, ok := r.sources[name]; ok {
		m.EndTime = r.now()
		m.Duration = m.EndTime.Sub(m.StartTime)
		m.Status = StatusSuccess
		m.Imported = imported
		m.Duplicates = duplicates
	}
}

// RecordSourceFailure finalizes a source entry as failed.
func (r *Run) RecordSourceFailure(name string, err error) {
	if m, ok := r.sources[name]; ok {
		m.EndTime = r.now()
		m.Duration = m.EndTime.Sub(m.StartTime)
		m.Status = StatusFailure
		if err != nil {
			m.Error = err.Error()
			m.ErrorKind = errs.Classify(err)
		}
	}
}

// RecordReconciliation attaches a reconciliation outcome to a source entry.
func (r *Run) RecordReconciliation(name string, status reconcile.Status, diff int64) {
	if m, ok := r.sources[name]; ok {
		m.ReconciliationStatus = status
		m.ReconciliationDiff = diff
	}
}

// Summary derives the run aggregates. Success rate is a percentage; rounding
// is left to display code.
func (r *Run) Summary() *Summary {
	s := &Summary{}
	for _, name := range r.order {
		m := r.sources[name]
		s.Sources = append(s.Sources, *m)
		s.TotalSources++
		switch m.Status {
		case StatusSuccess:
			s.Successes++
		case StatusFailure:
			s.Failures++
		}
		s.TotalTransactions += m.Imported
		s.TotalDuplicates += m.Duplicates
		s.TotalDuration += m.Duration
	}
	if s.TotalSources > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.TotalSources) * 100
		s.AverageDuration = s.TotalDuration / time.Duration(s.TotalSources)
	}
	return s
}

// HasFailures reports whether any source failed.
func (r *Run) HasFailures() bool {
	for _, m := range r.sources {
		if m.Status == StatusFailure {
			return true
		}
	}
	return false
}

// ErrorBreakdown counts failed sources by error category.
func (r *Run) ErrorBreakdown() map[string]int {
	breakdown := make(map[string]int)
	for _, m := range r.sources {
		if m.Status == StatusFailure && m.ErrorKind != "" {
			breakdown[m.ErrorKind]++
		}
	}
	return breakdown
}

func (r *Run) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
