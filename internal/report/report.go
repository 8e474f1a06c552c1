// Package report records one outcome per app and renders the run summary
// for logs and CI. Reporting never fails a run.
package report

import (
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind tags an Outcome.
type Kind string

const (
	KindAccepted Kind = "accepted"
	KindSkipped  Kind = "skipped"
	KindFailed   Kind = "failed"
)

// Exit codes for a finished run.
const (
	ExitOK      = 0
	ExitPartial = 2
)

// Outcome is the result of processing one app.
type Outcome struct {
	App  string `json:"app"`
	Kind Kind   `json:"kind"`
	// Reason explains a skip.
	Reason string `json:"reason,omitempty"`
	// Stage and Message describe a failure.
	Stage        string   `json:"stage,omitempty"`
	Message      string   `json:"message,omitempty"`
	VersionCodes []int64  `json:"version_codes,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Accepted records new versions published for app.
func Accepted(app string, versionCodes []int64, warnings []string) Outcome {
	return Outcome{App: app, Kind: KindAccepted, VersionCodes: versionCodes, Warnings: warnings}
}

// Skipped records an app with nothing to publish.
func Skipped(app, reason string, warnings []string) Outcome {
	return Outcome{App: app, Kind: KindSkipped, Reason: reason, Warnings: warnings}
}

// Failed records an app that failed at stage.
func Failed(app, stage string, err error, warnings []string) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{App: app, Kind: KindFailed, Stage: stage, Message: msg, Warnings: warnings}
}

// Summary is the machine-readable run summary.
type Summary struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Counts       map[Kind]int  `json:"counts"`
	Failures     []Outcome     `json:"failures"`
	Skips        []Outcome     `json:"skips"`
	Outcomes     []Outcome     `json:"outcomes"`
	IndexChanged bool          `json:"index_changed"`
	Written      []string      `json:"written,omitempty"`
	Duration     time.Duration `json:"-"`
}

// ExitCode is ExitPartial when any app failed.
func (s Summary) ExitCode() int {
	if s.Counts[KindFailed] > 0 {
		return ExitPartial
	}
	return ExitOK
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(r *Reporter) {
		r.runID = id
	}
}

// Reporter accumulates outcomes. It is safe for concurrent use.
type Reporter struct {
	mu       sync.Mutex
	runID    string
	now      func() time.Time
	started  time.Time
	outcomes map[string]Outcome
	written  []string
	changed  bool
	logger   *slog.Logger
}

// NewReporter starts a run.
func NewReporter(logger *slog.Logger, opts ...Option) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{
		now:      time.Now,
		outcomes: map[string]Outcome{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.started = r.now().UTC()
	return r
}

// RunID identifies this run.
func (r *Reporter) RunID() string {
	return r.runID
}

// Record stores the outcome for an app; a later record for the same app
// replaces the earlier one.
func (r *Reporter) Record(o Outcome) {
	r.mu.Lock()
	r.outcomes[o.App] = o
	r.mu.Unlock()

	attrs := []any{"app", o.App, "outcome", o.Kind}
	switch o.Kind {
	case KindAccepted:
		r.logger.Info("app accepted", append(attrs, "version_codes", o.VersionCodes)...)
	case KindSkipped:
		r.logger.Info("app skipped", append(attrs, "reason", o.Reason)...)
	case KindFailed:
		r.logger.Error("app failed", append(attrs, "stage", o.Stage, "error", o.Message)...)
	}
	for _, w := range o.Warnings {
		r.logger.Warn("app warning", "app", o.App, "warning", w)
	}
}

// SetIndexResult records which index files the run replaced.
func (r *Reporter) SetIndexResult(written []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written = slices.Clone(written)
	r.changed = len(written) > 0
}

// Summary snapshots the recorded outcomes, sorted by app.
func (r *Reporter) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	finished := r.now().UTC()
	s := Summary{
		RunID:        r.runID,
		StartedAt:    r.started,
		FinishedAt:   finished,
		Duration:     finished.Sub(r.started),
		Counts:       map[Kind]int{KindAccepted: 0, KindSkipped: 0, KindFailed: 0},
		Failures:     []Outcome{},
		Skips:        []Outcome{},
		Outcomes:     []Outcome{},
		IndexChanged: r.changed,
		Written:      slices.Clone(r.written),
	}
	for _, app := range slices.Sorted(maps.Keys(r.outcomes)) {
		o := r.outcomes[app]
		s.Counts[o.Kind]++
		s.Outcomes = append(s.Outcomes, o)
		switch o.Kind {
		case KindFailed:
			s.Failures = append(s.Failures, o)
		case KindSkipped:
			s.Skips = append(s.Skips, o)
		}
	}
	return s
}

// safely runs a renderer, turning panics and errors into log lines.
func (r *Reporter) safely(name string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("report renderer panicked", "renderer", name, "panic", p)
		}
	}()
	if err := fn(); err != nil {
		r.logger.Warn("report renderer failed", "renderer", name, "error", err)
	}
}

var errNoDestination = errors.New("no destination")
