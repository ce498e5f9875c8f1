package session

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/metrics"
)

// Report tracks progress, row counts and warnings of one pass. It is safe
// for concurrent readers; the pass itself writes from a single goroutine.
type Report struct {
	mu       sync.Mutex
	runID    string
	kind     string
	started  time.Time
	finished time.Time
	fraction float64
	message  string
	counts   map[string]int
	warnings []string
	err      string
}

// Snapshot is a copy of a report at one point in time.
type Snapshot struct {
	RunID    string         `json:"run_id"`
	Kind     string         `json:"kind"`
	Started  time.Time      `json:"started"`
	Finished *time.Time     `json:"finished,omitempty"`
	Fraction float64        `json:"fraction"`
	Message  string         `json:"message"`
	Counts   map[string]int `json:"counts"`
	Warnings []string       `json:"warnings"`
	Error    string         `json:"error,omitempty"`
}

func NewReport(runID, kind string) *Report {
	return &Report{
		runID:   runID,
		kind:    kind,
		started: time.Now(),
		counts:  make(map[string]int),
	}
}

// Progress records a checkpoint. Fractions never move backwards.
func (r *Report) Progress(message string, fraction float64) {
	r.mu.Lock()
	if fraction > r.fraction {
		r.fraction = fraction
	}
	r.message = message
	f := r.fraction
	r.mu.Unlock()

	metrics.SetProgress(f)
	log.WithField("run", r.runID).Infof("%3.0f%% %s", f*100, message)
}

// Count adds n written rows to block.
func (r *Report) Count(block string, n int) {
	r.mu.Lock()
	r.counts[block] += n
	r.mu.Unlock()

	metrics.AddRows(block, n)
}

// Warn records a non-fatal data problem.
func (r *Report) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()

	metrics.AddWarning(r.kind)
	log.WithField("run", r.runID).Warn(msg)
}

// Finish marks the report done. A non-nil err marks the pass as failed.
func (r *Report) Finish(err error) {
	r.mu.Lock()
	r.finished = time.Now()
	if err != nil {
		r.err = err.Error()
	} else {
		r.fraction = 1
		r.message = "fertig"
	}
	d := r.finished.Sub(r.started)
	r.mu.Unlock()

	metrics.ObservePass(r.kind, err == nil, d)
}

func (r *Report) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warnings...)
}

func (r *Report) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		counts[k] = v
	}
	return counts
}

func (r *Report) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		RunID:    r.runID,
		Kind:     r.kind,
		Started:  r.started,
		Fraction: r.fraction,
		Message:  r.message,
		Counts:   make(map[string]int, len(r.counts)),
		Warnings: append([]string{}, r.warnings...),
		Error:    r.err,
	}
	for k, v := range r.counts {
		s.Counts[k] = v
	}
	if !r.finished.IsZero() {
		f := r.finished
		s.Finished = &f
	}
	return s
}
