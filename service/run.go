// Package service runs transfer passes for the CLI and the HTTP server.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/errors"
	"github.com/tebben/qkanhe/export"
	"github.com/tebben/qkanhe/importer"
	"github.com/tebben/qkanhe/linkage"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

// ErrBusy is returned by Runner.Start while another pass is running.
var ErrBusy = stderrors.New("a pass is already running")

// Kinds lists the pass kinds in the order they are offered.
var Kinds = []string{session.KindExport, session.KindImport, session.KindResults, session.KindLink}

// linkOrder is the order in which a link pass refreshes the sets.
var linkOrder = []linkage.Set{linkage.Flaechen, linkage.Einleit, linkage.Einwohner, linkage.Aussengebiete}

func passFunc(kind string) (func(context.Context, *session.Session) error, error) {
	switch kind {
	case session.KindExport:
		return export.Run, nil
	case session.KindImport:
		return importer.Run, nil
	case session.KindResults:
		return importer.Results, nil
	case session.KindLink:
		return link, nil
	}
	return nil, fmt.Errorf("unknown pass %q", kind)
}

func link(ctx context.Context, s *session.Session) error {
	for i, set := range linkOrder {
		n, err := linkage.Update(ctx, s, set)
		if err != nil {
			return err
		}
		s.Report.Count("link_"+set.Name, n)
		s.Report.Progress(set.Name, float64(i+1)/float64(len(linkOrder)))
	}
	return nil
}

// Run opens a session for kind, runs the pass and closes the session. The
// returned snapshot is the final state of the report, also on failure.
func Run(ctx context.Context, cfg settings.Config, kind string) (session.Snapshot, error) {
	fn, err := passFunc(kind)
	if err != nil {
		return session.Snapshot{}, err
	}

	s, err := session.Open(ctx, cfg, kind)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer s.Close()

	return finish(s, fn(ctx, s))
}

func finish(s *session.Session, err error) (session.Snapshot, error) {
	s.Report.Finish(err)
	snap := s.Report.Snapshot()
	entry := log.WithFields(log.Fields{"run": snap.RunID, "kind": snap.Kind, "warnings": len(snap.Warnings)})
	if err != nil {
		if se, ok := errors.AsStatementError(err); ok {
			entry = entry.WithFields(log.Fields{"step": se.Context, "statement": se.Statement})
		}
		entry.WithError(err).Error("Pass failed")
		return snap, err
	}
	entry.Info("Pass finished")
	return snap, nil
}

// Runner allows one pass at a time and keeps the report of the latest one.
type Runner struct {
	config settings.Config

	mu      sync.Mutex
	running bool
	latest  *session.Report
}

func NewRunner(config settings.Config) *Runner {
	return &Runner{config: config}
}

// Start opens a session for kind and runs the pass in the background. It
// returns the run id, or ErrBusy while another pass runs.
func (r *Runner) Start(ctx context.Context, kind string) (string, error) {
	fn, err := passFunc(kind)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", ErrBusy
	}
	r.running = true
	r.mu.Unlock()

	s, err := session.Open(ctx, r.config, kind)
	if err != nil {
		r.done()
		return "", err
	}

	r.mu.Lock()
	r.latest = s.Report
	r.mu.Unlock()

	go func() {
		defer r.done()
		defer s.Close()
		_, _ = finish(s, fn(context.Background(), s))
	}()

	return s.RunID, nil
}

func (r *Runner) done() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// Latest returns the report of the running or last finished pass.
func (r *Runner) Latest() (session.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return session.Snapshot{}, false
	}
	return r.latest.Snapshot(), true
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
