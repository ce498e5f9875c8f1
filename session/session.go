// Package session holds the state of one transfer pass: both database
// handles, the HE row ID counter and the pass report. Everything is scoped to
// the pass and released by Close.
package session

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/database"
	"github.com/tebben/qkanhe/errors"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/he"
	"github.com/tebben/qkanhe/settings"
)

const (
	KindExport  = "export"
	KindImport  = "import"
	KindResults = "results"
	KindLink    = "link"
)

type Session struct {
	RunID   string
	Kind    string
	Config  settings.Config
	QK      *sql.DB
	HE      *sql.DB
	Dialect database.Dialect
	IDs     *he.IDAllocator
	Version he.Version
	Report  *Report

	// Now is the pass start, used for every defaulted timestamp.
	Now time.Time

	closeOnce sync.Once
}

// Open connects to the QKan database and, except for link passes, to the HE
// database.
func Open(ctx context.Context, cfg settings.Config, kind string) (*Session, error) {
	runID := uuid.NewString()
	s := &Session{
		RunID:  runID,
		Kind:   kind,
		Config: cfg,
		Report: NewReport(runID, kind),
		Now:    time.Now(),
	}

	qk, dialect, err := database.GetQKanDB(ctx, cfg.QKan)
	if err != nil {
		return nil, err
	}
	s.QK, s.Dialect = qk, dialect

	if kind != KindLink {
		heDB, err := database.GetHEDB(ctx, cfg.HE)
		if err != nil {
			database.Release(database.QKan)
			return nil, err
		}
		s.HE = heDB
	}

	log.WithFields(log.Fields{"run": runID, "kind": kind, "dialect": dialect.Name}).Info("Pass started")
	return s, nil
}

// Close hands both databases back to the pool.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		database.Release(database.QKan)
		if s.HE != nil {
			database.Release(database.HE)
		}
	})
}

// LoadIDs reads the HE ID counter and schema version. Failing to read them
// is fatal for the pass.
func (s *Session) LoadIDs(ctx context.Context) error {
	ids, v, err := he.LoadIDs(ctx, s.HE)
	if err != nil {
		return err
	}
	s.IDs, s.Version = ids, v
	log.Infof("HE schema version %s, next id %d", v, ids.Peek())
	return nil
}

// HEBlock runs fn in one HE transaction. The ID counter is stored in the same
// transaction, so rows and counter commit together.
func (s *Session) HEBlock(ctx context.Context, name string, fn func(*Tx) error) error {
	return block(ctx, s.HE, name, identity, func(tx *Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if s.IDs == nil {
			return nil
		}
		if err := s.IDs.Commit(ctx, tx); err != nil {
			return errors.NewStatementError(name+" (nextid)", `UPDATE "ITWH$PROGINFO" SET NEXTID = ...`, err)
		}
		return nil
	})
}

// QKBlock runs fn in one QKan transaction.
func (s *Session) QKBlock(ctx context.Context, name string, fn func(*Tx) error) error {
	return block(ctx, s.QK, name, s.Dialect.Rebind, fn)
}

// QueryQK runs a select on the QKan database outside of any block.
func (s *Session) QueryQK(ctx context.Context, label string, st fields.Statement) (*sql.Rows, error) {
	rows, err := s.QK.QueryContext(ctx, s.Dialect.Rebind(st.SQL), st.Args()...)
	if err != nil {
		return nil, errors.NewStatementError(label, st.Render(), err)
	}
	return rows, nil
}

// QueryHE runs a select on the HE database outside of any block.
func (s *Session) QueryHE(ctx context.Context, label string, st fields.Statement) (*sql.Rows, error) {
	rows, err := s.HE.QueryContext(ctx, st.SQL, st.Args()...)
	if err != nil {
		return nil, errors.NewStatementError(label, st.Render(), err)
	}
	return rows, nil
}

// Warn records a non-fatal data problem on the report.
func (s *Session) Warn(format string, args ...interface{}) {
	s.Report.Warn(format, args...)
}
