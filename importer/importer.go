// Package importer reads a Hystem-Extran database into QKan: the network, the
// sub-catchments, the curve tables and the runoff parameters, and in a
// separate pass the simulation results.
package importer

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/reflist"
	"github.com/tebben/qkanhe/session"
)

// refs holds the QKan lookup tables for one pass.
type refs struct {
	entwart    *reflist.List
	pumpentyp  *reflist.List
	profil     *reflist.List
	auslasstyp *reflist.List
	simstatus  *reflist.List
}

type stepFunc func(ctx context.Context, s *session.Session, r *refs) error

type step struct {
	name     string
	progress float64
	run      stepFunc
}

var steps = []step{
	{name: "schaechte", progress: 0.15, run: importSchaechte},
	{name: "speicher", progress: 0.20, run: importSpeicher},
	{name: "auslaesse", progress: 0.25, run: importAuslaesse},
	{name: "haltungen", progress: 0.40, run: importHaltungen},
	{name: "pumpen", progress: 0.50, run: importPumpen},
	{name: "wehre", progress: 0.55, run: importWehre},
	{name: "geometrie", progress: 0.60, run: refreshGeometry},
	{name: "einzugsgebiete", progress: 0.65, run: importEinzugsgebiete},
	{name: "speicherkennlinien", progress: 0.70, run: importSpeicherkennlinien},
	{name: "profildaten", progress: 0.75, run: importProfildaten},
	{name: "abflussparameter", progress: 0.85, run: importAbflussparameter},
}

// Run imports the HE database of s into its QKan database. Every step
// commits on its own; the first error aborts the pass.
func Run(ctx context.Context, s *session.Session) error {
	r, err := loadRefs(ctx, s)
	if err != nil {
		return fmt.Errorf("import aborted: %w", err)
	}
	s.Report.Progress("Referenztabellen geladen", 0.05)

	for _, st := range steps {
		if err := st.run(ctx, s, r); err != nil {
			return err
		}
		s.Report.Progress(st.name, st.progress)
	}

	if s.Config.Import.ProjectTemplate != "" {
		if err := writeProject(ctx, s); err != nil {
			return err
		}
		s.Report.Progress("Projektdatei geschrieben", 0.95)
	}

	log.Infof("Import finished: %v", s.Report.Counts())
	return nil
}

func loadRefs(ctx context.Context, s *session.Session) (*refs, error) {
	var r refs
	for _, l := range []struct {
		dest  **reflist.List
		table reflist.Table
	}{
		{&r.entwart, reflist.Entwaesserungsarten},
		{&r.pumpentyp, reflist.Pumpentypen},
		{&r.profil, reflist.Profile},
		{&r.auslasstyp, reflist.Auslasstypen},
		{&r.simstatus, reflist.Simulationsstatus},
	} {
		list, err := reflist.Load(ctx, s, l.table)
		if err != nil {
			return nil, err
		}
		*l.dest = list
	}
	return &r, nil
}

// readHE runs query on the HE database and hands every row to scan. All rows
// are read before the caller writes to QKan.
func readHE(ctx context.Context, s *session.Session, label, query string, scan func(*sql.Rows) error) error {
	rows, err := s.QueryHE(ctx, label, fields.NewStatement(query))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	return nil
}

// buildFunc turns the i-th HE record into a QKan row, resolving lookup codes
// inside the transaction.
type buildFunc func(tx *session.Tx, step int, i int) (fields.Row, error)

// insert writes n rows in one QKan block. Rows whose key already exists are
// left alone.
func insert(ctx context.Context, s *session.Session, name, key string, n int, build buildFunc) error {
	written := 0
	err := s.QKBlock(ctx, "import_"+name, func(tx *session.Tx) error {
		for i := 0; i < n; i++ {
			step := i + 1
			row, err := build(tx, step, i)
			if err != nil {
				return err
			}
			c, err := tx.Exec(ctx, step, row.InsertNew(key))
			if err != nil {
				return err
			}
			written += int(c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if skipped := n - written; skipped > 0 {
		log.Infof("%s: %d rows already present", name, skipped)
	}
	s.Report.Count(name, written)
	return nil
}

// resolve is reflist.Resolve without a label hint.
func resolve(ctx context.Context, tx *session.Tx, step int, l *reflist.List, code sql.NullInt64) (fields.Value, error) {
	return l.Resolve(ctx, tx, step, code, "")
}
