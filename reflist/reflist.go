// Package reflist keeps the QKan lookup tables that translate HE codes into
// the labels used in QKan. Unknown codes met during an import grow the table.
package reflist

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
)

// Table names a QKan lookup table and its label column.
type Table struct {
	Name  string
	Label string
}

var (
	Entwaesserungsarten = Table{Name: "entwaesserungsarten", Label: "bezeichnung"}
	Pumpentypen         = Table{Name: "pumpentypen", Label: "bezeichnung"}
	Profile             = Table{Name: "profile", Label: "profilnam"}
	Auslasstypen        = Table{Name: "auslasstypen", Label: "bezeichnung"}
	Simulationsstatus   = Table{Name: "simulationsstatus", Label: "bezeichnung"}
)

// List is the in-memory code → label map of one table.
type List struct {
	table  Table
	labels map[int64]string
}

// Load reads every row with a code. When a code appears more than once the
// row with the lowest pk wins.
func Load(ctx context.Context, s *session.Session, t Table) (*List, error) {
	q := fmt.Sprintf("SELECT he_nr, %s FROM %s WHERE he_nr IS NOT NULL ORDER BY pk", t.Label, t.Name)
	rows, err := s.QueryQK(ctx, "reflist "+t.Name, fields.NewStatement(q))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	l := &List{table: t, labels: make(map[int64]string)}
	for rows.Next() {
		var code int64
		var label sql.NullString
		if err := rows.Scan(&code, &label); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		if _, ok := l.labels[code]; !ok {
			l.labels[code] = label.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", t.Name, err)
	}

	log.Debugf("Loaded %d codes from %s", len(l.labels), t.Name)
	return l, nil
}

// Label returns the label of code without changing the table.
func (l *List) Label(code int64) (string, bool) {
	label, ok := l.labels[code]
	return label, ok
}

func (l *List) Len() int { return len(l.labels) }

// Labels returns every label of the table in no particular order.
func (l *List) Labels() []string {
	labels := make([]string, 0, len(l.labels))
	for _, label := range l.labels {
		labels = append(labels, label)
	}
	return labels
}

// Resolve returns the label of code. An unseen code is inserted with hint as
// label, or "(<code>)" when hint is empty, and remembered for the rest of the
// pass. A NULL code resolves to NULL.
func (l *List) Resolve(ctx context.Context, tx *session.Tx, step int, code sql.NullInt64, hint string) (fields.Value, error) {
	if !code.Valid {
		return fields.Null, nil
	}
	if label, ok := l.labels[code.Int64]; ok {
		return fields.Str(label), nil
	}

	label := hint
	if label == "" {
		label = fmt.Sprintf("(%d)", code.Int64)
	}

	q := fmt.Sprintf("INSERT INTO %s (%s, he_nr) VALUES (?, ?)", l.table.Name, l.table.Label)
	if _, err := tx.Exec(ctx, step, fields.NewStatement(q, fields.Str(label), fields.Int(code.Int64))); err != nil {
		return fields.Null, err
	}

	l.labels[code.Int64] = label
	log.Infof("Added %s %q for HE code %d", l.table.Name, label, code.Int64)
	return fields.Str(label), nil
}
