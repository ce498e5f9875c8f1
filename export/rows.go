package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

const defaultComment = "eingefuegt von qkanhe"

// scanFunc turns the current result row into an HE row. A false keep drops
// the row.
type scanFunc func(rows *sql.Rows) (row fields.Row, keep bool, err error)

// afterFunc runs after the statements of one row inside the block. id is
// the value handed to the guarded insert and inserted reports whether that
// insert wrote a row.
type afterFunc func(ctx context.Context, tx *session.Tx, step int, row fields.Row, id int64, inserted bool) error

// collect runs st on the QKan database and reads every result row before
// any HE statement is issued.
func collect(ctx context.Context, s *session.Session, label string, st fields.Statement, scan scanFunc) ([]fields.Row, error) {
	rows, err := s.QueryQK(ctx, label, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fields.Row
	for rows.Next() {
		r, keep, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		if keep {
			out = append(out, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return out, nil
}

// write stores rows in one HE block named export_<name>: an update per row
// when modify is set, then a guarded insert per row when export is set.
func write(ctx context.Context, s *session.Session, name string, flags settings.EntityFlags, rows []fields.Row, after afterFunc) error {
	inserted := 0
	err := s.HEBlock(ctx, "export_"+name, func(tx *session.Tx) error {
		for i, r := range rows {
			step := i + 1
			if flags.Modify {
				if _, err := tx.Exec(ctx, step, r.Update()); err != nil {
					return err
				}
			}

			var id int64
			var n int64
			if flags.Export {
				id = s.IDs.Next()
				var err error
				if n, err = tx.Exec(ctx, step, r.InsertIfMissing(id)); err != nil {
					return err
				}
				inserted += int(n)
			}

			if after != nil {
				if err := after(ctx, tx, step, r, id, n > 0); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Report.Count(name, inserted)
	return nil
}

// subareas returns the condition restricting alias.teilgebiet to the
// configured sub-areas, or "" to export everything.
func subareas(s *session.Session, alias string) (string, []fields.Value) {
	list := s.Config.Export.Subareas
	if len(list) == 0 {
		return "", nil
	}

	marks := make([]string, len(list))
	values := make([]fields.Value, len(list))
	for i, name := range list {
		marks[i] = "?"
		values[i] = fields.Str(name)
	}
	return fmt.Sprintf(" AND %s.teilgebiet IN (%s)", alias, strings.Join(marks, ", ")), values
}

func countQK(ctx context.Context, s *session.Session, q string, values ...fields.Value) (int, error) {
	rows, err := s.QueryQK(ctx, "count", fields.NewStatement(q, values...))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func readStrings(ctx context.Context, s *session.Session, q string, values ...fields.Value) ([]string, error) {
	rows, err := s.QueryQK(ctx, "list", fields.NewStatement(q, values...))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			out = append(out, v.String)
		}
	}
	return out, rows.Err()
}

// planungsstatus maps a simulation status code to the HE planning status.
func planungsstatus(code sql.NullInt64) fields.Value {
	return fields.NullInt(code).Or(fields.Int(0))
}

// withFilter puts the sub-area condition into a query template.
func withFilter(query, filter string) string {
	return strings.ReplaceAll(query, "%FILTER%", filter)
}
