package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

var nodeQuery = `
	SELECT sc.schnam, sc.deckelhoehe, sc.sohlhoehe, sc.durchm, sc.xsch, sc.ysch, sc.kommentar, sc.createdat
	FROM schaechte AS sc
	WHERE sc.schachttyp = ?%FILTER%
	ORDER BY sc.pk`

// node is one row of schaechte as read for SCHACHT, SPEICHERSCHACHT and
// AUSLASS.
type node struct {
	name      sql.NullString
	deckel    sql.NullFloat64
	sohle     sql.NullFloat64
	durchm    sql.NullFloat64
	x, y      sql.NullFloat64
	kommentar sql.NullString
	createdat sql.NullString
}

func (n *node) scan(rows *sql.Rows) error {
	return rows.Scan(&n.name, &n.deckel, &n.sohle, &n.durchm, &n.x, &n.y, &n.kommentar, &n.createdat)
}

func nodeStatement(s *session.Session, schachttyp string) fields.Statement {
	filter, values := subareas(s, "sc")
	return fields.NewStatement(withFilter(nodeQuery, filter), append([]fields.Value{fields.Str(schachttyp)}, values...)...)
}

func exportSchaechte(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	rows, err := collect(ctx, s, "export_schaechte", nodeStatement(s, "Schacht"), manholeRow(s))
	if err != nil {
		return err
	}
	return write(ctx, s, "schaechte", flags, rows, nil)
}

// manholeRow maps a manhole onto SCHACHT.
func manholeRow(s *session.Session) scanFunc {
	return func(r *sql.Rows) (fields.Row, bool, error) {
		var n node
		if err := n.scan(r); err != nil {
			return fields.Row{}, false, err
		}

		// QKan and HE both keep the diameter in mm.
		durchm := fields.NullFixed(n.durchm, 3)
		deckel := fields.NullFixed(n.deckel, 3)

		return fields.Row{Table: "SCHACHT", Columns: []fields.Column{
			fields.Text("NAME", fields.NullStr(n.name)),
			fields.Double("DECKELHOEHE", deckel),
			fields.Integer("KANALART", fields.Int(0)),
			fields.Integer("DRUCKDICHTERDECKEL", fields.Int(0)),
			fields.Double("SOHLHOEHE", fields.NullFixed(n.sohle, 3)),
			fields.Double("XKOORDINATE", fields.NullFixed(n.x, 3)),
			fields.Double("YKOORDINATE", fields.NullFixed(n.y, 3)),
			fields.Double("KONSTANTERZUFLUSS", fields.Int(0)),
			fields.Double("GELAENDEHOEHE", deckel),
			fields.Integer("ART", fields.Int(1)),
			fields.Integer("ANZAHLKANTEN", fields.Int(0)),
			fields.Double("SCHEITELHOEHE", fields.Int(0)),
			fields.Integer("PLANUNGSSTATUS", fields.Int(0)),
			fields.Text("LASTMODIFIED", fields.Timestamp(n.createdat, s.Now)),
			fields.Double("DURCHMESSER", durchm),
		}}, true, nil
	}
}

func exportSpeicher(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	rows, err := collect(ctx, s, "export_speicher", nodeStatement(s, "Speicher"), func(r *sql.Rows) (fields.Row, bool, error) {
		var n node
		if err := n.scan(r); err != nil {
			return fields.Row{}, false, err
		}

		deckel := fields.NullFixed(n.deckel, 3)
		return fields.Row{Table: "SPEICHERSCHACHT", Columns: []fields.Column{
			fields.Text("NAME", fields.NullStr(n.name)),
			fields.Integer("TYP", fields.Int(1)),
			fields.Double("SOHLHOEHE", fields.NullFixed(n.sohle, 3)),
			fields.Double("XKOORDINATE", fields.NullFixed(n.x, 3)),
			fields.Double("YKOORDINATE", fields.NullFixed(n.y, 3)),
			fields.Double("GELAENDEHOEHE", deckel),
			fields.Integer("ART", fields.Int(1)),
			fields.Integer("ANZAHLKANTEN", fields.Int(0)),
			fields.Double("SCHEITELHOEHE", deckel),
			fields.Double("HOEHEVOLLFUELLUNG", deckel),
			fields.Double("KONSTANTERZUFLUSS", fields.Int(0)),
			fields.Double("ABSETZWIRKUNG", fields.Int(0)),
			fields.Integer("PLANUNGSSTATUS", fields.Int(0)),
			fields.Text("LASTMODIFIED", fields.Timestamp(n.createdat, s.Now)),
			fields.Text("KOMMENTAR", fields.NullStr(n.kommentar).Or(fields.Str(defaultComment))),
		}}, true, nil
	})
	if err != nil {
		return err
	}
	return write(ctx, s, "speicher", flags, rows, nil)
}

var curveQuery = `
	SELECT sl.schnam, sl.wspiegel - sc.sohlhoehe AS wtiefe, sl.oberfl
	FROM speicherkennlinien AS sl
	JOIN schaechte AS sc ON sl.schnam = sc.schnam
	WHERE sc.schachttyp = 'Speicher'%FILTER%
	ORDER BY sc.schnam, sl.wspiegel`

type curvePoint struct {
	depth   fields.Value
	surface fields.Value
}

// exportSpeicherkennlinien writes the storage curves into TABELLENINHALTE
// under the HE id of their storage. A curve is only written for a storage
// without table rows; modify replaces existing rows.
func exportSpeicherkennlinien(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	filter, values := subareas(s, "sc")
	rows, err := s.QueryQK(ctx, "export_speicherkennlinien", fields.NewStatement(withFilter(curveQuery, filter), values...))
	if err != nil {
		return err
	}

	var order []string
	curves := make(map[string][]curvePoint)
	for rows.Next() {
		var name string
		var depth, surface sql.NullFloat64
		if err := rows.Scan(&name, &depth, &surface); err != nil {
			rows.Close()
			return fmt.Errorf("export_speicherkennlinien: %w", err)
		}
		if _, ok := curves[name]; !ok {
			order = append(order, name)
		}
		curves[name] = append(curves[name], curvePoint{depth: fields.NullFixed(depth, 3), surface: fields.NullFixed(surface, 3)})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("export_speicherkennlinien: %w", err)
	}

	written := 0
	err = s.HEBlock(ctx, "export_speicherkennlinien", func(tx *session.Tx) error {
		step := 0
		for _, name := range order {
			step++
			var id int64
			err := tx.QueryRow(ctx, step, fields.NewStatement(`SELECT ID FROM SPEICHERSCHACHT WHERE NAME = ?`, fields.Str(name)), &id)
			if err == sql.ErrNoRows {
				s.Warn("speicherkennlinien: storage %s is missing in SPEICHERSCHACHT, curve skipped", name)
				continue
			}
			if err != nil {
				return err
			}

			if flags.Modify {
				if _, err := tx.Exec(ctx, step, fields.NewStatement(`DELETE FROM TABELLENINHALTE WHERE ID = ?`, fields.Int(id))); err != nil {
					return err
				}
			}
			if !flags.Export {
				continue
			}

			var existing int
			if err := tx.QueryRow(ctx, step, fields.NewStatement(`SELECT COUNT(*) FROM TABELLENINHALTE WHERE ID = ?`, fields.Int(id)), &existing); err != nil {
				return err
			}
			if existing > 0 {
				continue
			}

			for i, p := range curves[name] {
				n, err := tx.Exec(ctx, step, tableContent(id, p.depth, p.surface, i+1))
				if err != nil {
					return err
				}
				written += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Report.Count("speicherkennlinien", written)
	return nil
}

// tableContent builds one TABELLENINHALTE row.
func tableContent(id int64, key, value fields.Value, order int) fields.Statement {
	return fields.Row{Table: "TABELLENINHALTE", Columns: []fields.Column{
		fields.Double("KEYWERT", key),
		fields.Double("WERT", value),
		fields.Integer("REIHENFOLGE", fields.Int(int64(order))),
		fields.Integer("ID", fields.Int(id)),
	}}.Insert()
}

func exportAuslaesse(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	rows, err := collect(ctx, s, "export_auslaesse", nodeStatement(s, "Auslass"), func(r *sql.Rows) (fields.Row, bool, error) {
		var n node
		if err := n.scan(r); err != nil {
			return fields.Row{}, false, err
		}

		deckel := fields.NullFixed(n.deckel, 3)
		return fields.Row{Table: "AUSLASS", Columns: []fields.Column{
			fields.Text("NAME", fields.NullStr(n.name)),
			fields.Integer("TYP", fields.Int(1)),
			fields.Integer("RUECKSCHLAGKLAPPE", fields.Int(0)),
			fields.Double("SOHLHOEHE", fields.NullFixed(n.sohle, 3)),
			fields.Double("XKOORDINATE", fields.NullFixed(n.x, 3)),
			fields.Double("YKOORDINATE", fields.NullFixed(n.y, 3)),
			fields.Double("GELAENDEHOEHE", deckel),
			fields.Integer("ART", fields.Int(3)),
			fields.Integer("ANZAHLKANTEN", fields.Int(0)),
			fields.Double("SCHEITELHOEHE", deckel),
			fields.Double("KONSTANTERZUFLUSS", fields.Int(0)),
			fields.Integer("PLANUNGSSTATUS", fields.Int(0)),
			fields.Text("LASTMODIFIED", fields.Timestamp(n.createdat, s.Now)),
			fields.Text("KOMMENTAR", fields.NullStr(n.kommentar).Or(fields.Str(defaultComment))),
		}}, true, nil
	})
	if err != nil {
		return err
	}
	return write(ctx, s, "auslaesse", flags, rows, nil)
}
