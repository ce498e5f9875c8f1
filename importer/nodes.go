package importer

import (
	"context"
	"database/sql"

	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
)

const (
	manholeQuery = `
		SELECT NAME, XKOORDINATE, YKOORDINATE, SOHLHOEHE, DECKELHOEHE, DURCHMESSER, DRUCKDICHTERDECKEL,
			KANALART, PLANUNGSSTATUS, KOMMENTAR, LASTMODIFIED
		FROM SCHACHT
		ORDER BY ID`

	storageQuery = `
		SELECT NAME, XKOORDINATE, YKOORDINATE, SOHLHOEHE, GELAENDEHOEHE, UEBERSTAUFLAECHE,
			PLANUNGSSTATUS, KOMMENTAR, LASTMODIFIED
		FROM SPEICHERSCHACHT
		ORDER BY ID`

	outfallQuery = `
		SELECT NAME, XKOORDINATE, YKOORDINATE, SOHLHOEHE, GELAENDEHOEHE, TYP, PLANUNGSSTATUS,
			KOMMENTAR, LASTMODIFIED
		FROM AUSLASS
		ORDER BY ID`
)

type heNode struct {
	name, kommentar, lastmodified sql.NullString
	x, y, sohle, deckel           sql.NullFloat64
	durchm, ueberstau             sql.NullFloat64
	druckdicht, kanalart, typ     sql.NullInt64
	status                        sql.NullInt64
}

// columns returns the schaechte columns shared by every node type.
func (n heNode) columns(schachttyp string, simstatus fields.Value) []fields.Column {
	return []fields.Column{
		fields.Text("schnam", fields.NullStr(n.name)),
		fields.Double("xsch", fields.NullFloat(n.x)),
		fields.Double("ysch", fields.NullFloat(n.y)),
		fields.Double("sohlhoehe", fields.NullFixed(n.sohle, 3)),
		fields.Double("deckelhoehe", fields.NullFixed(n.deckel, 3)),
		fields.Text("schachttyp", fields.Str(schachttyp)),
		fields.Text("simstatus", simstatus),
		fields.Text("kommentar", fields.NullStr(n.kommentar)),
		fields.Text("createdat", fields.NullStr(n.lastmodified)),
	}
}

func importSchaechte(ctx context.Context, s *session.Session, r *refs) error {
	var nodes []heNode
	err := readHE(ctx, s, "import_schaechte (read)", manholeQuery, func(rows *sql.Rows) error {
		var n heNode
		if err := rows.Scan(&n.name, &n.x, &n.y, &n.sohle, &n.deckel, &n.durchm, &n.druckdicht,
			&n.kanalart, &n.status, &n.kommentar, &n.lastmodified); err != nil {
			return err
		}
		nodes = append(nodes, n)
		return nil
	})
	if err != nil {
		return err
	}

	return insert(ctx, s, "schaechte", "schnam", len(nodes), func(tx *session.Tx, step int, i int) (fields.Row, error) {
		n := nodes[i]
		entwart, err := resolve(ctx, tx, step, r.entwart, n.kanalart)
		if err != nil {
			return fields.Row{}, err
		}
		simstatus, err := resolve(ctx, tx, step, r.simstatus, n.status)
		if err != nil {
			return fields.Row{}, err
		}

		cols := append(n.columns("Schacht", simstatus),
			fields.Double("durchm", fields.NullFixed(n.durchm, 3)),
			fields.Integer("druckdicht", fields.NullInt(n.druckdicht)),
			fields.Text("entwart", entwart),
		)
		return fields.Row{Table: "schaechte", Columns: cols}, nil
	})
}

func importSpeicher(ctx context.Context, s *session.Session, r *refs) error {
	var nodes []heNode
	err := readHE(ctx, s, "import_speicher (read)", storageQuery, func(rows *sql.Rows) error {
		var n heNode
		if err := rows.Scan(&n.name, &n.x, &n.y, &n.sohle, &n.deckel, &n.ueberstau, &n.status,
			&n.kommentar, &n.lastmodified); err != nil {
			return err
		}
		nodes = append(nodes, n)
		return nil
	})
	if err != nil {
		return err
	}

	return insert(ctx, s, "speicher", "schnam", len(nodes), func(tx *session.Tx, step int, i int) (fields.Row, error) {
		n := nodes[i]
		simstatus, err := resolve(ctx, tx, step, r.simstatus, n.status)
		if err != nil {
			return fields.Row{}, err
		}
		cols := append(n.columns("Speicher", simstatus),
			fields.Double("ueberstauflaeche", fields.NullFixed(n.ueberstau, 3)))
		return fields.Row{Table: "schaechte", Columns: cols}, nil
	})
}

func importAuslaesse(ctx context.Context, s *session.Session, r *refs) error {
	var nodes []heNode
	err := readHE(ctx, s, "import_auslaesse (read)", outfallQuery, func(rows *sql.Rows) error {
		var n heNode
		if err := rows.Scan(&n.name, &n.x, &n.y, &n.sohle, &n.deckel, &n.typ, &n.status,
			&n.kommentar, &n.lastmodified); err != nil {
			return err
		}
		nodes = append(nodes, n)
		return nil
	})
	if err != nil {
		return err
	}

	return insert(ctx, s, "auslaesse", "schnam", len(nodes), func(tx *session.Tx, step int, i int) (fields.Row, error) {
		n := nodes[i]
		auslasstyp, err := resolve(ctx, tx, step, r.auslasstyp, n.typ)
		if err != nil {
			return fields.Row{}, err
		}
		simstatus, err := resolve(ctx, tx, step, r.simstatus, n.status)
		if err != nil {
			return fields.Row{}, err
		}
		cols := append(n.columns("Auslass", simstatus), fields.Text("auslasstyp", auslasstyp))
		return fields.Row{Table: "schaechte", Columns: cols}, nil
	})
}
