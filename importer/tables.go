package importer

import (
	"context"
	"database/sql"

	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
)

const (
	catchmentQuery = `
		SELECT NAME, EINWOHNERDICHTE, WASSERVERBRAUCH, STUNDENMITTEL, FREMDWASSERANTEIL, KOMMENTAR, LASTMODIFIED
		FROM TEILEINZUGSGEBIET
		ORDER BY ID`

	// Storage curves are stored relative to the storage invert.
	storageCurveQuery = `
		SELECT SPEICHERSCHACHT.NAME, TABELLENINHALTE.KEYWERT + SPEICHERSCHACHT.SOHLHOEHE, TABELLENINHALTE.WERT
		FROM TABELLENINHALTE
		JOIN SPEICHERSCHACHT ON TABELLENINHALTE.ID = SPEICHERSCHACHT.ID
		ORDER BY SPEICHERSCHACHT.ID, TABELLENINHALTE.REIHENFOLGE`

	profileCurveQuery = `
		SELECT SONDERPROFIL.NAME, TABELLENINHALTE.KEYWERT, TABELLENINHALTE.WERT
		FROM TABELLENINHALTE
		JOIN SONDERPROFIL ON TABELLENINHALTE.ID = SONDERPROFIL.ID
		ORDER BY SONDERPROFIL.ID, TABELLENINHALTE.REIHENFOLGE`

	runoffQuery = `
		SELECT NAME, ABFLUSSBEIWERTANFANG, ABFLUSSBEIWERTENDE, BENETZUNGSVERLUST, MULDENVERLUST,
			BENETZUNGSPEICHERSTART, MULDENAUFFUELLGRADSTART, TYP, BODENKLASSE, KOMMENTAR, LASTMODIFIED
		FROM ABFLUSSPARAMETER
		ORDER BY ID`
)

func importEinzugsgebiete(ctx context.Context, s *session.Session, _ *refs) error {
	var rows []fields.Row
	err := readHE(ctx, s, "import_einzugsgebiete (read)", catchmentQuery, func(r *sql.Rows) error {
		var name, kommentar, lastmodified sql.NullString
		var ewdichte, wverbrauch, stdmittel, fremdwas sql.NullFloat64
		if err := r.Scan(&name, &ewdichte, &wverbrauch, &stdmittel, &fremdwas, &kommentar, &lastmodified); err != nil {
			return err
		}
		rows = append(rows, fields.Row{Table: "einzugsgebiete", Columns: []fields.Column{
			fields.Text("tgnam", fields.NullStr(name)),
			fields.Double("ewdichte", fields.NullFloat(ewdichte)),
			fields.Double("wverbrauch", fields.NullFloat(wverbrauch)),
			fields.Double("stdmittel", fields.NullFloat(stdmittel)),
			fields.Double("fremdwas", fields.NullFloat(fremdwas)),
			fields.Text("kommentar", fields.NullStr(kommentar)),
			fields.Text("createdat", fields.NullStr(lastmodified)),
		}})
		return nil
	})
	if err != nil {
		return err
	}

	return insert(ctx, s, "einzugsgebiete", "tgnam", len(rows), func(_ *session.Tx, _ int, i int) (fields.Row, error) {
		return rows[i], nil
	})
}

// curve is a named sequence of table points.
type curve struct {
	name   string
	points [][2]sql.NullFloat64
}

func readCurves(ctx context.Context, s *session.Session, label, query string) ([]curve, error) {
	var curves []curve
	err := readHE(ctx, s, label, query, func(r *sql.Rows) error {
		var name string
		var key, value sql.NullFloat64
		if err := r.Scan(&name, &key, &value); err != nil {
			return err
		}
		if len(curves) == 0 || curves[len(curves)-1].name != name {
			curves = append(curves, curve{name: name})
		}
		last := &curves[len(curves)-1]
		last.points = append(last.points, [2]sql.NullFloat64{key, value})
		return nil
	})
	return curves, err
}

// writeCurves replaces the rows of every imported curve.
func writeCurves(ctx context.Context, s *session.Session, name, table, key, x, y string, curves []curve) error {
	written := 0
	err := s.QKBlock(ctx, "import_"+name, func(tx *session.Tx) error {
		for i, c := range curves {
			step := i + 1
			del := fields.NewStatement("DELETE FROM "+table+" WHERE "+key+" = ?", fields.Str(c.name))
			if _, err := tx.Exec(ctx, step, del); err != nil {
				return err
			}
			for _, p := range c.points {
				row := fields.Row{Table: table, Columns: []fields.Column{
					fields.Text(key, fields.Str(c.name)),
					fields.Double(x, fields.NullFixed(p[0], 3)),
					fields.Double(y, fields.NullFixed(p[1], 3)),
				}}
				if _, err := tx.Exec(ctx, step, row.Insert()); err != nil {
					return err
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Report.Count(name, written)
	return nil
}

func importSpeicherkennlinien(ctx context.Context, s *session.Session, _ *refs) error {
	curves, err := readCurves(ctx, s, "import_speicherkennlinien (read)", storageCurveQuery)
	if err != nil {
		return err
	}
	return writeCurves(ctx, s, "speicherkennlinien", "speicherkennlinien", "schnam", "wspiegel", "oberfl", curves)
}

func importProfildaten(ctx context.Context, s *session.Session, _ *refs) error {
	curves, err := readCurves(ctx, s, "import_profildaten (read)", profileCurveQuery)
	if err != nil {
		return err
	}
	return writeCurves(ctx, s, "profildaten", "profildaten", "profilnam", "wspiegel", "wbreite", curves)
}

// importAbflussparameter overwrites parameter sets with the same name.
func importAbflussparameter(ctx context.Context, s *session.Session, _ *refs) error {
	var rows []fields.Row
	err := readHE(ctx, s, "import_abflussparameter (read)", runoffQuery, func(r *sql.Rows) error {
		var name, bodenklasse, kommentar, lastmodified sql.NullString
		var v [6]sql.NullFloat64
		var typ sql.NullInt64
		if err := r.Scan(&name, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &typ, &bodenklasse,
			&kommentar, &lastmodified); err != nil {
			return err
		}

		// impervious surfaces have no soil class in QKan
		soil := fields.NullStr(bodenklasse)
		if (typ.Valid && typ.Int64 == 0) || bodenklasse.String == "" {
			soil = fields.Null
		}

		rows = append(rows, fields.Row{Table: "abflussparameter", Columns: []fields.Column{
			fields.Text("apnam", fields.NullStr(name)),
			fields.Double("anfangsabflussbeiwert", fields.NullFloat(v[0])),
			fields.Double("endabflussbeiwert", fields.NullFloat(v[1])),
			fields.Double("benetzungsverlust", fields.NullFloat(v[2])),
			fields.Double("muldenverlust", fields.NullFloat(v[3])),
			fields.Double("benetzung_startwert", fields.NullFloat(v[4])),
			fields.Double("mulden_startwert", fields.NullFloat(v[5])),
			fields.Text("bodenklasse", soil),
			fields.Text("kommentar", fields.NullStr(kommentar)),
			fields.Text("createdat", fields.NullStr(lastmodified)),
		}})
		return nil
	})
	if err != nil {
		return err
	}

	err = s.QKBlock(ctx, "import_abflussparameter", func(tx *session.Tx) error {
		for i, row := range rows {
			del := fields.NewStatement(`DELETE FROM abflussparameter WHERE apnam = ?`, row.Get("apnam"))
			if _, err := tx.Exec(ctx, i+1, del); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, i+1, row.Insert()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Report.Count("abflussparameter", len(rows))
	return nil
}
