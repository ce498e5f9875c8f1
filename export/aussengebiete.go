package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

// externalQuery is formatted with the centroid X and Y and the area in ha.
var externalQuery = `
	SELECT ag.gebnam, ag.schnam, ag.hoeheob, ag.hoeheun, %[1]s, %[2]s, %[3]s,
		ag.cn, ag.basisabfluss, ag.fliessweg, ag.regenschreiber, ag.kommentar, ag.createdat
	FROM aussengebiete AS ag
	WHERE ag.gebnam IS NOT NULL%%FILTER%%
	ORDER BY ag.pk`

// exportAussengebiete writes the external catchments. Each catchment keeps
// its CN value and area as a single TABELLENINHALTE row under its HE id.
func exportAussengebiete(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	centroid := s.Dialect.Centroid("ag.geom")
	hectares := "(" + s.Dialect.Area("ag.geom") + " / 10000.0)"
	filter, values := subareas(s, "ag")
	q := withFilter(fmt.Sprintf(externalQuery, s.Dialect.X(centroid), s.Dialect.Y(centroid), hectares), filter)

	rows, err := collect(ctx, s, "export_aussengebiete", fields.NewStatement(q, values...), func(r *sql.Rows) (fields.Row, bool, error) {
		var name, schnam, regenschreiber, kommentar, createdat sql.NullString
		var hoeheob, hoeheun, x, y, area, cn, basis, fliessweg sql.NullFloat64
		if err := r.Scan(&name, &schnam, &hoeheob, &hoeheun, &x, &y, &area, &cn, &basis, &fliessweg,
			&regenschreiber, &kommentar, &createdat); err != nil {
			return fields.Row{}, false, err
		}

		return fields.Row{Table: "AUSSENGEBIET", Columns: []fields.Column{
			fields.Text("NAME", fields.NullStr(name)),
			fields.Text("SCHACHT", fields.NullStr(schnam)),
			fields.Double("HOEHEOBEN", fields.NullFixed(hoeheob, 3)),
			fields.Double("HOEHEUNTEN", fields.NullFixed(hoeheun, 3)),
			fields.Double("XKOORDINATE", fields.NullFixed(x, 3)),
			fields.Double("YKOORDINATE", fields.NullFixed(y, 3)),
			fields.Double("GESAMTFLAECHE", fields.NullFixed(area, 4)),
			fields.Double("CNMITTELWERT", fields.NullFixed(cn, 2)),
			fields.Double("BASISZUFLUSS", fields.NullFixed(basis, 3)),
			fields.Double("FLIESSLAENGE", fields.NullFixed(fliessweg, 3)),
			fields.Integer("VERFAHREN", fields.Int(0)),
			fields.Text("REGENSCHREIBER", fields.NullStr(regenschreiber).Or(fields.Str(defaultRainGauge))),
			fields.Text("LASTMODIFIED", fields.Timestamp(createdat, s.Now)),
			fields.Text("KOMMENTAR", fields.NullStr(kommentar).Or(fields.Str(defaultComment))),
		}}, true, nil
	})
	if err != nil {
		return err
	}

	return write(ctx, s, "aussengebiete", flags, rows, func(ctx context.Context, tx *session.Tx, step int, row fields.Row, id int64, inserted bool) error {
		cn, area := row.Get("CNMITTELWERT"), row.Get("GESAMTFLAECHE")
		if flags.Modify {
			st := fields.NewStatement(`
				UPDATE TABELLENINHALTE SET KEYWERT = CAST(? AS DOUBLE PRECISION), WERT = CAST(? AS DOUBLE PRECISION)
				WHERE ID = (SELECT ID FROM AUSSENGEBIET WHERE NAME = ?)`, cn, area, row.Name())
			if _, err := tx.Exec(ctx, step, st); err != nil {
				return err
			}
		}
		if !inserted {
			return nil
		}
		_, err := tx.Exec(ctx, step, tableContent(id, cn, area, 1))
		return err
	})
}
