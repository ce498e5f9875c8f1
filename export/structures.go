package export

import (
	"context"
	"database/sql"

	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

// weirProfile is the HE profile type of a weir crest.
const weirProfile = 52

var pumpQuery = `
	SELECT pu.pnam, pu.schoben, pu.schunten, pt.he_nr, pu.steuersch, pu.einschalthoehe,
		pu.ausschalthoehe, st.he_nr, pu.kommentar, pu.createdat
	FROM pumpen AS pu
	LEFT JOIN pumpentypen AS pt ON pu.pumpentyp = pt.bezeichnung
	LEFT JOIN simulationsstatus AS st ON pu.simstatus = st.bezeichnung
	WHERE pu.pnam IS NOT NULL%FILTER%
	ORDER BY pu.pk`

var weirQuery = `
	SELECT we.wnam, we.schoben, we.schunten, coalesce(sob.sohlhoehe, 0), coalesce(sun.sohlhoehe, 0),
		we.schwellenhoehe, we.kammerhoehe, we.laenge, we.uebeiwert, st.he_nr, we.kommentar, we.createdat
	FROM wehre AS we
	LEFT JOIN simulationsstatus AS st ON we.simstatus = st.bezeichnung
	LEFT JOIN schaechte AS sob ON we.schoben = sob.schnam
	LEFT JOIN schaechte AS sun ON we.schunten = sun.schnam
	WHERE we.wnam IS NOT NULL%FILTER%
	ORDER BY we.pk`

func exportPumpen(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	filter, values := subareas(s, "pu")
	st := fields.NewStatement(withFilter(pumpQuery, filter), values...)

	rows, err := collect(ctx, s, "export_pumpen", st, func(r *sql.Rows) (fields.Row, bool, error) {
		var name, schoben, schunten, steuersch, kommentar, createdat sql.NullString
		var typ, status sql.NullInt64
		var ein, aus sql.NullFloat64
		if err := r.Scan(&name, &schoben, &schunten, &typ, &steuersch, &ein, &aus, &status, &kommentar, &createdat); err != nil {
			return fields.Row{}, false, err
		}

		return fields.Row{Table: "PUMPE", Columns: []fields.Column{
			fields.Text("NAME", fields.NullStr(name)),
			fields.Integer("TYP", fields.NullInt(typ)),
			fields.Text("SCHACHTOBEN", fields.NullStr(schoben)),
			fields.Text("SCHACHTUNTEN", fields.NullStr(schunten)),
			fields.Text("STEUERSCHACHT", fields.NullStr(steuersch)),
			fields.Double("EINSCHALTHOEHE", fields.NullFixed(ein, 3)),
			fields.Double("AUSSCHALTHOEHE", fields.NullFixed(aus, 3)),
			fields.Integer("PLANUNGSSTATUS", planungsstatus(status)),
			fields.Text("LASTMODIFIED", fields.Timestamp(createdat, s.Now)),
			fields.Text("KOMMENTAR", fields.NullStr(kommentar).Or(fields.Str(defaultComment))),
		}}, true, nil
	})
	if err != nil {
		return err
	}
	return write(ctx, s, "pumpen", flags, rows, nil)
}

func exportWehre(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	filter, values := subareas(s, "we")
	st := fields.NewStatement(withFilter(weirQuery, filter), values...)

	rows, err := collect(ctx, s, "export_wehre", st, func(r *sql.Rows) (fields.Row, bool, error) {
		var name, schoben, schunten, kommentar, createdat sql.NullString
		var sohleOben, sohleUnten, schwelle, kammer, laenge, beiwert sql.NullFloat64
		var status sql.NullInt64
		if err := r.Scan(&name, &schoben, &schunten, &sohleOben, &sohleUnten, &schwelle, &kammer, &laenge,
			&beiwert, &status, &kommentar, &createdat); err != nil {
			return fields.Row{}, false, err
		}

		return fields.Row{Table: "WEHR", Columns: []fields.Column{
			fields.Text("NAME", fields.NullStr(name)),
			fields.Integer("TYP", fields.Int(1)),
			fields.Text("SCHACHTOBEN", fields.NullStr(schoben)),
			fields.Text("SCHACHTUNTEN", fields.NullStr(schunten)),
			fields.Double("SOHLHOEHEOBEN", fields.NullFixed(sohleOben, 3)),
			fields.Double("SOHLHOEHEUNTEN", fields.NullFixed(sohleUnten, 3)),
			fields.Double("SCHWELLENHOEHE", fields.NullFixed(schwelle, 3)),
			fields.Double("GEOMETRIE1", fields.NullFixed(kammer, 3)),
			fields.Double("GEOMETRIE2", fields.NullFixed(laenge, 3)),
			fields.Double("UEBERFALLBEIWERT", fields.NullFixed(beiwert, 3)),
			fields.Integer("RUECKSCHLAGKLAPPE", fields.Int(0)),
			fields.Integer("VERFAHRBAR", fields.Int(0)),
			fields.Integer("PROFILTYP", fields.Int(weirProfile)),
			fields.Integer("EREIGNISBILANZIERUNG", fields.Int(0)),
			fields.Double("EREIGNISGRENZWERTENDE", fields.Int(0)),
			fields.Double("EREIGNISGRENZWERTANFANG", fields.Int(0)),
			fields.Double("EREIGNISTRENNDAUER", fields.Int(0)),
			fields.Integer("EREIGNISINDIVIDUELL", fields.Int(0)),
			fields.Integer("PLANUNGSSTATUS", planungsstatus(status)),
			fields.Text("LASTMODIFIED", fields.Timestamp(createdat, s.Now)),
			fields.Text("KOMMENTAR", fields.NullStr(kommentar).Or(fields.Str(defaultComment))),
		}}, true, nil
	})
	if err != nil {
		return err
	}
	return write(ctx, s, "wehre", flags, rows, nil)
}
