package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tebben/qkanhe/bktree"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/he"
	"github.com/tebben/qkanhe/reflist"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

const (
	// specialProfile is the HE profile type of a special profile, which is
	// identified by its name.
	specialProfile = 68

	defaultRoughness = 1.5
	concreteMaterial = 28
)

// pipeQuery is formatted with the length expression of the dialect.
var pipeQuery = `
	SELECT ha.haltnam, ha.schoben, ha.schunten, coalesce(ha.laenge, %[1]s),
		coalesce(ha.sohleoben, sob.sohlhoehe), coalesce(ha.sohleunten, sun.sohlhoehe),
		ha.profilnam, pr.he_nr, ha.hoehe, ha.breite, ea.he_nr, ha.ks, ha.createdat
	FROM haltungen AS ha
	JOIN schaechte AS sob ON ha.schoben = sob.schnam
	JOIN schaechte AS sun ON ha.schunten = sun.schnam
	LEFT JOIN profile AS pr ON ha.profilnam = pr.profilnam
	LEFT JOIN entwaesserungsarten AS ea ON ha.entwart = ea.bezeichnung
	LEFT JOIN simulationsstatus AS st ON ha.simstatus = st.bezeichnung
	WHERE (st.he_nr IN (0, 1, 2) OR st.he_nr IS NULL)%%FILTER%%
	ORDER BY ha.pk`

func exportHaltungen(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	filter, values := subareas(s, "ha")
	q := withFilter(fmt.Sprintf(pipeQuery, s.Dialect.Length("ha.geom")), filter)
	extra := he.Columns("ROHR", s.Version)

	profiles, err := reflist.Load(ctx, s, reflist.Profile)
	if err != nil {
		return err
	}
	known := bktree.New(profiles.Labels()...)

	rows, err := collect(ctx, s, "export_haltungen", fields.NewStatement(q, values...), func(r *sql.Rows) (fields.Row, bool, error) {
		var name, schoben, schunten, profilnam, createdat sql.NullString
		var laenge, sohleOben, sohleUnten, hoehe, breite, ks sql.NullFloat64
		var profil, kanalart sql.NullInt64
		if err := r.Scan(&name, &schoben, &schunten, &laenge, &sohleOben, &sohleUnten, &profilnam, &profil,
			&hoehe, &breite, &kanalart, &ks, &createdat); err != nil {
			return fields.Row{}, false, err
		}

		if !profil.Valid || profil.Int64 <= 0 {
			s.Warn("haltungen: %s has no HE profile for %q and is skipped%s", name.String, profilnam.String,
				known.Hint(profilnam.String))
			return fields.Row{}, false, nil
		}

		sonderprofil := fields.Str("")
		if profil.Int64 == specialProfile {
			sonderprofil = fields.NullStr(profilnam)
		}

		cols := []fields.Column{
			fields.Text("NAME", fields.NullStr(name)),
			fields.Text("SCHACHTOBEN", fields.NullStr(schoben)),
			fields.Text("SCHACHTUNTEN", fields.NullStr(schunten)),
			fields.Double("LAENGE", fields.NullFixed(laenge, 4)),
			fields.Double("SOHLHOEHEOBEN", fields.NullFixed(sohleOben, 4)),
			fields.Double("SOHLHOEHEUNTEN", fields.NullFixed(sohleUnten, 4)),
			fields.Integer("PROFILTYP", fields.Int(profil.Int64)),
			fields.Text("SONDERPROFILBEZEICHNUNG", sonderprofil),
			fields.Double("GEOMETRIE1", fields.NullFixed(hoehe, 4)),
			fields.Double("GEOMETRIE2", fields.NullFixed(breite, 4)),
			fields.Integer("KANALART", fields.NullInt(kanalart)),
			fields.Double("RAUIGKEITSBEIWERT", fields.NullFixed(ks, 3).Or(fields.Float(defaultRoughness))),
			fields.Integer("ANZAHL", fields.Int(1)),
			fields.Text("TEILEINZUGSGEBIET", fields.Str("")),
			fields.Integer("RUECKSCHLAGKLAPPE", fields.Int(0)),
			fields.Double("KONSTANTERZUFLUSS", fields.Int(0)),
			fields.Integer("RAUIGKEITSANSATZ", fields.Int(1)),
			fields.Double("GEFAELLE", fields.Int(0)),
			fields.Double("GESAMTFLAECHE", fields.Int(0)),
			fields.Integer("ABFLUSSART", fields.Int(0)),
			fields.Integer("INDIVIDUALKONZEPT", fields.Int(0)),
			fields.Double("HYDRAULISCHERRADIUS", fields.Int(0)),
			fields.Double("RAUHIGKEITANZEIGE", fields.Float(defaultRoughness)),
			fields.Integer("PLANUNGSSTATUS", fields.Int(0)),
			fields.Text("LASTMODIFIED", fields.Timestamp(createdat, s.Now)),
			fields.Integer("MATERIALART", fields.Int(concreteMaterial)),
			fields.Integer("EREIGNISBILANZIERUNG", fields.Int(0)),
			fields.Double("EREIGNISGRENZWERTENDE", fields.Int(0)),
			fields.Double("EREIGNISGRENZWERTANFANG", fields.Int(0)),
			fields.Double("EREIGNISTRENNDAUER", fields.Int(0)),
			fields.Integer("EREIGNISINDIVIDUELL", fields.Int(0)),
		}
		for _, c := range extra {
			cols = append(cols, fields.Double(c, fields.Int(0)))
		}

		return fields.Row{Table: "ROHR", Columns: cols}, true, nil
	})
	if err != nil {
		return err
	}
	return write(ctx, s, "haltungen", flags, rows, nil)
}
