package export

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/tebben/qkanhe/bktree"
	"github.com/tebben/qkanhe/catchment"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

const maxAreaName = 30

// areaQuery lists one row per link. Formatted with the piece area in ha, the
// sub-catchment join and the minimum area condition.
var areaQuery = `
	SELECT substr(fl.flnam || '-' || CAST(lf.pk AS TEXT), 1, %[4]d), ha.haltnam, fl.neigkl, lf.abflusstyp,
		lf.speicherzahl, lf.speicherkonst, lf.fliesszeitflaeche, lf.fliesszeitkanal, %[1]s,
		fl.regenschreiber, fl.abflussparameter, fl.createdat, fl.kommentar
	FROM linkfl AS lf
	JOIN flaechen AS fl ON lf.flnam = fl.flnam
	JOIN haltungen AS ha ON lf.haltnam = ha.haltnam
	%[2]s
	WHERE %[3]s%%FILTER%%
	ORDER BY lf.pk`

// areaCombinedQuery aggregates the pieces per pipe and parameter set.
var areaCombinedQuery = `
	SELECT min(substr(fl.flnam || '-' || CAST(lf.pk AS TEXT), 1, %[4]d)), ha.haltnam, fl.neigkl, lf.abflusstyp,
		lf.speicherzahl, avg(lf.speicherkonst), max(lf.fliesszeitflaeche), max(lf.fliesszeitkanal), sum(%[1]s),
		fl.regenschreiber, fl.abflussparameter, max(fl.createdat), max(fl.kommentar)
	FROM linkfl AS lf
	JOIN flaechen AS fl ON lf.flnam = fl.flnam
	JOIN haltungen AS ha ON lf.haltnam = ha.haltnam
	%[2]s
	WHERE %[3]s%%FILTER%%
	GROUP BY ha.haltnam, fl.abflussparameter, fl.regenschreiber, lf.speicherzahl, lf.abflusstyp, fl.neigkl
	ORDER BY 1`

func exportFlaechen(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	runoffTypes, err := loadRunoffTypes(ctx, s)
	if err != nil {
		return err
	}
	known := bktree.New()
	for name := range runoffTypes {
		known.Insert(name)
	}

	sp := catchment.Splitter{
		Dialect:   s.Dialect,
		Intersect: s.Config.Export.Intersect,
		MinArea:   s.Config.Export.MinArea,
	}

	query := areaQuery
	if flags.Combine {
		query = areaCombinedQuery
	}
	filter, values := subareas(s, "ha")
	q := withFilter(fmt.Sprintf(query, sp.Hectares(), sp.Join(), sp.Filter(), maxAreaName), filter)
	st := fields.NewStatement(q, append([]fields.Value{fields.Float(sp.MinArea)}, values...)...)

	warned := make(map[string]bool)
	rows, err := collect(ctx, s, "export_flaechen", st, func(r *sql.Rows) (fields.Row, bool, error) {
		var name, haltnam, abflusstyp, regenschreiber, parameter, createdat, kommentar sql.NullString
		var neigkl, speicherzahl sql.NullInt64
		var speicherkonst, fzFlaeche, fzKanal, area sql.NullFloat64
		if err := r.Scan(&name, &haltnam, &neigkl, &abflusstyp, &speicherzahl, &speicherkonst, &fzFlaeche, &fzKanal,
			&area, &regenschreiber, &parameter, &createdat, &kommentar); err != nil {
			return fields.Row{}, false, err
		}

		typ := int64(0)
		if abflusstyp.Valid {
			nr, ok := runoffTypes[abflusstyp.String]
			if ok {
				typ = nr
			} else if !warned[abflusstyp.String] {
				warned[abflusstyp.String] = true
				s.Warn("flaechen: unknown runoff type %q, exported as direct runoff%s", abflusstyp.String,
					known.Hint(abflusstyp.String))
			}
		}

		if s.Config.Export.DeriveAreaDefaults && area.Valid {
			root := math.Sqrt(area.Float64)
			if !speicherkonst.Valid {
				speicherkonst = sql.NullFloat64{Float64: 2 * root, Valid: true}
			}
			if !fzFlaeche.Valid {
				fzFlaeche = sql.NullFloat64{Float64: 6 * root, Valid: true}
			}
		}

		fzOberflaeche := fields.NullFixed(fzFlaeche, 2).Or(fields.Int(0))
		return fields.Row{Table: "FLAECHE", Columns: []fields.Column{
			fields.Text("NAME", fields.NullStr(name)),
			fields.Double("GROESSE", fields.NullFixed(area, 4)),
			fields.Text("REGENSCHREIBER", fields.NullStr(regenschreiber).Or(fields.Str(defaultRainGauge))),
			fields.Text("HALTUNG", fields.NullStr(haltnam)),
			fields.Integer("BERECHNUNGSPEICHERKONSTANTE", fields.Int(typ)),
			fields.Integer("TYP", fields.Int(0)),
			fields.Integer("ANZAHLSPEICHER", fields.NullInt(speicherzahl).Or(fields.Int(0))),
			fields.Double("SPEICHERKONSTANTE", fields.NullFixed(speicherkonst, 3).Or(fields.Int(0))),
			fields.Double("SCHWERPUNKTLAUFZEIT", fzOberflaeche),
			fields.Double("FLIESSZEITOBERFLAECHE", fzOberflaeche),
			fields.Double("LAENGSTEFLIESSZEITKANAL", fields.NullFixed(fzKanal, 2).Or(fields.Int(0))),
			fields.Text("PARAMETERSATZ", fields.NullStr(parameter)),
			fields.Integer("NEIGUNGSKLASSE", fields.NullInt(neigkl).Or(fields.Int(0))),
			fields.Text("LASTMODIFIED", fields.Timestamp(createdat, s.Now)),
			fields.Text("KOMMENTAR", nonEmpty(kommentar, defaultComment)),
			fields.Integer("ZUORDNUNABHEZG", fields.Int(0)),
		}}, true, nil
	})
	if err != nil {
		return err
	}
	return write(ctx, s, "flaechen", flags, rows, nil)
}

// loadRunoffTypes maps the runoff type labels of abflusstypen to HE codes.
func loadRunoffTypes(ctx context.Context, s *session.Session) (map[string]int64, error) {
	rows, err := s.QueryQK(ctx, "abflusstypen", fields.NewStatement(`SELECT abflusstyp, he_nr FROM abflusstypen WHERE he_nr IS NOT NULL ORDER BY pk`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make(map[string]int64)
	for rows.Next() {
		var label sql.NullString
		var nr int64
		if err := rows.Scan(&label, &nr); err != nil {
			return nil, err
		}
		if _, ok := types[label.String]; label.Valid && !ok {
			types[label.String] = nr
		}
	}
	return types, rows.Err()
}

func nonEmpty(ns sql.NullString, def string) fields.Value {
	if !ns.Valid || ns.String == "" {
		return fields.Str(def)
	}
	return fields.Str(ns.String)
}
