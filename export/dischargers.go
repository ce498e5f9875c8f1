package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/he"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

const (
	maxDischargerName = 27
	billingDays       = 365

	originDirect     = 1
	originPopulation = 3
)

// Queries are formatted with the X and Y expressions of the dialect.
var (
	directQuery = `
		SELECT el.elnam, %[1]s, %[2]s, el.haltnam, NULL, NULL, NULL, NULL, el.zufluss, el.createdat
		FROM einleit AS el
		WHERE el.zufluss IS NOT NULL%%FILTER%%
		ORDER BY el.pk`

	directCombinedQuery = `
		SELECT min(el.elnam), avg(%[1]s), avg(%[2]s), el.haltnam, NULL, NULL, NULL, NULL, sum(el.zufluss), max(el.createdat)
		FROM einleit AS el
		WHERE el.zufluss IS NOT NULL%%FILTER%%
		GROUP BY el.haltnam
		ORDER BY 1`

	populationQuery = `
		SELECT el.elnam, %[1]s, %[2]s, el.haltnam, tg.wverbrauch, tg.stdmittel, tg.fremdwas, el.ew, NULL, el.createdat
		FROM einleit AS el
		JOIN einzugsgebiete AS tg ON el.einzugsgebiet = tg.tgnam
		WHERE el.zufluss IS NULL%%FILTER%%
		ORDER BY el.pk`

	populationCombinedQuery = `
		SELECT min(el.elnam), avg(%[1]s), avg(%[2]s), el.haltnam, tg.wverbrauch, tg.stdmittel, tg.fremdwas, el.ew,
			NULL, max(el.createdat)
		FROM einleit AS el
		JOIN einzugsgebiete AS tg ON el.einzugsgebiet = tg.tgnam
		WHERE el.zufluss IS NULL%%FILTER%%
		GROUP BY el.haltnam, tg.wverbrauch, tg.stdmittel, tg.fremdwas, el.ew
		ORDER BY 1`
)

func exportEinleit(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	direct, population := directQuery, populationQuery
	if flags.Combine {
		direct, population = directCombinedQuery, populationCombinedQuery
	}

	x, y := s.Dialect.X("el.geom"), s.Dialect.Y("el.geom")
	filter, values := subareas(s, "el")
	extra := he.Columns("EINZELEINLEITER", s.Version)

	var rows []fields.Row
	for _, q := range []struct {
		label  string
		query  string
		origin int64
	}{
		{label: "export_einleit (direct)", query: direct, origin: originDirect},
		{label: "export_einleit (population)", query: population, origin: originPopulation},
	} {
		st := fields.NewStatement(withFilter(fmt.Sprintf(q.query, x, y), filter), values...)
		part, err := collect(ctx, s, q.label, st, dischargerRow(s, q.origin, extra))
		if err != nil {
			return err
		}
		rows = append(rows, part...)
	}

	return write(ctx, s, "einleit", flags, rows, nil)
}

func dischargerRow(s *session.Session, origin int64, extra []string) scanFunc {
	return func(r *sql.Rows) (fields.Row, bool, error) {
		var name, haltnam, createdat sql.NullString
		var x, y, wverbrauch, stdmittel, fremdwas, ew, zufluss sql.NullFloat64
		if err := r.Scan(&name, &x, &y, &haltnam, &wverbrauch, &stdmittel, &fremdwas, &ew, &zufluss, &createdat); err != nil {
			return fields.Row{}, false, err
		}

		cols := []fields.Column{
			fields.Text("NAME", fields.NullStr(name).Truncate(maxDischargerName)),
			fields.Double("XKOORDINATE", fields.NullFixed(x, 3)),
			fields.Double("YKOORDINATE", fields.NullFixed(y, 3)),
			fields.Integer("ZUORDNUNGGESPERRT", fields.Int(0)),
			fields.Integer("ZUORDNUNABHEZG", fields.Int(1)),
			fields.Text("ROHR", fields.NullStr(haltnam)),
			fields.Integer("ABWASSERART", fields.Int(0)),
			fields.Double("EINWOHNER", fields.NullFixed(ew, 6)),
			fields.Double("WASSERVERBRAUCH", fields.NullFixed(wverbrauch, 6)),
			fields.Integer("HERKUNFT", fields.Int(origin)),
			fields.Double("STUNDENMITTEL", fields.NullFixed(stdmittel, 1)),
			fields.Double("FREMDWASSERZUSCHLAG", fields.NullFixed(fremdwas, 3)),
			fields.Double("FAKTOR", fields.Int(1)),
			fields.Double("GESAMTFLAECHE", fields.Int(0)),
			fields.Integer("ZUFLUSSMODELL", fields.Int(0)),
			fields.Double("ZUFLUSSDIREKT", fields.NullFloat(zufluss)),
			fields.Double("ZUFLUSS", fields.Int(0)),
			fields.Integer("PLANUNGSSTATUS", fields.Int(0)),
			fields.Integer("ABRECHNUNGSZEITRAUM", fields.Int(billingDays)),
			fields.Double("ABZUG", fields.Int(0)),
			fields.Text("LASTMODIFIED", fields.Timestamp(createdat, s.Now)),
		}
		for _, c := range extra {
			cols = append(cols, fields.Double(c, fields.Int(0)))
		}

		return fields.Row{Table: "EINZELEINLEITER", Columns: cols}, true, nil
	}
}
