package export

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

const (
	defaultRainGauge   = "Regenschreiber1"
	rainGaugeComment   = "Ergänzt durch QKan"
	rainGaugeStationNr = 10000
)

var soilQuery = `
	SELECT bknam, infiltrationsrateanfang, infiltrationsrateende, infiltrationsratestart,
		rueckgangskonstante, regenerationskonstante, saettigungswassergehalt, kommentar, createdat
	FROM bodenklassen
	ORDER BY pk`

var runoffQuery = `
	SELECT apnam, anfangsabflussbeiwert, endabflussbeiwert, benetzungsverlust, muldenverlust,
		benetzung_startwert, mulden_startwert, bodenklasse, kommentar, createdat
	FROM abflussparameter
	WHERE apnam IS NOT NULL
	ORDER BY pk`

// Rain gauges are collected from every area, including areas outside the
// selected sub-areas.
var rainGaugeQuery = `SELECT DISTINCT coalesce(regenschreiber, ?) FROM flaechen ORDER BY 1`

func exportBodenklassen(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	rows, err := collect(ctx, s, "export_bodenklassen", fields.NewStatement(soilQuery), func(r *sql.Rows) (fields.Row, bool, error) {
		var name, kommentar, createdat sql.NullString
		var v [6]sql.NullFloat64
		if err := r.Scan(&name, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &kommentar, &createdat); err != nil {
			return fields.Row{}, false, err
		}
		if !name.Valid {
			s.Warn("bodenklassen: soil class without name skipped")
			return fields.Row{}, false, nil
		}

		return fields.Row{Table: "BODENKLASSE", Columns: []fields.Column{
			fields.Text("NAME", fields.NullStr(name)),
			fields.Double("INFILTRATIONSRATEANFANG", fields.NullFloat(v[0])),
			fields.Double("INFILTRATIONSRATEENDE", fields.NullFloat(v[1])),
			fields.Double("INFILTRATIONSRATESTART", fields.NullFloat(v[2])),
			fields.Double("RUECKGANGSKONSTANTE", fields.NullFloat(v[3])),
			fields.Double("REGENERATIONSKONSTANTE", fields.NullFloat(v[4])),
			fields.Double("SAETTIGUNGSWASSERGEHALT", fields.NullFloat(v[5])),
			fields.Text("LASTMODIFIED", fields.Timestamp(createdat, s.Now)),
			fields.Text("KOMMENTAR", fields.NullStr(kommentar).Or(fields.Str(defaultComment))),
		}}, true, nil
	})
	if err != nil {
		return err
	}
	return write(ctx, s, "bodenklassen", flags, rows, nil)
}

func exportAbflussparameter(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	rows, err := collect(ctx, s, "export_abflussparameter", fields.NewStatement(runoffQuery), func(r *sql.Rows) (fields.Row, bool, error) {
		var name, bodenklasse, kommentar, createdat sql.NullString
		var v [6]sql.NullFloat64
		if err := r.Scan(&name, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &bodenklasse, &kommentar, &createdat); err != nil {
			return fields.Row{}, false, err
		}

		// TYP 0 is an impervious surface, TYP 1 a pervious one with a soil class.
		typ := int64(1)
		if !bodenklasse.Valid {
			typ = 0
		}

		return fields.Row{Table: "ABFLUSSPARAMETER", Columns: []fields.Column{
			fields.Text("NAME", fields.NullStr(name)),
			fields.Double("ABFLUSSBEIWERTANFANG", fields.NullFixed(v[0], 2)),
			fields.Double("ABFLUSSBEIWERTENDE", fields.NullFixed(v[1], 2)),
			fields.Double("BENETZUNGSVERLUST", fields.NullFixed(v[2], 2)),
			fields.Double("MULDENVERLUST", fields.NullFixed(v[3], 2)),
			fields.Double("BENETZUNGSPEICHERSTART", fields.NullFixed(v[4], 2)),
			fields.Double("MULDENAUFFUELLGRADSTART", fields.NullFixed(v[5], 2)),
			fields.Double("SPEICHERKONSTANTEKONSTANT", fields.Int(1)),
			fields.Double("SPEICHERKONSTANTEMIN", fields.Int(0)),
			fields.Double("SPEICHERKONSTANTEMAX", fields.Int(0)),
			fields.Double("SPEICHERKONSTANTEKONSTANT2", fields.Int(1)),
			fields.Double("SPEICHERKONSTANTEMIN2", fields.Int(0)),
			fields.Double("SPEICHERKONSTANTEMAX2", fields.Int(0)),
			fields.Text("BODENKLASSE", fields.NullStr(bodenklasse).Or(fields.Str(""))),
			fields.Double("CHARAKTERISTISCHEREGENSPENDE", fields.Int(0)),
			fields.Double("CHARAKTERISTISCHEREGENSPENDE2", fields.Int(0)),
			fields.Integer("TYP", fields.Int(typ)),
			fields.Integer("JAHRESGANGVERLUSTE", fields.Int(0)),
			fields.Text("LASTMODIFIED", fields.Timestamp(createdat, s.Now)),
			fields.Text("KOMMENTAR", fields.NullStr(kommentar).Or(fields.Str(defaultComment))),
		}}, true, nil
	})
	if err != nil {
		return err
	}
	return write(ctx, s, "abflussparameter", flags, rows, nil)
}

// exportRegenschreiber adds the rain gauges referenced by areas but missing
// in HE. New gauges are numbered above the highest existing NUMMER.
func exportRegenschreiber(ctx context.Context, s *session.Session, flags settings.EntityFlags) error {
	if !flags.Export {
		return nil
	}

	referenced, err := readStrings(ctx, s, rainGaugeQuery, fields.Str(defaultRainGauge))
	if err != nil {
		return err
	}

	existing, last, err := rainGauges(ctx, s)
	if err != nil {
		return err
	}

	var rows []fields.Row
	for _, name := range referenced {
		if existing[name] {
			continue
		}
		last++
		rows = append(rows, fields.Row{Table: "REGENSCHREIBER", Columns: []fields.Column{
			fields.Integer("NUMMER", fields.Int(last)),
			fields.Text("STATION", fields.Str(fmt.Sprint(rainGaugeStationNr+last))),
			fields.Double("XKOORDINATE", fields.Int(0)),
			fields.Double("YKOORDINATE", fields.Int(0)),
			fields.Double("ZKOORDINATE", fields.Int(0)),
			fields.Text("NAME", fields.Str(name)),
			fields.Double("FLAECHEGESAMT", fields.Int(0)),
			fields.Double("FLAECHEDURCHLAESSIG", fields.Int(0)),
			fields.Double("FLAECHEUNDURCHLAESSIG", fields.Int(0)),
			fields.Integer("ANZAHLHALTUNGEN", fields.Int(0)),
			fields.Integer("INTERNENUMMER", fields.Int(0)),
			fields.Text("LASTMODIFIED", fields.Timestamp(sql.NullString{}, s.Now)),
			fields.Text("KOMMENTAR", fields.Str(rainGaugeComment)),
		}})
	}

	if len(rows) == 0 {
		log.Debug("All rain gauges exist in HE")
		return nil
	}
	return write(ctx, s, "regenschreiber", settings.EntityFlags{Export: true}, rows, nil)
}

// rainGauges returns the names of the HE rain gauges and the highest NUMMER.
func rainGauges(ctx context.Context, s *session.Session) (map[string]bool, int64, error) {
	rows, err := s.QueryHE(ctx, "export_regenschreiber (existing)", fields.NewStatement(`SELECT NAME, NUMMER FROM REGENSCHREIBER`))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	names := make(map[string]bool)
	var last int64
	for rows.Next() {
		var name sql.NullString
		var nr sql.NullInt64
		if err := rows.Scan(&name, &nr); err != nil {
			return nil, 0, err
		}
		names[name.String] = name.Valid
		if nr.Valid && nr.Int64 > last {
			last = nr.Int64
		}
	}
	return names, last, rows.Err()
}
