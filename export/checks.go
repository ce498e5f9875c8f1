package export

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
)

// Default parameters of a catchment created for population dischargers.
const (
	defaultEwdichte   = 60.0  // inhabitants per ha
	defaultWverbrauch = 120.0 // l/(inh·d)
	defaultStdmittel  = 14.0  // h
	defaultFremdwas   = 100.0 // %
	defaultCatchment  = "einzugsgebiet1"
)

type nameCheck struct {
	entity string
	table  string
	column string
	prefix string
}

var nameChecks = []nameCheck{
	{entity: "flaechen", table: "flaechen", column: "flnam", prefix: "f_"},
	{entity: "einleit", table: "einleit", column: "elnam", prefix: "e_"},
}

// checkNames makes sure every exported area and discharger has a name. With
// autocorrect empty names become <prefix><pk>, otherwise they abort the pass.
func checkNames(ctx context.Context, s *session.Session) error {
	for _, c := range nameChecks {
		if !active(s.Config.Export.Flags(c.entity)) {
			continue
		}

		missing, err := countQK(ctx, s, fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NULL OR %s = ''",
			c.table, c.column, c.column))
		if err != nil {
			return err
		}
		if missing == 0 {
			continue
		}

		if !s.Config.Export.Autocorrect {
			return fmt.Errorf("%d rows in %s have no %s", missing, c.table, c.column)
		}

		q := fmt.Sprintf("UPDATE %s SET %s = ? || CAST(pk AS TEXT) WHERE %s IS NULL OR %s = ''",
			c.table, c.column, c.column, c.column)
		err = s.QKBlock(ctx, "checknames_"+c.table, func(tx *session.Tx) error {
			_, err := tx.Exec(ctx, 1, fields.NewStatement(q, fields.Str(c.prefix)))
			return err
		})
		if err != nil {
			return err
		}
		s.Warn("%s: %d empty names in %s filled from the primary key", c.table, missing, c.column)
	}
	return nil
}

// checkEinzugsgebiete completes the catchments population dischargers draw
// their parameters from.
func checkEinzugsgebiete(ctx context.Context, s *session.Session) error {
	catchments, err := countQK(ctx, s, "SELECT count(*) FROM einzugsgebiete")
	if err != nil {
		return err
	}

	if catchments == 0 {
		named, err := readStrings(ctx, s, `SELECT einzugsgebiet FROM einleit
			WHERE einzugsgebiet IS NOT NULL AND einzugsgebiet <> 'NULL' AND einzugsgebiet <> ''
			GROUP BY einzugsgebiet ORDER BY einzugsgebiet`)
		if err != nil {
			return err
		}

		if len(named) == 0 {
			err = s.QKBlock(ctx, "einzugsgebiete_default", func(tx *session.Tx) error {
				if err := insertCatchment(ctx, tx, 1, defaultCatchment, s); err != nil {
					return err
				}
				_, err := tx.Exec(ctx, 2, fields.NewStatement(`UPDATE einleit SET einzugsgebiet = ? WHERE zufluss IS NULL`,
					fields.Str(defaultCatchment)))
				return err
			})
			if err != nil {
				return err
			}
			log.Infof("Created catchment %s for population dischargers", defaultCatchment)
			return nil
		}

		err = s.QKBlock(ctx, "einzugsgebiete_named", func(tx *session.Tx) error {
			for i, name := range named {
				if err := insertCatchment(ctx, tx, i+1, name, s); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Infof("Created %d catchments named by dischargers", len(named))
		return warnUnassigned(ctx, s)
	}

	assigned, err := countQK(ctx, s, `SELECT count(*) FROM einleit
		JOIN einzugsgebiete ON einleit.einzugsgebiet = einzugsgebiete.tgnam`)
	if err != nil {
		return err
	}
	if assigned > 0 {
		return warnUnassigned(ctx, s)
	}

	if catchments == 1 {
		err = s.QKBlock(ctx, "einzugsgebiete_single", func(tx *session.Tx) error {
			_, err := tx.Exec(ctx, 1, fields.NewStatement(`UPDATE einleit SET einzugsgebiet = (SELECT min(tgnam) FROM einzugsgebiete)`))
			return err
		})
		if err != nil {
			return err
		}
		log.Info("Assigned all dischargers to the only catchment")
		return nil
	}

	q := fmt.Sprintf(`UPDATE einleit SET einzugsgebiet = (
		SELECT tg.tgnam FROM einzugsgebiete AS tg
		WHERE einleit.geom IS NOT NULL AND tg.geom IS NOT NULL AND %s
		ORDER BY tg.pk LIMIT 1)`, s.Dialect.Within("einleit.geom", "tg.geom"))
	err = s.QKBlock(ctx, "einzugsgebiete_within", func(tx *session.Tx) error {
		_, err := tx.Exec(ctx, 1, fields.NewStatement(q))
		return err
	})
	if err != nil {
		return err
	}
	log.Info("Assigned dischargers to the catchment they lie in")
	return warnUnassigned(ctx, s)
}

func insertCatchment(ctx context.Context, tx *session.Tx, step int, name string, s *session.Session) error {
	st := fields.NewStatement(`INSERT INTO einzugsgebiete (tgnam, ewdichte, wverbrauch, stdmittel, fremdwas, kommentar, createdat)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fields.Str(name), fields.Float(defaultEwdichte), fields.Float(defaultWverbrauch),
		fields.Float(defaultStdmittel), fields.Float(defaultFremdwas),
		fields.Str(defaultComment), fields.Timestamp(sql.NullString{}, s.Now))
	_, err := tx.Exec(ctx, step, st)
	return err
}

func warnUnassigned(ctx context.Context, s *session.Session) error {
	n, err := countQK(ctx, s, `SELECT count(*) FROM einleit
		LEFT JOIN einzugsgebiete ON einleit.einzugsgebiet = einzugsgebiete.tgnam
		WHERE einzugsgebiete.pk IS NULL AND einleit.zufluss IS NULL`)
	if err != nil {
		return err
	}
	if n > 0 {
		s.Warn("einleit: %d population dischargers are not assigned to a catchment", n)
	}
	return nil
}
