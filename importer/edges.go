package importer

import (
	"context"
	"database/sql"

	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
)

// specialProfile is the HE profile type whose name is given by
// SONDERPROFILBEZEICHNUNG.
const specialProfile = 68

// Upper nodes are manholes or storages, lower nodes may also be outfalls.
const (
	upperNodes = `(SELECT NAME, DECKELHOEHE FROM SCHACHT
		UNION SELECT NAME, GELAENDEHOEHE AS DECKELHOEHE FROM SPEICHERSCHACHT)`
	lowerNodes = `(SELECT NAME, DECKELHOEHE FROM SCHACHT
		UNION SELECT NAME, GELAENDEHOEHE AS DECKELHOEHE FROM AUSLASS
		UNION SELECT NAME, GELAENDEHOEHE AS DECKELHOEHE FROM SPEICHERSCHACHT)`
)

var (
	pipeQuery = `
		SELECT ROHR.NAME, ROHR.SCHACHTOBEN, ROHR.SCHACHTUNTEN, ROHR.GEOMETRIE1, ROHR.GEOMETRIE2, ROHR.LAENGE,
			ROHR.SOHLHOEHEOBEN, ROHR.SOHLHOEHEUNTEN, SO.DECKELHOEHE, SU.DECKELHOEHE, ROHR.TEILEINZUGSGEBIET,
			ROHR.PROFILTYP, ROHR.SONDERPROFILBEZEICHNUNG, ROHR.KANALART, ROHR.RAUIGKEITSBEIWERT,
			ROHR.PLANUNGSSTATUS, ROHR.KOMMENTAR, ROHR.LASTMODIFIED
		FROM ROHR
		JOIN ` + upperNodes + ` AS SO ON ROHR.SCHACHTOBEN = SO.NAME
		JOIN ` + lowerNodes + ` AS SU ON ROHR.SCHACHTUNTEN = SU.NAME
		ORDER BY ROHR.ID`

	pumpQuery = `
		SELECT NAME, SCHACHTOBEN, SCHACHTUNTEN, TYP, STEUERSCHACHT, EINSCHALTHOEHE, AUSSCHALTHOEHE,
			PLANUNGSSTATUS, KOMMENTAR, LASTMODIFIED
		FROM PUMPE
		ORDER BY ID`

	weirQuery = `
		SELECT NAME, SCHACHTOBEN, SCHACHTUNTEN, SCHWELLENHOEHE, GEOMETRIE1, GEOMETRIE2, UEBERFALLBEIWERT,
			PLANUNGSSTATUS, KOMMENTAR, LASTMODIFIED
		FROM WEHR
		ORDER BY ID`
)

type hePipe struct {
	name, schoben, schunten, teilgebiet, sonderprofil sql.NullString
	kommentar, lastmodified                           sql.NullString
	hoehe, breite, laenge, sohleOben, sohleUnten      sql.NullFloat64
	deckelOben, deckelUnten, ks                       sql.NullFloat64
	profil, kanalart, status                          sql.NullInt64
}

func importHaltungen(ctx context.Context, s *session.Session, r *refs) error {
	var pipes []hePipe
	err := readHE(ctx, s, "import_haltungen (read)", pipeQuery, func(rows *sql.Rows) error {
		var p hePipe
		if err := rows.Scan(&p.name, &p.schoben, &p.schunten, &p.hoehe, &p.breite, &p.laenge, &p.sohleOben,
			&p.sohleUnten, &p.deckelOben, &p.deckelUnten, &p.teilgebiet, &p.profil, &p.sonderprofil,
			&p.kanalart, &p.ks, &p.status, &p.kommentar, &p.lastmodified); err != nil {
			return err
		}
		pipes = append(pipes, p)
		return nil
	})
	if err != nil {
		return err
	}

	return insert(ctx, s, "haltungen", "haltnam", len(pipes), func(tx *session.Tx, step int, i int) (fields.Row, error) {
		p := pipes[i]
		profilnam, err := profileName(ctx, tx, step, r, p)
		if err != nil {
			return fields.Row{}, err
		}
		entwart, err := resolve(ctx, tx, step, r.entwart, p.kanalart)
		if err != nil {
			return fields.Row{}, err
		}
		simstatus, err := resolve(ctx, tx, step, r.simstatus, p.status)
		if err != nil {
			return fields.Row{}, err
		}

		return fields.Row{Table: "haltungen", Columns: []fields.Column{
			fields.Text("haltnam", fields.NullStr(p.name)),
			fields.Text("schoben", fields.NullStr(p.schoben)),
			fields.Text("schunten", fields.NullStr(p.schunten)),
			fields.Double("hoehe", fields.NullFixed(p.hoehe, 4)),
			fields.Double("breite", fields.NullFixed(p.breite, 4)),
			fields.Double("laenge", fields.NullFixed(p.laenge, 4)),
			fields.Double("sohleoben", fields.NullFixed(p.sohleOben, 4)),
			fields.Double("sohleunten", fields.NullFixed(p.sohleUnten, 4)),
			fields.Double("deckeloben", fields.NullFixed(p.deckelOben, 3)),
			fields.Double("deckelunten", fields.NullFixed(p.deckelUnten, 3)),
			fields.Text("teilgebiet", fields.NullStr(p.teilgebiet)),
			fields.Text("profilnam", profilnam),
			fields.Text("entwart", entwart),
			fields.Double("ks", fields.NullFixed(p.ks, 3)),
			fields.Text("simstatus", simstatus),
			fields.Text("kommentar", fields.NullStr(p.kommentar)),
			fields.Text("createdat", fields.NullStr(p.lastmodified)),
		}}, nil
	})
}

// profileName returns the QKan profile of a pipe. A special profile is named
// by SONDERPROFILBEZEICHNUNG and added to profile when new; every other type
// goes through the lookup table.
func profileName(ctx context.Context, tx *session.Tx, step int, r *refs, p hePipe) (fields.Value, error) {
	if !p.profil.Valid || p.profil.Int64 != specialProfile || !p.sonderprofil.Valid || p.sonderprofil.String == "" {
		hint := ""
		if p.sonderprofil.Valid {
			hint = p.sonderprofil.String
		}
		return r.profil.Resolve(ctx, tx, step, p.profil, hint)
	}

	name := fields.Str(p.sonderprofil.String)
	_, err := tx.Exec(ctx, step, fields.Row{Table: "profile", Columns: []fields.Column{
		fields.Text("profilnam", name),
		fields.Integer("he_nr", fields.Int(specialProfile)),
	}}.InsertNew("profilnam"))
	return name, err
}

type heLink struct {
	name, schoben, schunten, steuersch sql.NullString
	kommentar, lastmodified            sql.NullString
	a, b, c, d                         sql.NullFloat64
	typ, status                        sql.NullInt64
}

func importPumpen(ctx context.Context, s *session.Session, r *refs) error {
	var pumps []heLink
	err := readHE(ctx, s, "import_pumpen (read)", pumpQuery, func(rows *sql.Rows) error {
		var p heLink
		if err := rows.Scan(&p.name, &p.schoben, &p.schunten, &p.typ, &p.steuersch, &p.a, &p.b,
			&p.status, &p.kommentar, &p.lastmodified); err != nil {
			return err
		}
		pumps = append(pumps, p)
		return nil
	})
	if err != nil {
		return err
	}

	return insert(ctx, s, "pumpen", "pnam", len(pumps), func(tx *session.Tx, step int, i int) (fields.Row, error) {
		p := pumps[i]
		pumpentyp, err := resolve(ctx, tx, step, r.pumpentyp, p.typ)
		if err != nil {
			return fields.Row{}, err
		}
		simstatus, err := resolve(ctx, tx, step, r.simstatus, p.status)
		if err != nil {
			return fields.Row{}, err
		}

		return fields.Row{Table: "pumpen", Columns: []fields.Column{
			fields.Text("pnam", fields.NullStr(p.name)),
			fields.Text("schoben", fields.NullStr(p.schoben)),
			fields.Text("schunten", fields.NullStr(p.schunten)),
			fields.Text("pumpentyp", pumpentyp),
			fields.Text("steuersch", fields.NullStr(p.steuersch)),
			fields.Double("einschalthoehe", fields.NullFixed(p.a, 3)),
			fields.Double("ausschalthoehe", fields.NullFixed(p.b, 3)),
			fields.Text("simstatus", simstatus),
			fields.Text("kommentar", fields.NullStr(p.kommentar)),
			fields.Text("createdat", fields.NullStr(p.lastmodified)),
		}}, nil
	})
}

func importWehre(ctx context.Context, s *session.Session, r *refs) error {
	var weirs []heLink
	err := readHE(ctx, s, "import_wehre (read)", weirQuery, func(rows *sql.Rows) error {
		var w heLink
		if err := rows.Scan(&w.name, &w.schoben, &w.schunten, &w.a, &w.b, &w.c, &w.d,
			&w.status, &w.kommentar, &w.lastmodified); err != nil {
			return err
		}
		weirs = append(weirs, w)
		return nil
	})
	if err != nil {
		return err
	}

	return insert(ctx, s, "wehre", "wnam", len(weirs), func(tx *session.Tx, step int, i int) (fields.Row, error) {
		w := weirs[i]
		simstatus, err := resolve(ctx, tx, step, r.simstatus, w.status)
		if err != nil {
			return fields.Row{}, err
		}

		return fields.Row{Table: "wehre", Columns: []fields.Column{
			fields.Text("wnam", fields.NullStr(w.name)),
			fields.Text("schoben", fields.NullStr(w.schoben)),
			fields.Text("schunten", fields.NullStr(w.schunten)),
			fields.Double("schwellenhoehe", fields.NullFixed(w.a, 3)),
			fields.Double("kammerhoehe", fields.NullFixed(w.b, 3)),
			fields.Double("laenge", fields.NullFixed(w.c, 3)),
			fields.Double("uebeiwert", fields.NullFixed(w.d, 3)),
			fields.Text("simstatus", simstatus),
			fields.Text("kommentar", fields.NullStr(w.kommentar)),
			fields.Text("createdat", fields.NullStr(w.lastmodified)),
		}}, nil
	})
}
