package export

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
	"github.com/tebben/qkanhe/testdb"
)

func openSession(t *testing.T, configure func(*settings.Config)) *session.Session {
	t.Helper()
	cfg := testdb.Config(t, testdb.NewQKan(t), testdb.NewHE(t, 100, "7.9.1"))
	if configure != nil {
		configure(&cfg)
	}

	s, err := session.Open(context.Background(), cfg, session.KindExport)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func network(t *testing.T, db *sql.DB) {
	t.Helper()
	testdb.Exec(t, db,
		`INSERT INTO schaechte (pk, schnam, xsch, ysch, sohlhoehe, deckelhoehe, durchm, schachttyp, teilgebiet) VALUES
			(1, 'S1', 0, 0, 10, 12, 1000, 'Schacht', 'Nord'),
			(2, 'S2', 10, 0, 9.5, 12, 800, 'Schacht', 'Sued'),
			(3, 'SP1', 20, 0, 9, 12, NULL, 'Speicher', 'Nord'),
			(4, 'A1', 30, 0, 8, 10, NULL, 'Auslass', 'Nord')`,
		`INSERT INTO speicherkennlinien (schnam, wspiegel, oberfl) VALUES ('SP1', 0, 100), ('SP1', 1.5, 150)`,
		`INSERT INTO haltungen (pk, haltnam, schoben, schunten, hoehe, breite, laenge, profilnam, entwart, ks, teilgebiet) VALUES
			(1, 'H1', 'S1', 'S2', 0.3, 0.3, 10, 'Kreisquerschnitt', 'Mischwasser', NULL, 'Nord'),
			(2, 'H2', 'S2', 'SP1', 0.4, 0.4, 10, 'Unbekannt', 'Mischwasser', 1.0, 'Nord')`,
		`INSERT INTO pumpen (pnam, schoben, schunten, pumpentyp, einschalthoehe, ausschalthoehe, simstatus, teilgebiet) VALUES
			('P1', 'SP1', 'A1', 'Offline', 10.5, 9.5, 'vorhanden', 'Nord')`,
		`INSERT INTO wehre (wnam, schoben, schunten, schwellenhoehe, kammerhoehe, laenge, uebeiwert, teilgebiet) VALUES
			('W1', 'S2', 'A1', 10.2, 2, 3, 0.6, 'Nord')`,
		`INSERT INTO bodenklassen (bknam, infiltrationsrateanfang) VALUES ('Sand', 100), (NULL, 1)`,
		`INSERT INTO abflussparameter (apnam, anfangsabflussbeiwert, bodenklasse) VALUES ('Dach', 0.9, NULL), ('Garten', 0.1, 'Sand')`,
	)

	_, err := db.Exec(`INSERT INTO flaechen (pk, flnam, abflussparameter, teilgebiet, geom) VALUES (1, 'F1', 'Dach', 'Nord', ?)`,
		testdb.WKB(t, testdb.Square(0, 0, 10)))
	require.NoError(t, err)
	testdb.Exec(t, db, `INSERT INTO linkfl (pk, flnam, haltnam, abflusstyp) VALUES (1, 'F1', 'H1', 'Fliesszeiten')`)

	_, err = db.Exec(`INSERT INTO einleit (pk, elnam, haltnam, zufluss, ew, teilgebiet, geom) VALUES
		(1, 'E1', 'H1', 0.5, NULL, 'Nord', ?), (2, 'E2', 'H1', NULL, 12, 'Nord', ?)`,
		testdb.WKB(t, orb.Point{1, 2}), testdb.WKB(t, orb.Point{3, 4}))
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO aussengebiete (gebnam, schnam, hoeheob, hoeheun, fliessweg, cn, teilgebiet, geom)
		VALUES ('AG1', 'S1', 20, 12, 150, 70, 'Nord', ?)`, testdb.WKB(t, testdb.Square(0, 0, 100)))
	require.NoError(t, err)
}

func nextID(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.QueryRow(`SELECT NEXTID FROM "ITWH$PROGINFO"`).Scan(&n))
	return n
}

func warned(s *session.Session, substr string) bool {
	for _, w := range s.Report.Warnings() {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestRunExportsNetwork(t *testing.T) {
	s := openSession(t, func(c *settings.Config) { c.Export.FixReferences = true })
	network(t, s.QK)

	require.NoError(t, Run(context.Background(), s))

	assert.Equal(t, 2, testdb.Count(t, s.HE, "SCHACHT", ""))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "SCHACHT", "NAME = 'S1' AND DURCHMESSER = 1000"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "SPEICHERSCHACHT", ""))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "AUSLASS", ""))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "PUMPE", "TYP = 1 AND PLANUNGSSTATUS = 1"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "WEHR", "PROFILTYP = 52"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "BODENKLASSE", ""))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "ABFLUSSPARAMETER", "NAME = 'Dach' AND TYP = 0"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "ABFLUSSPARAMETER", "NAME = 'Garten' AND TYP = 1"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "REGENSCHREIBER", "NAME = 'Regenschreiber1' AND NUMMER = 1"))

	// H2 has no HE profile.
	assert.Equal(t, 1, testdb.Count(t, s.HE, "ROHR", ""))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "ROHR", "NAME = 'H1' AND RAUIGKEITSBEIWERT = 1.5 AND BEFESTIGTEFLAECHE = 0"))
	assert.True(t, warned(s, "H2"), s.Report.Warnings())

	assert.Equal(t, 1, testdb.Count(t, s.HE, "FLAECHE", "HALTUNG = 'H1' AND GROESSE = 0.01 AND BERECHNUNGSPEICHERKONSTANTE = 1"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "EINZELEINLEITER", "HERKUNFT = 1 AND ZUFLUSSDIREKT = 0.5 AND XKOORDINATE = 1"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "EINZELEINLEITER", "HERKUNFT = 3 AND EINWOHNER = 12 AND WASSERVERBRAUCH = 120"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "AUSSENGEBIET", "GESAMTFLAECHE = 1 AND XKOORDINATE = 50"))

	// two curve points and the external catchment
	assert.Equal(t, 3, testdb.Count(t, s.HE, "TABELLENINHALTE", ""))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "TABELLENINHALTE",
		"KEYWERT = 70 AND WERT = 1 AND ID = (SELECT ID FROM AUSSENGEBIET WHERE NAME = 'AG1')"))

	assert.Equal(t, 1, testdb.Count(t, s.HE, "ROHR",
		"SCHACHTOBENREF = (SELECT ID FROM SCHACHT WHERE NAME = 'S1') AND SCHACHTUNTENREF = (SELECT ID FROM SCHACHT WHERE NAME = 'S2')"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "ABFLUSSPARAMETER",
		"BODENKLASSEREF = (SELECT ID FROM BODENKLASSE WHERE NAME = 'Sand')"))

	assert.Equal(t, 1, testdb.Count(t, s.QK, "einzugsgebiete", "tgnam = 'einzugsgebiet1'"))
	assert.Equal(t, 1, s.Report.Counts()["haltungen"])
}

func TestManholeFormatting(t *testing.T) {
	s := openSession(t, nil)
	testdb.Exec(t, s.QK, `INSERT INTO schaechte (pk, schnam, xsch, ysch, sohlhoehe, deckelhoehe, durchm, schachttyp)
		VALUES (1, 'S1', 0, 0, 10.000, 12.345, 1000, 'Schacht')`)
	ctx := context.Background()

	rows, err := collect(ctx, s, "export_schaechte", nodeStatement(s, "Schacht"), manholeRow(s))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	insert := rows[0].InsertIfMissing(101).Render()
	assert.Contains(t, insert, "CAST(12.345 AS DOUBLE PRECISION)")
	assert.Contains(t, insert, "CAST(10.000 AS DOUBLE PRECISION)")
	assert.Contains(t, insert, "CAST(1000.000 AS DOUBLE PRECISION)")

	require.NoError(t, Run(ctx, s))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "SCHACHT",
		"NAME = 'S1' AND DECKELHOEHE = 12.345 AND SOHLHOEHE = 10 AND DURCHMESSER = 1000"))
}

func TestRunAllocatesUniqueIDs(t *testing.T) {
	s := openSession(t, nil)
	network(t, s.QK)
	ctx := context.Background()

	require.NoError(t, Run(ctx, s))

	var ids, distinct int
	var lowest int64
	require.NoError(t, s.HE.QueryRow(`SELECT COUNT(ID), COUNT(DISTINCT ID), MIN(ID) FROM (
		SELECT ID FROM SCHACHT UNION ALL SELECT ID FROM SPEICHERSCHACHT UNION ALL SELECT ID FROM AUSLASS
		UNION ALL SELECT ID FROM ROHR UNION ALL SELECT ID FROM FLAECHE UNION ALL SELECT ID FROM EINZELEINLEITER
		UNION ALL SELECT ID FROM AUSSENGEBIET)`).Scan(&ids, &distinct, &lowest))
	assert.Equal(t, ids, distinct)
	assert.Greater(t, lowest, int64(100))
	assert.Equal(t, s.IDs.Peek(), nextID(t, s.HE))
}

func TestRunIsIdempotent(t *testing.T) {
	s := openSession(t, nil)
	network(t, s.QK)
	ctx := context.Background()

	require.NoError(t, Run(ctx, s))
	first := nextID(t, s.HE)
	rows := testdb.Count(t, s.HE, "SCHACHT", "") + testdb.Count(t, s.HE, "FLAECHE", "") +
		testdb.Count(t, s.HE, "TABELLENINHALTE", "") + testdb.Count(t, s.HE, "REGENSCHREIBER", "")

	require.NoError(t, Run(ctx, s))
	assert.Equal(t, rows, testdb.Count(t, s.HE, "SCHACHT", "")+testdb.Count(t, s.HE, "FLAECHE", "")+
		testdb.Count(t, s.HE, "TABELLENINHALTE", "")+testdb.Count(t, s.HE, "REGENSCHREIBER", ""))

	// IDs are consumed even when the guarded insert writes nothing.
	assert.Greater(t, nextID(t, s.HE), first)
}

func TestRunModifiesExistingRows(t *testing.T) {
	s := openSession(t, func(c *settings.Config) {
		c.Export.Entities["schaechte"] = settings.EntityFlags{Modify: true}
		c.Export.Entities["aussengebiete"] = settings.EntityFlags{Export: true, Modify: true}
	})
	network(t, s.QK)
	ctx := context.Background()
	require.NoError(t, Run(ctx, s))
	assert.Equal(t, 0, testdb.Count(t, s.HE, "SCHACHT", ""), "modify alone never inserts")

	testdb.Exec(t, s.HE, `INSERT INTO SCHACHT (ID, NAME, SOHLHOEHE) VALUES (7, 'S1', 1)`)
	testdb.Exec(t, s.QK, `UPDATE aussengebiete SET cn = 80`)
	require.NoError(t, Run(ctx, s))

	assert.Equal(t, 1, testdb.Count(t, s.HE, "SCHACHT", "ID = 7 AND SOHLHOEHE = 10"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "AUSSENGEBIET", "CNMITTELWERT = 80"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "TABELLENINHALTE", "KEYWERT = 80"))
}

func TestRunRestrictsToSubareas(t *testing.T) {
	s := openSession(t, func(c *settings.Config) { c.Export.Subareas = []string{"Sued"} })
	network(t, s.QK)

	require.NoError(t, Run(context.Background(), s))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "SCHACHT", ""))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "SCHACHT", "NAME = 'S2'"))
	assert.Equal(t, 0, testdb.Count(t, s.HE, "ROHR", ""))
	assert.Equal(t, 0, testdb.Count(t, s.HE, "EINZELEINLEITER", ""))
}

func TestRunCombinesDischargers(t *testing.T) {
	s := openSession(t, func(c *settings.Config) {
		c.Export.Entities["einleit"] = settings.EntityFlags{Export: true, Combine: true}
	})
	network(t, s.QK)
	_, err := s.QK.Exec(`INSERT INTO einleit (pk, elnam, haltnam, zufluss, teilgebiet, geom) VALUES (3, 'E3', 'H1', 1.5, 'Nord', ?)`,
		testdb.WKB(t, orb.Point{3, 4}))
	require.NoError(t, err)

	require.NoError(t, Run(context.Background(), s))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "EINZELEINLEITER", "HERKUNFT = 1"))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "EINZELEINLEITER", "NAME = 'E1' AND ZUFLUSSDIREKT = 2 AND XKOORDINATE = 2"))
}

func TestRunOmitsVersionColumnsOnOldSchema(t *testing.T) {
	cfg := testdb.Config(t, testdb.NewQKan(t), testdb.NewHE(t, 100, "7.8"))
	for name := range cfg.Export.Entities {
		if name != "schaechte" && name != "haltungen" {
			cfg.Export.Entities[name] = settings.EntityFlags{}
		}
	}
	s, err := session.Open(context.Background(), cfg, session.KindExport)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	network(t, s.QK)

	require.NoError(t, Run(context.Background(), s))
	assert.Equal(t, 1, testdb.Count(t, s.HE, "ROHR", "BEFESTIGTEFLAECHE IS NULL AND EINZUGSGEBIET = 0"))
}

func TestRunFailsWithoutCounter(t *testing.T) {
	s := openSession(t, nil)
	testdb.Exec(t, s.HE, `DELETE FROM "ITWH$PROGINFO"`)

	err := Run(context.Background(), s)
	assert.ErrorContains(t, err, "export aborted")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRunSuggestsKnownProfile(t *testing.T) {
	s := openSession(t, nil)
	network(t, s.QK)
	testdb.Exec(t, s.QK, `UPDATE haltungen SET profilnam = 'Kreisquerschnit' WHERE haltnam = 'H2'`)

	require.NoError(t, Run(context.Background(), s))
	assert.True(t, warned(s, `did you mean "Kreisquerschnitt"`), s.Report.Warnings())
}

func TestCheckNames(t *testing.T) {
	s := openSession(t, nil)
	testdb.Exec(t, s.QK, `INSERT INTO flaechen (pk, flnam) VALUES (4, NULL), (5, '')`)
	ctx := context.Background()

	require.NoError(t, checkNames(ctx, s))
	assert.Equal(t, 1, testdb.Count(t, s.QK, "flaechen", "flnam = 'f_4'"))
	assert.Equal(t, 1, testdb.Count(t, s.QK, "flaechen", "flnam = 'f_5'"))
	assert.Len(t, s.Report.Warnings(), 1)

	s.Config.Export.Autocorrect = false
	testdb.Exec(t, s.QK, `INSERT INTO einleit (pk, elnam) VALUES (9, NULL)`)
	assert.Error(t, checkNames(ctx, s))
}

func TestCheckEinzugsgebiete(t *testing.T) {
	ctx := context.Background()

	t.Run("named by dischargers", func(t *testing.T) {
		s := openSession(t, nil)
		testdb.Exec(t, s.QK, `INSERT INTO einleit (elnam, ew, einzugsgebiet) VALUES ('E1', 5, 'West'), ('E2', 5, 'Ost'), ('E3', 5, NULL)`)

		require.NoError(t, checkEinzugsgebiete(ctx, s))
		assert.Equal(t, 2, testdb.Count(t, s.QK, "einzugsgebiete", "wverbrauch = 120"))
		require.Len(t, s.Report.Warnings(), 1)
		assert.Contains(t, s.Report.Warnings()[0], "1 population dischargers")
	})

	t.Run("single catchment", func(t *testing.T) {
		s := openSession(t, nil)
		testdb.Exec(t, s.QK,
			`INSERT INTO einzugsgebiete (tgnam) VALUES ('Nur')`,
			`INSERT INTO einleit (elnam, ew) VALUES ('E1', 5), ('E2', 5)`)

		require.NoError(t, checkEinzugsgebiete(ctx, s))
		assert.Equal(t, 2, testdb.Count(t, s.QK, "einleit", "einzugsgebiet = 'Nur'"))
	})

	t.Run("by location", func(t *testing.T) {
		s := openSession(t, nil)
		_, err := s.QK.Exec(`INSERT INTO einzugsgebiete (pk, tgnam, geom) VALUES (1, 'A', ?), (2, 'B', ?)`,
			testdb.WKB(t, testdb.Square(0, 0, 10)), testdb.WKB(t, testdb.Square(10, 0, 10)))
		require.NoError(t, err)
		_, err = s.QK.Exec(`INSERT INTO einleit (elnam, ew, geom) VALUES ('E1', 5, ?), ('E2', 5, ?), ('E3', 5, ?)`,
			testdb.WKB(t, orb.Point{5, 5}), testdb.WKB(t, orb.Point{15, 5}), testdb.WKB(t, orb.Point{50, 5}))
		require.NoError(t, err)

		require.NoError(t, checkEinzugsgebiete(ctx, s))
		assert.Equal(t, 1, testdb.Count(t, s.QK, "einleit", "elnam = 'E1' AND einzugsgebiet = 'A'"))
		assert.Equal(t, 1, testdb.Count(t, s.QK, "einleit", "elnam = 'E2' AND einzugsgebiet = 'B'"))
		require.Len(t, s.Report.Warnings(), 1)
	})
}
