package importer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebben/qkanhe/archive"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
	"github.com/tebben/qkanhe/testdb"
)

// heNetwork fills an HE stand-in with a small network: two manholes, a
// storage and an outfall, three pipes (one with a special profile, one with
// an unknown profile code), a pump, a weir and the side tables.
func heNetwork(t *testing.T, path string) {
	t.Helper()
	db := testdb.Open(t, path)
	defer db.Close()

	testdb.Exec(t, db,
		`INSERT INTO SCHACHT (ID, NAME, XKOORDINATE, YKOORDINATE, SOHLHOEHE, DECKELHOEHE, DURCHMESSER,
			DRUCKDICHTERDECKEL, KANALART, PLANUNGSSTATUS, KOMMENTAR) VALUES
			(1, 'S1', 0, 0, 10, 12, 1000, 0, 0, 1, 'Anfang'),
			(2, 'S2', 10, 0, 9.5, 12, NULL, 1, 7, 1, NULL)`,
		`INSERT INTO SPEICHERSCHACHT (ID, NAME, XKOORDINATE, YKOORDINATE, SOHLHOEHE, GELAENDEHOEHE,
			UEBERSTAUFLAECHE, PLANUNGSSTATUS) VALUES (3, 'SP1', 20, 0, 9, 12, 50, 2)`,
		`INSERT INTO AUSLASS (ID, NAME, XKOORDINATE, YKOORDINATE, SOHLHOEHE, GELAENDEHOEHE, TYP, PLANUNGSSTATUS)
			VALUES (4, 'A1', 30, 0, 8, 10, 1, 1)`,
		`INSERT INTO ROHR (ID, NAME, SCHACHTOBEN, SCHACHTUNTEN, GEOMETRIE1, GEOMETRIE2, LAENGE, SOHLHOEHEOBEN,
			SOHLHOEHEUNTEN, TEILEINZUGSGEBIET, PROFILTYP, SONDERPROFILBEZEICHNUNG, KANALART, RAUIGKEITSBEIWERT,
			PLANUNGSSTATUS) VALUES
			(5, 'H1', 'S1', 'S2', 0.3, 0.3, 10, 10, 9.5, 'TG1', 1, NULL, 0, 1.5, 1),
			(6, 'H2', 'S2', 'SP1', 0.6, 0.4, 10, 9.5, 9, 'TG1', 68, 'Ei 600', 0, 1.5, 1),
			(7, 'H3', 'S2', 'A1', 0.4, 0.4, 20, 9.5, 8, 'TG1', 99, NULL, 0, 1.5, 1)`,
		`INSERT INTO PUMPE (ID, NAME, SCHACHTOBEN, SCHACHTUNTEN, TYP, STEUERSCHACHT, EINSCHALTHOEHE,
			AUSSCHALTHOEHE, PLANUNGSSTATUS) VALUES (8, 'P1', 'SP1', 'A1', 1, 'SP1', 10.5, 9.5, 1)`,
		`INSERT INTO WEHR (ID, NAME, SCHACHTOBEN, SCHACHTUNTEN, SCHWELLENHOEHE, GEOMETRIE1, GEOMETRIE2,
			UEBERFALLBEIWERT, PLANUNGSSTATUS) VALUES (9, 'W1', 'S2', 'A1', 10.2, 2, 3, 0.6, 3)`,
		`INSERT INTO TEILEINZUGSGEBIET (ID, NAME, EINWOHNERDICHTE, WASSERVERBRAUCH, STUNDENMITTEL, FREMDWASSERANTEIL)
			VALUES (10, 'TG1', 60, 120, 14, 100)`,
		`INSERT INTO SONDERPROFIL (ID, NAME) VALUES (11, 'Ei 600')`,
		`INSERT INTO TABELLENINHALTE (ID, KEYWERT, WERT, REIHENFOLGE) VALUES
			(3, 0, 100, 1), (3, 1.5, 150, 2),
			(11, 0, 0, 1), (11, 0.6, 0.4, 2)`,
		`INSERT INTO ABFLUSSPARAMETER (ID, NAME, ABFLUSSBEIWERTANFANG, ABFLUSSBEIWERTENDE, TYP, BODENKLASSE) VALUES
			(12, 'Dach', 0.9, 0.9, 0, 'Sand'),
			(13, 'Garten', 0.1, 0.3, 1, 'Sand')`,
		`INSERT INTO LAU_MAX_S (KNOTEN, UEBERSTAUVOLUMEN) VALUES ('S2', 12.5), ('S1', 0)`,
		`INSERT INTO LANGZEITKNOTEN (KNOTEN, HAEUFIGKEITUEBERSTAU, ANZAHLUEBERSTAU) VALUES ('S2', 0.5, 2)`,
	)
}

func openSession(t *testing.T, kind string, qkan, he string, configure func(*settings.Config)) *session.Session {
	t.Helper()
	cfg := testdb.Config(t, qkan, he)
	if configure != nil {
		configure(&cfg)
	}

	s, err := session.Open(context.Background(), cfg, kind)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newImport(t *testing.T, configure func(*settings.Config)) *session.Session {
	t.Helper()
	he := testdb.NewHE(t, 100, "7.9.1")
	heNetwork(t, he)
	return openSession(t, session.KindImport, testdb.NewQKan(t), he, configure)
}

func text(t *testing.T, db *sql.DB, query string, args ...interface{}) sql.NullString {
	t.Helper()
	var v sql.NullString
	require.NoError(t, db.QueryRow(query, args...).Scan(&v), query)
	return v
}

func number(t *testing.T, db *sql.DB, query string, args ...interface{}) sql.NullFloat64 {
	t.Helper()
	var v sql.NullFloat64
	require.NoError(t, db.QueryRow(query, args...).Scan(&v), query)
	return v
}

func TestRunImportsNodes(t *testing.T) {
	s := newImport(t, nil)
	require.NoError(t, Run(context.Background(), s))

	assert.Equal(t, 4, testdb.Count(t, s.QK, "schaechte", ""))
	assert.Equal(t, 2, testdb.Count(t, s.QK, "schaechte", "schachttyp = 'Schacht'"))

	assert.Equal(t, 1000.0, number(t, s.QK, `SELECT durchm FROM schaechte WHERE schnam = 'S1'`).Float64)
	assert.False(t, number(t, s.QK, `SELECT durchm FROM schaechte WHERE schnam = 'S2'`).Valid)
	assert.Equal(t, "Mischwasser", text(t, s.QK, `SELECT entwart FROM schaechte WHERE schnam = 'S1'`).String)
	assert.Equal(t, "vorhanden", text(t, s.QK, `SELECT simstatus FROM schaechte WHERE schnam = 'S1'`).String)
	assert.Equal(t, "Anfang", text(t, s.QK, `SELECT kommentar FROM schaechte WHERE schnam = 'S1'`).String)

	// unknown drainage code grows the lookup table
	assert.Equal(t, "(7)", text(t, s.QK, `SELECT entwart FROM schaechte WHERE schnam = 'S2'`).String)
	assert.Equal(t, 1, testdb.Count(t, s.QK, "entwaesserungsarten", "he_nr = 7 AND bezeichnung = '(7)'"))

	assert.Equal(t, "Speicher", text(t, s.QK, `SELECT schachttyp FROM schaechte WHERE schnam = 'SP1'`).String)
	assert.Equal(t, 50.0, number(t, s.QK, `SELECT ueberstauflaeche FROM schaechte WHERE schnam = 'SP1'`).Float64)
	assert.Equal(t, "geplant", text(t, s.QK, `SELECT simstatus FROM schaechte WHERE schnam = 'SP1'`).String)

	assert.Equal(t, "Auslass", text(t, s.QK, `SELECT schachttyp FROM schaechte WHERE schnam = 'A1'`).String)
	assert.Equal(t, "normal", text(t, s.QK, `SELECT auslasstyp FROM schaechte WHERE schnam = 'A1'`).String)

	assert.Equal(t, 4, s.Report.Counts()["schaechte"]+s.Report.Counts()["speicher"]+s.Report.Counts()["auslaesse"])
}

func TestRunImportsLinks(t *testing.T) {
	s := newImport(t, nil)
	require.NoError(t, Run(context.Background(), s))

	assert.Equal(t, 3, testdb.Count(t, s.QK, "haltungen", ""))
	assert.Equal(t, "Kreisquerschnitt", text(t, s.QK, `SELECT profilnam FROM haltungen WHERE haltnam = 'H1'`).String)
	assert.Equal(t, 12.0, number(t, s.QK, `SELECT deckeloben FROM haltungen WHERE haltnam = 'H1'`).Float64)
	assert.Equal(t, 10.0, number(t, s.QK, `SELECT deckelunten FROM haltungen WHERE haltnam = 'H3'`).Float64)
	assert.Equal(t, "TG1", text(t, s.QK, `SELECT teilgebiet FROM haltungen WHERE haltnam = 'H1'`).String)

	assert.Equal(t, "Ei 600", text(t, s.QK, `SELECT profilnam FROM haltungen WHERE haltnam = 'H2'`).String)
	assert.Equal(t, 1, testdb.Count(t, s.QK, "profile", "profilnam = 'Ei 600' AND he_nr = 68"))
	assert.Equal(t, "(99)", text(t, s.QK, `SELECT profilnam FROM haltungen WHERE haltnam = 'H3'`).String)

	assert.Equal(t, "Offline", text(t, s.QK, `SELECT pumpentyp FROM pumpen WHERE pnam = 'P1'`).String)
	assert.Equal(t, "SP1", text(t, s.QK, `SELECT steuersch FROM pumpen WHERE pnam = 'P1'`).String)
	assert.Equal(t, 0.6, number(t, s.QK, `SELECT uebeiwert FROM wehre WHERE wnam = 'W1'`).Float64)
	assert.Equal(t, "fiktiv", text(t, s.QK, `SELECT simstatus FROM wehre WHERE wnam = 'W1'`).String)
}

func TestRunImportsTables(t *testing.T) {
	s := newImport(t, nil)
	require.NoError(t, Run(context.Background(), s))

	assert.Equal(t, 60.0, number(t, s.QK, `SELECT ewdichte FROM einzugsgebiete WHERE tgnam = 'TG1'`).Float64)

	// storage curves are stored as absolute levels
	assert.Equal(t, 2, testdb.Count(t, s.QK, "speicherkennlinien", "schnam = 'SP1'"))
	assert.Equal(t, 10.5, number(t, s.QK, `SELECT max(wspiegel) FROM speicherkennlinien`).Float64)

	assert.Equal(t, 2, testdb.Count(t, s.QK, "profildaten", "profilnam = 'Ei 600'"))
	assert.Equal(t, 0.4, number(t, s.QK, `SELECT wbreite FROM profildaten WHERE wspiegel = 0.6`).Float64)

	assert.False(t, text(t, s.QK, `SELECT bodenklasse FROM abflussparameter WHERE apnam = 'Dach'`).Valid)
	assert.Equal(t, "Sand", text(t, s.QK, `SELECT bodenklasse FROM abflussparameter WHERE apnam = 'Garten'`).String)
}

func TestRunBuildsGeometry(t *testing.T) {
	s := newImport(t, nil)
	require.NoError(t, Run(context.Background(), s))

	assert.Equal(t, 0, testdb.Count(t, s.QK, "schaechte", "geop IS NULL"))
	assert.Equal(t, 0, testdb.Count(t, s.QK, "haltungen", "geom IS NULL"))
	assert.Equal(t, 0, testdb.Count(t, s.QK, "pumpen", "geom IS NULL"))
	assert.Equal(t, 0, testdb.Count(t, s.QK, "wehre", "geom IS NULL"))

	var b []byte
	require.NoError(t, s.QK.QueryRow(`SELECT geom FROM haltungen WHERE haltnam = 'H1'`).Scan(&b))
	g, err := wkb.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{0, 0}, {10, 0}}, g)
}

func TestRunKeepsExistingRows(t *testing.T) {
	he := testdb.NewHE(t, 100, "7.9.1")
	heNetwork(t, he)
	qkan := testdb.NewQKan(t)

	db := testdb.Open(t, qkan)
	_, err := db.Exec(`INSERT INTO schaechte (schnam, sohlhoehe, xsch, ysch, geop) VALUES ('S1', 99, 5, 5, ?)`,
		testdb.WKB(t, orb.Point{5, 5}))
	require.NoError(t, err)
	testdb.Exec(t, db, `INSERT INTO abflussparameter (apnam, anfangsabflussbeiwert) VALUES ('Dach', 0.5)`)
	db.Close()

	s := openSession(t, session.KindImport, qkan, he, nil)
	require.NoError(t, Run(context.Background(), s))

	assert.Equal(t, 1, testdb.Count(t, s.QK, "schaechte", "schnam = 'S1'"))
	assert.Equal(t, 99.0, number(t, s.QK, `SELECT sohlhoehe FROM schaechte WHERE schnam = 'S1'`).Float64)
	assert.Equal(t, 1, s.Report.Counts()["schaechte"])

	// existing geometry is not recomputed from the HE coordinates
	var b []byte
	require.NoError(t, s.QK.QueryRow(`SELECT geom FROM haltungen WHERE haltnam = 'H1'`).Scan(&b))
	g, err := wkb.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{5, 5}, {10, 0}}, g)

	// runoff parameters are replaced
	assert.Equal(t, 1, testdb.Count(t, s.QK, "abflussparameter", "apnam = 'Dach'"))
	assert.Equal(t, 0.9, number(t, s.QK, `SELECT anfangsabflussbeiwert FROM abflussparameter WHERE apnam = 'Dach'`).Float64)
}

func TestRunIsRepeatable(t *testing.T) {
	he := testdb.NewHE(t, 100, "7.9.1")
	heNetwork(t, he)
	qkan := testdb.NewQKan(t)

	for i := 0; i < 2; i++ {
		s := openSession(t, session.KindImport, qkan, he, nil)
		require.NoError(t, Run(context.Background(), s))
		s.Close()
	}

	db := testdb.Open(t, qkan)
	defer db.Close()
	assert.Equal(t, 4, testdb.Count(t, db, "schaechte", ""))
	assert.Equal(t, 3, testdb.Count(t, db, "haltungen", ""))
	assert.Equal(t, 2, testdb.Count(t, db, "speicherkennlinien", ""))
	assert.Equal(t, 2, testdb.Count(t, db, "profildaten", ""))
	assert.Equal(t, 2, testdb.Count(t, db, "abflussparameter", ""))
	assert.Equal(t, 1, testdb.Count(t, db, "profile", "profilnam = 'Ei 600'"))
	assert.Equal(t, 1, testdb.Count(t, db, "entwaesserungsarten", "he_nr = 7"))
}

func TestRunWritesProject(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "vorlage.qgs")
	dest := filepath.Join(dir, "netz.qgs")
	require.NoError(t, os.WriteFile(template, []byte(`<qgis>
  <spatialrefsys><srid>4326</srid><authid>EPSG:4326</authid></spatialrefsys>
  <mapcanvas><extent><xmin>0</xmin><ymin>0</ymin><xmax>1</xmax><ymax>1</ymax></extent></mapcanvas>
  <datasource>dbname='alt.sqlite' table="schaechte"</datasource>
</qgis>`), 0o644))

	s := newImport(t, func(c *settings.Config) {
		c.QKan.EPSG = 31467
		c.Import.ProjectTemplate = template
		c.Import.ProjectFile = dest
	})
	require.NoError(t, Run(context.Background(), s))

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "<authid>EPSG:31467</authid>")
	assert.Contains(t, out, "dbname='"+s.Config.QKan.Path+"'")
	// nodes span 0..30 x 0..0, padded by the 10 m minimum
	assert.Contains(t, out, "<xmin>-10.000</xmin>")
	assert.Contains(t, out, "<xmax>40.000</xmax>")
}

func TestRunFailsOnMissingTable(t *testing.T) {
	he := testdb.NewHE(t, 100, "7.9.1")
	db := testdb.Open(t, he)
	testdb.Exec(t, db, `DROP TABLE PUMPE`)
	db.Close()

	s := openSession(t, session.KindImport, testdb.NewQKan(t), he, nil)
	err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import_pumpen")
}

func TestResults(t *testing.T) {
	he := testdb.NewHE(t, 100, "7.9.1")
	heNetwork(t, he)
	qkan := testdb.NewQKan(t)

	db := testdb.Open(t, qkan)
	_, err := db.Exec(`INSERT INTO schaechte (schnam, geop) VALUES ('S1', ?), ('S2', ?)`,
		testdb.WKB(t, orb.Point{0, 0}), testdb.WKB(t, orb.Point{10, 0}))
	require.NoError(t, err)
	db.Close()

	archiveDir := filepath.Join(t.TempDir(), "archiv")
	s := openSession(t, session.KindResults, qkan, he, func(c *settings.Config) {
		c.Results.ArchiveDir = archiveDir
	})

	require.NoError(t, Results(context.Background(), s))
	assert.Equal(t, 2, testdb.Count(t, s.QK, "ResultsSch", ""))
	assert.Equal(t, 2, testdb.Count(t, s.QK, "ResultsSch", "kommentar = 'he.idbf'"))
	assert.Equal(t, 0, testdb.Count(t, s.QK, "ResultsSch", "geom IS NULL"))
	assert.Equal(t, 0.5, number(t, s.QK, `SELECT uebstauhaeuf FROM ResultsSch WHERE schnam = 'S2'`).Float64)
	assert.Equal(t, 12.5, number(t, s.QK, `SELECT maxuebstauvol FROM ResultsSch WHERE schnam = 'S2'`).Float64)
	assert.False(t, number(t, s.QK, `SELECT uebstauanz FROM ResultsSch WHERE schnam = 'S1'`).Valid)

	// a second pass replaces the rows
	require.NoError(t, Results(context.Background(), s))
	assert.Equal(t, 2, testdb.Count(t, s.QK, "ResultsSch", ""))

	files, err := filepath.Glob(filepath.Join(archiveDir, "he_*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	rows, err := archive.Read(files[0])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "S1", rows[0].Node)
	assert.Equal(t, s.RunID, rows[0].RunID)
	assert.Nil(t, rows[0].Frequency)
}
