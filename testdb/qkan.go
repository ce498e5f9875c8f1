package testdb

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/require"
	"github.com/tebben/qkanhe/settings"
)

// qkanSchema is the subset of the QKan schema used by qkanhe, with geometry
// columns as WKB blobs.
var qkanSchema = []string{
	`CREATE TABLE schaechte (
		pk INTEGER PRIMARY KEY, schnam TEXT, xsch REAL, ysch REAL, sohlhoehe REAL, deckelhoehe REAL,
		durchm REAL, druckdicht INTEGER, ueberstauflaeche REAL, entwart TEXT, strasse TEXT,
		teilgebiet TEXT, auslasstyp TEXT, schachttyp TEXT, simstatus TEXT, kommentar TEXT,
		createdat TEXT, geop BLOB, geom BLOB)`,
	`CREATE TABLE speicherkennlinien (pk INTEGER PRIMARY KEY, schnam TEXT, wspiegel REAL, oberfl REAL)`,
	`CREATE TABLE pumpen (
		pk INTEGER PRIMARY KEY, pnam TEXT, schoben TEXT, schunten TEXT, pumpentyp TEXT, steuersch TEXT,
		einschalthoehe REAL, ausschalthoehe REAL, teilgebiet TEXT, simstatus TEXT, kommentar TEXT,
		createdat TEXT, geom BLOB)`,
	`CREATE TABLE wehre (
		pk INTEGER PRIMARY KEY, wnam TEXT, schoben TEXT, schunten TEXT, schwellenhoehe REAL,
		kammerhoehe REAL, laenge REAL, uebeiwert REAL, teilgebiet TEXT, simstatus TEXT,
		kommentar TEXT, createdat TEXT, geom BLOB)`,
	`CREATE TABLE haltungen (
		pk INTEGER PRIMARY KEY, haltnam TEXT, schoben TEXT, schunten TEXT, hoehe REAL, breite REAL,
		laenge REAL, sohleoben REAL, sohleunten REAL, deckeloben REAL, deckelunten REAL,
		teilgebiet TEXT, profilnam TEXT, entwart TEXT, ks REAL, simstatus TEXT, kommentar TEXT,
		createdat TEXT, geom BLOB)`,
	`CREATE TABLE bodenklassen (
		pk INTEGER PRIMARY KEY, bknam TEXT, infiltrationsrateanfang REAL, infiltrationsrateende REAL,
		infiltrationsratestart REAL, rueckgangskonstante REAL, regenerationskonstante REAL,
		saettigungswassergehalt REAL, kommentar TEXT, createdat TEXT)`,
	`CREATE TABLE abflussparameter (
		pk INTEGER PRIMARY KEY, apnam TEXT, anfangsabflussbeiwert REAL, endabflussbeiwert REAL,
		benetzungsverlust REAL, muldenverlust REAL, benetzung_startwert REAL, mulden_startwert REAL,
		bodenklasse TEXT, kommentar TEXT, createdat TEXT)`,
	`CREATE TABLE flaechen (
		pk INTEGER PRIMARY KEY, flnam TEXT, haltnam TEXT, neigkl INTEGER, regenschreiber TEXT,
		teilgebiet TEXT, abflussparameter TEXT, aufteilen TEXT, kommentar TEXT, createdat TEXT,
		geom BLOB)`,
	`CREATE TABLE tezg (
		pk INTEGER PRIMARY KEY, flnam TEXT, haltnam TEXT, teilgebiet TEXT, kommentar TEXT,
		createdat TEXT, geom BLOB)`,
	`CREATE TABLE linkfl (
		pk INTEGER PRIMARY KEY, flnam TEXT, haltnam TEXT, tezgnam TEXT, abflusstyp TEXT,
		speicherzahl INTEGER, speicherkonst REAL, fliesszeitflaeche REAL, fliesszeitkanal REAL,
		teilgebiet TEXT, glink BLOB)`,
	`CREATE TABLE einleit (
		pk INTEGER PRIMARY KEY, elnam TEXT, haltnam TEXT, teilgebiet TEXT, zufluss REAL, ew REAL,
		einzugsgebiet TEXT, kommentar TEXT, createdat TEXT, geom BLOB)`,
	`CREATE TABLE linksw (pk INTEGER PRIMARY KEY, elnam TEXT, haltnam TEXT, teilgebiet TEXT, glink BLOB)`,
	`CREATE TABLE einwohner (
		pk INTEGER PRIMARY KEY, elnam TEXT, haltnam TEXT, ew REAL, teilgebiet TEXT, geom BLOB)`,
	`CREATE TABLE linkew (pk INTEGER PRIMARY KEY, elnam TEXT, haltnam TEXT, teilgebiet TEXT, glink BLOB)`,
	`CREATE TABLE einzugsgebiete (
		pk INTEGER PRIMARY KEY, tgnam TEXT, ewdichte REAL, wverbrauch REAL, stdmittel REAL,
		fremdwas REAL, kommentar TEXT, createdat TEXT, geom BLOB)`,
	`CREATE TABLE aussengebiete (
		pk INTEGER PRIMARY KEY, gebnam TEXT, schnam TEXT, hoeheob REAL, hoeheun REAL, fliessweg REAL,
		basisabfluss REAL, cn REAL, regenschreiber TEXT, teilgebiet TEXT, kommentar TEXT,
		createdat TEXT, geom BLOB)`,
	`CREATE TABLE linkageb (pk INTEGER PRIMARY KEY, gebnam TEXT, schnam TEXT, glink BLOB)`,
	`CREATE TABLE abflusstypen (pk INTEGER PRIMARY KEY, abflusstyp TEXT, he_nr INTEGER)`,
	`CREATE TABLE entwaesserungsarten (pk INTEGER PRIMARY KEY, bezeichnung TEXT, he_nr INTEGER)`,
	`CREATE TABLE pumpentypen (pk INTEGER PRIMARY KEY, bezeichnung TEXT, he_nr INTEGER)`,
	`CREATE TABLE profile (pk INTEGER PRIMARY KEY, profilnam TEXT, he_nr INTEGER)`,
	`CREATE TABLE auslasstypen (pk INTEGER PRIMARY KEY, bezeichnung TEXT, he_nr INTEGER)`,
	`CREATE TABLE simulationsstatus (pk INTEGER PRIMARY KEY, bezeichnung TEXT, he_nr INTEGER)`,
	`CREATE TABLE profildaten (pk INTEGER PRIMARY KEY, profilnam TEXT, wspiegel REAL, wbreite REAL)`,
}

// qkanReferences is the reference data shipped with every new QKan database.
var qkanReferences = []string{
	`INSERT INTO entwaesserungsarten (bezeichnung, he_nr) VALUES ('Mischwasser', 0), ('Schmutzwasser', 1), ('Regenwasser', 2)`,
	`INSERT INTO pumpentypen (bezeichnung, he_nr) VALUES ('Offline', 1), ('Online Schaltstufen', 2)`,
	`INSERT INTO profile (profilnam, he_nr) VALUES ('Kreisquerschnitt', 1), ('Rechteckquerschnitt', 2)`,
	`INSERT INTO auslasstypen (bezeichnung, he_nr) VALUES ('frei', 0), ('normal', 1)`,
	`INSERT INTO simulationsstatus (bezeichnung, he_nr) VALUES ('vorhanden', 1), ('geplant', 2), ('fiktiv', 3)`,
	`INSERT INTO abflusstypen (abflusstyp, he_nr) VALUES ('Speicherkaskade', 0), ('Fliesszeiten', 1), ('Schwerpunktlaufzeit', 2)`,
}

// NewQKan creates a QKan stand-in in the WKB dialect with the reference
// tables filled and returns its path.
func NewQKan(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "netz.sqlite")
	db := Open(t, path)
	defer db.Close()

	Exec(t, db, qkanSchema...)
	Exec(t, db, qkanReferences...)
	return path
}

// WKB encodes g for a geometry column.
func WKB(t *testing.T, g orb.Geometry) []byte {
	t.Helper()
	b, err := wkb.Marshal(g)
	require.NoError(t, err)
	return b
}

// Square is the axis-aligned polygon with lower left corner (x, y) and side
// length size.
func Square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

// Config returns the default configuration pointed at the given QKan and HE
// files.
func Config(t *testing.T, qkanPath, hePath string) settings.Config {
	t.Helper()

	require.NoError(t, settings.InitializeConfig(""))
	c := settings.GetConfig()
	c.QKan.Dialect = "wkb"
	c.QKan.Path = qkanPath
	c.HE.Driver = "sqlite3"
	c.HE.Path = hePath
	return c
}
