// Package testdb creates throwaway SQLite stand-ins for the QKan and HE
// databases used by package tests.
package testdb

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// heSchema mirrors the HE tables read and written by qkanhe. Column types
// follow SQLite affinities; names match the Firebird schema.
var heSchema = []string{
	`CREATE TABLE "ITWH$PROGINFO" (NEXTID INTEGER, VERSION VARCHAR(40))`,
	`CREATE TABLE "RDB$DATABASE" ("RDB$RELATION_ID" INTEGER)`,
	`INSERT INTO "RDB$DATABASE" VALUES (128)`,
	`CREATE TABLE SCHACHT (
		ID INTEGER, NAME VARCHAR(255), DECKELHOEHE DOUBLE PRECISION, KANALART INTEGER,
		DRUCKDICHTERDECKEL INTEGER, SOHLHOEHE DOUBLE PRECISION, XKOORDINATE DOUBLE PRECISION,
		YKOORDINATE DOUBLE PRECISION, KONSTANTERZUFLUSS DOUBLE PRECISION, GELAENDEHOEHE DOUBLE PRECISION,
		ART INTEGER, ANZAHLKANTEN INTEGER, SCHEITELHOEHE DOUBLE PRECISION, PLANUNGSSTATUS INTEGER,
		LASTMODIFIED VARCHAR(40), DURCHMESSER DOUBLE PRECISION, KOMMENTAR VARCHAR(255))`,
	`CREATE TABLE SPEICHERSCHACHT (
		ID INTEGER, NAME VARCHAR(255), TYP INTEGER, SOHLHOEHE DOUBLE PRECISION,
		XKOORDINATE DOUBLE PRECISION, YKOORDINATE DOUBLE PRECISION, GELAENDEHOEHE DOUBLE PRECISION,
		ART INTEGER, ANZAHLKANTEN INTEGER, SCHEITELHOEHE DOUBLE PRECISION,
		HOEHEVOLLFUELLUNG DOUBLE PRECISION, KONSTANTERZUFLUSS DOUBLE PRECISION,
		ABSETZWIRKUNG DOUBLE PRECISION, PLANUNGSSTATUS INTEGER, UEBERSTAUFLAECHE DOUBLE PRECISION,
		LASTMODIFIED VARCHAR(40), KOMMENTAR VARCHAR(255))`,
	`CREATE TABLE TABELLENINHALTE (ID INTEGER, KEYWERT DOUBLE PRECISION, WERT DOUBLE PRECISION, REIHENFOLGE INTEGER)`,
	`CREATE TABLE AUSLASS (
		ID INTEGER, NAME VARCHAR(255), TYP INTEGER, RUECKSCHLAGKLAPPE INTEGER,
		SOHLHOEHE DOUBLE PRECISION, XKOORDINATE DOUBLE PRECISION, YKOORDINATE DOUBLE PRECISION,
		GELAENDEHOEHE DOUBLE PRECISION, ART INTEGER, ANZAHLKANTEN INTEGER,
		SCHEITELHOEHE DOUBLE PRECISION, KONSTANTERZUFLUSS DOUBLE PRECISION, PLANUNGSSTATUS INTEGER,
		LASTMODIFIED VARCHAR(40), KOMMENTAR VARCHAR(255))`,
	`CREATE TABLE PUMPE (
		ID INTEGER, NAME VARCHAR(255), TYP INTEGER, SCHACHTOBEN VARCHAR(255), SCHACHTUNTEN VARCHAR(255),
		STEUERSCHACHT VARCHAR(255), EINSCHALTHOEHE DOUBLE PRECISION, AUSSCHALTHOEHE DOUBLE PRECISION,
		PLANUNGSSTATUS INTEGER, LASTMODIFIED VARCHAR(40), KOMMENTAR VARCHAR(255))`,
	`CREATE TABLE WEHR (
		ID INTEGER, NAME VARCHAR(255), TYP INTEGER, SCHACHTOBEN VARCHAR(255), SCHACHTUNTEN VARCHAR(255),
		SOHLHOEHEOBEN DOUBLE PRECISION, SOHLHOEHEUNTEN DOUBLE PRECISION, SCHWELLENHOEHE DOUBLE PRECISION,
		GEOMETRIE1 DOUBLE PRECISION, GEOMETRIE2 DOUBLE PRECISION, UEBERFALLBEIWERT DOUBLE PRECISION,
		RUECKSCHLAGKLAPPE INTEGER, VERFAHRBAR INTEGER, PROFILTYP INTEGER, EREIGNISBILANZIERUNG INTEGER,
		EREIGNISGRENZWERTENDE DOUBLE PRECISION, EREIGNISGRENZWERTANFANG DOUBLE PRECISION,
		EREIGNISTRENNDAUER DOUBLE PRECISION, EREIGNISINDIVIDUELL INTEGER, PLANUNGSSTATUS INTEGER,
		LASTMODIFIED VARCHAR(40), KOMMENTAR VARCHAR(255))`,
	`CREATE TABLE ROHR (
		ID INTEGER, NAME VARCHAR(255), SCHACHTOBEN VARCHAR(255), SCHACHTUNTEN VARCHAR(255),
		SCHACHTOBENREF INTEGER, SCHACHTUNTENREF INTEGER, LAENGE DOUBLE PRECISION,
		SOHLHOEHEOBEN DOUBLE PRECISION, SOHLHOEHEUNTEN DOUBLE PRECISION, PROFILTYP INTEGER,
		SONDERPROFILBEZEICHNUNG VARCHAR(255), GEOMETRIE1 DOUBLE PRECISION, GEOMETRIE2 DOUBLE PRECISION,
		KANALART INTEGER, RAUIGKEITSBEIWERT DOUBLE PRECISION, ANZAHL INTEGER,
		TEILEINZUGSGEBIET VARCHAR(255), TEILEINZUGSGEBIETREF INTEGER, RUECKSCHLAGKLAPPE INTEGER,
		KONSTANTERZUFLUSS DOUBLE PRECISION, RAUIGKEITSANSATZ INTEGER, GEFAELLE DOUBLE PRECISION,
		GESAMTFLAECHE DOUBLE PRECISION, ABFLUSSART INTEGER, INDIVIDUALKONZEPT INTEGER,
		HYDRAULISCHERRADIUS DOUBLE PRECISION, RAUHIGKEITANZEIGE DOUBLE PRECISION, PLANUNGSSTATUS INTEGER,
		LASTMODIFIED VARCHAR(40), MATERIALART INTEGER, EREIGNISBILANZIERUNG INTEGER,
		EREIGNISGRENZWERTENDE DOUBLE PRECISION, EREIGNISGRENZWERTANFANG DOUBLE PRECISION,
		EREIGNISTRENNDAUER DOUBLE PRECISION, EREIGNISINDIVIDUELL INTEGER, KOMMENTAR VARCHAR(255),
		EINZUGSGEBIET INTEGER, KONSTANTERZUFLUSSTEZG DOUBLE PRECISION,
		BEFESTIGTEFLAECHE DOUBLE PRECISION, UNBEFESTIGTEFLAECHE DOUBLE PRECISION)`,
	`CREATE TABLE BODENKLASSE (
		ID INTEGER, NAME VARCHAR(255), INFILTRATIONSRATEANFANG DOUBLE PRECISION,
		INFILTRATIONSRATEENDE DOUBLE PRECISION, INFILTRATIONSRATESTART DOUBLE PRECISION,
		RUECKGANGSKONSTANTE DOUBLE PRECISION, REGENERATIONSKONSTANTE DOUBLE PRECISION,
		SAETTIGUNGSWASSERGEHALT DOUBLE PRECISION, LASTMODIFIED VARCHAR(40), KOMMENTAR VARCHAR(255))`,
	`CREATE TABLE ABFLUSSPARAMETER (
		ID INTEGER, NAME VARCHAR(255), ABFLUSSBEIWERTANFANG DOUBLE PRECISION,
		ABFLUSSBEIWERTENDE DOUBLE PRECISION, BENETZUNGSVERLUST DOUBLE PRECISION,
		MULDENVERLUST DOUBLE PRECISION, BENETZUNGSPEICHERSTART DOUBLE PRECISION,
		MULDENAUFFUELLGRADSTART DOUBLE PRECISION, SPEICHERKONSTANTEKONSTANT DOUBLE PRECISION,
		SPEICHERKONSTANTEMIN DOUBLE PRECISION, SPEICHERKONSTANTEMAX DOUBLE PRECISION,
		SPEICHERKONSTANTEKONSTANT2 DOUBLE PRECISION, SPEICHERKONSTANTEMIN2 DOUBLE PRECISION,
		SPEICHERKONSTANTEMAX2 DOUBLE PRECISION, BODENKLASSE VARCHAR(255), BODENKLASSEREF INTEGER,
		CHARAKTERISTISCHEREGENSPENDE DOUBLE PRECISION, CHARAKTERISTISCHEREGENSPENDE2 DOUBLE PRECISION,
		TYP INTEGER, JAHRESGANGVERLUSTE INTEGER, LASTMODIFIED VARCHAR(40), KOMMENTAR VARCHAR(255))`,
	`CREATE TABLE REGENSCHREIBER (
		ID INTEGER, NUMMER INTEGER, STATION VARCHAR(40), XKOORDINATE DOUBLE PRECISION,
		YKOORDINATE DOUBLE PRECISION, ZKOORDINATE DOUBLE PRECISION, NAME VARCHAR(255),
		FLAECHEGESAMT DOUBLE PRECISION, FLAECHEDURCHLAESSIG DOUBLE PRECISION,
		FLAECHEUNDURCHLAESSIG DOUBLE PRECISION, ANZAHLHALTUNGEN INTEGER, INTERNENUMMER INTEGER,
		LASTMODIFIED VARCHAR(40), KOMMENTAR VARCHAR(255))`,
	`CREATE TABLE FLAECHE (
		ID INTEGER, NAME VARCHAR(255), GROESSE DOUBLE PRECISION, REGENSCHREIBER VARCHAR(255),
		HALTUNG VARCHAR(255), BERECHNUNGSPEICHERKONSTANTE INTEGER, TYP INTEGER, ANZAHLSPEICHER INTEGER,
		SPEICHERKONSTANTE DOUBLE PRECISION, SCHWERPUNKTLAUFZEIT DOUBLE PRECISION,
		FLIESSZEITOBERFLAECHE DOUBLE PRECISION, LAENGSTEFLIESSZEITKANAL DOUBLE PRECISION,
		PARAMETERSATZ VARCHAR(255), NEIGUNGSKLASSE INTEGER, LASTMODIFIED VARCHAR(40),
		KOMMENTAR VARCHAR(255), ZUORDNUNABHEZG INTEGER)`,
	`CREATE TABLE EINZELEINLEITER (
		ID INTEGER, NAME VARCHAR(255), XKOORDINATE DOUBLE PRECISION, YKOORDINATE DOUBLE PRECISION,
		ZUORDNUNGGESPERRT INTEGER, ZUORDNUNABHEZG INTEGER, ROHR VARCHAR(255), ABWASSERART INTEGER,
		EINWOHNER DOUBLE PRECISION, WASSERVERBRAUCH DOUBLE PRECISION, HERKUNFT INTEGER,
		STUNDENMITTEL DOUBLE PRECISION, FREMDWASSERZUSCHLAG DOUBLE PRECISION, FAKTOR DOUBLE PRECISION,
		GESAMTFLAECHE DOUBLE PRECISION, ZUFLUSSMODELL INTEGER, ZUFLUSSDIREKT DOUBLE PRECISION,
		ZUFLUSS DOUBLE PRECISION, PLANUNGSSTATUS INTEGER, ABRECHNUNGSZEITRAUM INTEGER,
		ABZUG DOUBLE PRECISION, LASTMODIFIED VARCHAR(40), ZUFLUSSOBERERSCHACHT DOUBLE PRECISION)`,
	`CREATE TABLE AUSSENGEBIET (
		ID INTEGER, NAME VARCHAR(255), SCHACHT VARCHAR(255), HOEHEOBEN DOUBLE PRECISION,
		HOEHEUNTEN DOUBLE PRECISION, XKOORDINATE DOUBLE PRECISION, YKOORDINATE DOUBLE PRECISION,
		GESAMTFLAECHE DOUBLE PRECISION, CNMITTELWERT DOUBLE PRECISION, BASISZUFLUSS DOUBLE PRECISION,
		FLIESSLAENGE DOUBLE PRECISION, VERFAHREN INTEGER, REGENSCHREIBER VARCHAR(255),
		LASTMODIFIED VARCHAR(40), KOMMENTAR VARCHAR(255))`,
	`CREATE TABLE TEILEINZUGSGEBIET (
		ID INTEGER, NAME VARCHAR(255), EINWOHNERDICHTE DOUBLE PRECISION,
		WASSERVERBRAUCH DOUBLE PRECISION, STUNDENMITTEL DOUBLE PRECISION,
		FREMDWASSERANTEIL DOUBLE PRECISION, FLAECHE DOUBLE PRECISION,
		KOMMENTAR VARCHAR(255), LASTMODIFIED VARCHAR(40))`,
	`CREATE TABLE SONDERPROFIL (ID INTEGER, NAME VARCHAR(255))`,
	`CREATE TABLE LAU_MAX_S (KNOTEN VARCHAR(255), UEBERSTAUVOLUMEN DOUBLE PRECISION)`,
	`CREATE TABLE LANGZEITKNOTEN (KNOTEN VARCHAR(255), HAEUFIGKEITUEBERSTAU DOUBLE PRECISION, ANZAHLUEBERSTAU DOUBLE PRECISION)`,
}

// NewHE creates an empty HE stand-in with the given counter and version and
// returns its path.
func NewHE(t *testing.T, nextID int64, version string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "he.idbf")
	db := Open(t, path)
	defer db.Close()

	Exec(t, db, heSchema...)
	_, err := db.Exec(`INSERT INTO "ITWH$PROGINFO" (NEXTID, VERSION) VALUES (?, ?)`, nextID, version)
	require.NoError(t, err)

	return path
}

// Open opens a SQLite file with the plain sqlite3 driver.
func Open(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	return db
}

// Exec runs every statement and fails the test on the first error.
func Exec(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
}

// Count returns SELECT COUNT(*) FROM table [WHERE where].
func Count(t *testing.T, db *sql.DB, table, where string, args ...interface{}) int {
	t.Helper()
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		q += " WHERE " + where
	}

	var n int
	require.NoError(t, db.QueryRow(q, args...).Scan(&n), q)
	return n
}
