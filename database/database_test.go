package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebben/qkanhe/settings"
)

func openWKB(t *testing.T) *sql.DB {
	t.Helper()
	t.Cleanup(CloseDBs)

	db, dialect, err := GetQKanDB(context.Background(), settings.QKanConfig{
		Dialect: "wkb",
		Path:    filepath.Join(t.TempDir(), "qkan.sqlite"),
	})
	require.NoError(t, err)
	require.Equal(t, WKB.Name, dialect.Name)
	return db
}

func blob(t *testing.T, g orb.Geometry) []byte {
	t.Helper()
	b, err := wkb.Marshal(g)
	require.NoError(t, err)
	return b
}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func TestRebind(t *testing.T) {
	q := `SELECT '?', ? FROM "a?b" WHERE x = ?`
	assert.Equal(t, `SELECT '?', $1 FROM "a?b" WHERE x = $2`, PostGIS.Rebind(q))
	assert.Equal(t, q, SpatiaLite.Rebind(q))
	assert.Equal(t, q, WKB.Rebind(q))
}

func TestDialectExpressions(t *testing.T) {
	assert.Equal(t, "AsBinary(CastToXY(sc.geop))", SpatiaLite.AsWKB("sc.geop"))
	assert.Equal(t, "ST_AsBinary(ST_Force2D(sc.geop))", PostGIS.AsWKB("sc.geop"))
	assert.Equal(t, "sc.geop", WKB.AsWKB("sc.geop"))
	assert.Equal(t, "ST_Within(a, b)", PostGIS.Within("a", "b"))
	assert.Equal(t, "CastToMultiPolygon(CollectionExtract(Intersection(fl.geom, tg.geom), 3))",
		SpatiaLite.Intersection("fl.geom", "tg.geom"))

	assert.Equal(t, "MakePoint(xsch, ysch, 25832)", SpatiaLite.MakePoint("xsch", "ysch", 25832))
	assert.Equal(t, "ST_SetSRID(ST_MakePoint(xsch, ysch), 25832)", PostGIS.MakePoint("xsch", "ysch", 25832))
	assert.Equal(t, "MakePoint(xsch, ysch)", WKB.MakePoint("xsch", "ysch", 25832))
	assert.Equal(t, "ST_MakeLine(a, b)", PostGIS.MakeLine("a", "b"))

	ddl := SpatiaLite.ResultsTable(25832)
	require.Len(t, ddl, 2)
	assert.Contains(t, ddl[1], "25832")
	assert.Contains(t, PostGIS.ResultsTable(31467)[0], "geometry(Point, 31467)")

	_, err := DialectByName("oracle")
	assert.Error(t, err)
}

func TestGeoFunctions(t *testing.T) {
	db := openWKB(t)

	sq := blob(t, square(0, 0, 10, 10))
	var area, x float64
	require.NoError(t, db.QueryRow(`SELECT Area(?), X(Centroid(?))`, sq, sq).Scan(&area, &x))
	assert.InDelta(t, 100, area, 1e-9)
	assert.InDelta(t, 5, x, 1e-9)

	var length float64
	require.NoError(t, db.QueryRow(`SELECT GLength(?)`, blob(t, orb.LineString{{0, 0}, {3, 4}})).Scan(&length))
	assert.InDelta(t, 5, length, 1e-9)

	require.NoError(t, db.QueryRow(`SELECT GLength(MakeLine(MakePoint(0, 0), MakePoint(6, 8)))`).Scan(&length))
	assert.InDelta(t, 10, length, 1e-9)

	var in, out int
	require.NoError(t, db.QueryRow(`SELECT Within(?, ?), Within(?, ?)`,
		blob(t, orb.Point{5, 5}), sq, blob(t, orb.Point{11, 5}), sq).Scan(&in, &out))
	assert.Equal(t, 1, in)
	assert.Equal(t, 0, out)

	var null sql.NullFloat64
	require.NoError(t, db.QueryRow(`SELECT Area(NULL)`).Scan(&null))
	assert.False(t, null.Valid)
}

func TestGeoIntersection(t *testing.T) {
	db := openWKB(t)
	sq := blob(t, square(0, 0, 10, 10))

	var area float64
	require.NoError(t, db.QueryRow(`SELECT Area(Intersection(?, ?))`, sq, blob(t, square(5, 0, 15, 10))).Scan(&area))
	assert.InDelta(t, 50, area, 1e-9)

	require.NoError(t, db.QueryRow(`SELECT Area(Intersection(?, ?))`, blob(t, square(2, 2, 4, 4)), sq).Scan(&area))
	assert.InDelta(t, 4, area, 1e-9)

	var none []byte
	require.NoError(t, db.QueryRow(`SELECT Intersection(?, ?)`, sq, blob(t, square(20, 20, 30, 30))).Scan(&none))
	assert.Nil(t, none)

	a := blob(t, orb.Polygon{{{0, 0}, {10, 0}, {0, 10}, {0, 0}}})
	b := blob(t, orb.Polygon{{{2, -2}, {12, 8}, {2, 8}, {2, -2}}})
	err := db.QueryRow(`SELECT Intersection(?, ?)`, a, b).Scan(&none)
	assert.ErrorContains(t, err, "not supported")
}

func TestGetDBReplacesChangedSource(t *testing.T) {
	t.Cleanup(CloseDBs)
	ctx := context.Background()
	dir := t.TempDir()

	first, err := GetHEDB(ctx, settings.HEConfig{Driver: "sqlite3", Path: filepath.Join(dir, "a.idbf")})
	require.NoError(t, err)
	again, err := GetHEDB(ctx, settings.HEConfig{Driver: "sqlite3", Path: filepath.Join(dir, "a.idbf")})
	require.NoError(t, err)
	assert.Same(t, first, again)

	other, err := GetHEDB(ctx, settings.HEConfig{Driver: "sqlite3", Path: filepath.Join(dir, "b.idbf")})
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Error(t, first.Ping())

	_, err = GetHEDB(ctx, settings.HEConfig{Driver: "sqlite3"})
	assert.Error(t, err)
}

func TestCopyTemplate(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "leer.idbf")
	dest := filepath.Join(dir, "netz.idbf")
	require.NoError(t, os.WriteFile(template, []byte("template"), 0o644))
	require.NoError(t, os.WriteFile(dest, []byte("old contents"), 0o644))

	require.NoError(t, CopyTemplate(template, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "template", string(data))

	assert.Error(t, CopyTemplate(filepath.Join(dir, "missing.idbf"), dest))
}

func TestBorrowedDatabaseSurvivesCleanup(t *testing.T) {
	t.Cleanup(CloseDBs)
	ctx := context.Background()
	cfg := settings.QKanConfig{Dialect: "wkb", Path: filepath.Join(t.TempDir(), "qkan.sqlite")}

	db, _, err := GetQKanDB(ctx, cfg)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schaechte (schnam TEXT)`)
	require.NoError(t, err)

	// an idle gap inside a pass
	closeIdle(0)
	_, err = db.Exec(`INSERT INTO schaechte (schnam) VALUES ('S1')`)
	require.NoError(t, err)

	// a second borrower keeps it open after the first one is done
	again, _, err := GetQKanDB(ctx, cfg)
	require.NoError(t, err)
	assert.Same(t, db, again)
	Release(QKan)
	closeIdle(0)
	require.NoError(t, db.Ping())

	Release(QKan)
	closeIdle(time.Hour)
	require.NoError(t, db.Ping())

	closeIdle(0)
	assert.Error(t, db.Ping())
}

func TestHEDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  settings.HEConfig
		want string
	}{
		{"sqlite file", settings.HEConfig{Driver: "sqlite3", Path: "/data/he.idbf"}, "/data/he.idbf?_busy_timeout=5000"},
		{"firebird path", settings.HEConfig{Driver: "firebirdsql", Server: "SYSDBA:masterkey@localhost/", Path: "/data/he.idbf",
			ConnectionString: "SYSDBA:masterkey@db/other.idbf"}, "SYSDBA:masterkey@localhost//data/he.idbf"},
		{"firebird connection", settings.HEConfig{Driver: "firebirdsql", ConnectionString: "SYSDBA:masterkey@db/he.idbf"},
			"SYSDBA:masterkey@db/he.idbf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, heDSN(tt.cfg))
		})
	}
}
