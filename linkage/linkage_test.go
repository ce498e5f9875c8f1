package linkage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/testdb"
)

func openSession(t *testing.T) *session.Session {
	t.Helper()
	cfg := testdb.Config(t, testdb.NewQKan(t), "")
	cfg.Export.SearchRadius = 0.25

	s, err := session.Open(context.Background(), cfg, session.KindLink)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func insert(t *testing.T, db *sql.DB, q string, args ...interface{}) {
	t.Helper()
	_, err := db.Exec(q, args...)
	require.NoError(t, err, q)
}

func column(t *testing.T, db *sql.DB, q string) []sql.NullString {
	t.Helper()
	rows, err := db.Query(q)
	require.NoError(t, err)
	defer rows.Close()

	var out []sql.NullString
	for rows.Next() {
		var v sql.NullString
		require.NoError(t, rows.Scan(&v))
		out = append(out, v)
	}
	require.NoError(t, rows.Err())
	return out
}

func str(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func pipes(t *testing.T, db *sql.DB) {
	insert(t, db, `INSERT INTO haltungen (pk, haltnam, geom) VALUES (1, 'H1', ?), (2, 'H2', ?), (3, 'H3', ?)`,
		testdb.WKB(t, orb.LineString{{0, 0}, {10, 0}}),
		testdb.WKB(t, orb.LineString{{0, 10}, {10, 10}}),
		testdb.WKB(t, orb.LineString{{0, 10.25}, {10, 10.25}}))
}

func TestUpdateEinleitIsIdempotent(t *testing.T) {
	s := openSession(t)
	ctx := context.Background()
	pipes(t, s.QK)

	insert(t, s.QK, `INSERT INTO einleit (pk, elnam, geom) VALUES (1, 'E1', ?), (2, 'E2', ?)`,
		testdb.WKB(t, orb.Point{5, 5}), testdb.WKB(t, orb.Point{20, 20}))
	insert(t, s.QK, `INSERT INTO linksw (pk, elnam, haltnam, glink) VALUES (1, NULL, NULL, ?), (2, 'E2', 'gone', ?), (3, 'E1', 'H1', ?)`,
		testdb.WKB(t, orb.LineString{{5, 5}, {5, 0.05}}),
		testdb.WKB(t, orb.LineString{{20, 20}, {30, 30}}),
		testdb.WKB(t, orb.LineString{{5, 5}, {5, 0}}))

	n, err := Update(ctx, s, Einleit)
	require.NoError(t, err)
	// link 1: elnam and haltnam; link 2: haltnam to NULL; einleit E1.
	assert.Equal(t, 4, n)

	assert.Equal(t, []sql.NullString{str("E1"), str("E2"), str("E1")}, column(t, s.QK, `SELECT elnam FROM linksw ORDER BY pk`))
	assert.Equal(t, []sql.NullString{str("H1"), {}, str("H1")}, column(t, s.QK, `SELECT haltnam FROM linksw ORDER BY pk`))
	assert.Equal(t, []sql.NullString{str("H1"), {}}, column(t, s.QK, `SELECT haltnam FROM einleit ORDER BY pk`))

	n, err = Update(ctx, s, Einleit)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdateKeepsValidLink(t *testing.T) {
	s := openSession(t)
	ctx := context.Background()
	pipes(t, s.QK)

	// H3 is nearer, but the recorded H2 is still within the radius.
	insert(t, s.QK, `INSERT INTO linksw (pk, elnam, haltnam, glink) VALUES (1, NULL, 'H2', ?)`,
		testdb.WKB(t, orb.LineString{{5, 5}, {5, 10.2}}))

	n, err := Update(ctx, s, Einleit)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []sql.NullString{str("H2")}, column(t, s.QK, `SELECT haltnam FROM linksw`))
}

func TestUpdateTieBreaksOnLowestPk(t *testing.T) {
	s := openSession(t)
	ctx := context.Background()
	pipes(t, s.QK)

	insert(t, s.QK, `INSERT INTO linksw (pk, glink) VALUES (1, ?), (2, ?)`,
		testdb.WKB(t, orb.LineString{{5, 5}, {5, 10.125}}),
		testdb.WKB(t, orb.LineString{{5, 5}, {5, 10.1875}}))

	_, err := Update(ctx, s, Einleit)
	require.NoError(t, err)
	assert.Equal(t, []sql.NullString{str("H2"), str("H3")}, column(t, s.QK, `SELECT haltnam FROM linksw ORDER BY pk`))
}

func TestUpdateFlaechenByContainment(t *testing.T) {
	s := openSession(t)
	ctx := context.Background()
	pipes(t, s.QK)

	insert(t, s.QK, `INSERT INTO flaechen (pk, flnam, geom) VALUES (1, 'F1', ?), (2, 'F2', ?)`,
		testdb.WKB(t, testdb.Square(0, 1, 8)), testdb.WKB(t, testdb.Square(2, 1, 8)))
	insert(t, s.QK, `INSERT INTO tezg (pk, flnam, geom) VALUES (1, 'T1', ?)`,
		testdb.WKB(t, testdb.Square(0, 0, 10)))
	insert(t, s.QK, `INSERT INTO linkfl (pk, flnam, glink) VALUES (1, 'F1', ?), (2, 'F1', ?)`,
		testdb.WKB(t, orb.LineString{{3, 3}, {3, 0}}),
		testdb.WKB(t, orb.LineString{{9, 3}, {9, 0}}))

	n, err := Update(ctx, s, Flaechen)
	require.NoError(t, err)
	// link 2 starts outside F1 only; both get haltnam and tezgnam.
	assert.Equal(t, 5, n)

	assert.Equal(t, []sql.NullString{str("F1"), str("F2")}, column(t, s.QK, `SELECT flnam FROM linkfl ORDER BY pk`))
	assert.Equal(t, []sql.NullString{str("H1"), str("H1")}, column(t, s.QK, `SELECT haltnam FROM linkfl ORDER BY pk`))
	assert.Equal(t, []sql.NullString{str("T1"), str("T1")}, column(t, s.QK, `SELECT tezgnam FROM linkfl ORDER BY pk`))

	n, err = Update(ctx, s, Flaechen)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdateAussengebieteDenormalizes(t *testing.T) {
	s := openSession(t)
	ctx := context.Background()

	insert(t, s.QK, `INSERT INTO schaechte (pk, schnam, geop) VALUES (1, 'S1', ?), (2, 'S2', ?)`,
		testdb.WKB(t, orb.Point{50, 50}), testdb.WKB(t, orb.Point{60, 60}))
	insert(t, s.QK, `INSERT INTO aussengebiete (pk, gebnam, schnam, geom) VALUES (1, 'A1', 'S2', ?)`,
		testdb.WKB(t, testdb.Square(0, 0, 20)))
	insert(t, s.QK, `INSERT INTO linkageb (pk, gebnam, schnam, glink) VALUES (1, NULL, NULL, ?)`,
		testdb.WKB(t, orb.LineString{{10, 10}, {50, 50.02}}))

	n, err := Update(ctx, s, Aussengebiete)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []sql.NullString{str("S1")}, column(t, s.QK, `SELECT schnam FROM aussengebiete`))
}

func TestMatches(t *testing.T) {
	line := orb.LineString{{0, 0}, {10, 0}}

	d, ok := matches(line, orb.Point{5, 0.1}, Near, 0.1)
	assert.True(t, ok)
	assert.InDelta(t, 0.1, d, 1e-9)

	_, ok = matches(line, orb.Point{5, 0.2}, Near, 0.1)
	assert.False(t, ok)

	_, ok = matches(testdb.Square(0, 0, 1), orb.Point{0.5, 0.5}, Contains, 0)
	assert.True(t, ok)

	_, ok = matches(line, orb.Point{5, 0}, Contains, 0)
	assert.False(t, ok)
}
