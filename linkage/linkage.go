// Package linkage keeps the QKan link tables consistent with the features
// they connect. A link is a line whose start point lies on a source feature
// (area, discharger, external catchment) and whose end point lies on a pipe
// or manhole. Invalid references are re-resolved from the geometry.
package linkage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/planar"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
)

// End selects the link vertex matched against a target.
type End int

const (
	Start End = iota
	Finish
)

// Match is the tolerance test between a link end and a target feature.
type Match int

const (
	// Contains requires the end point inside the target polygon.
	Contains Match = iota
	// Near requires the end point within the search radius of the target.
	Near
)

// Target is a feature table referenced by a link column.
type Target struct {
	Table string
	Name  string
	Geom  string
	Match Match
}

// Association binds one name column of a link table to a target.
type Association struct {
	Column string
	End    End
	Target Target
}

// Denormalization copies a resolved link column into the source table.
type Denormalization struct {
	Table  string // source table, e.g. einleit
	Key    string // name column shared by source and link table
	Column string // column copied from the link table
}

// Set is a link table with its associations, executed in order.
type Set struct {
	Name         string
	Table        string
	Geom         string
	Associations []Association
	Denormalize  []Denormalization
}

var (
	haltungen = Target{Table: "haltungen", Name: "haltnam", Geom: "geom", Match: Near}
	schaechte = Target{Table: "schaechte", Name: "schnam", Geom: "geop", Match: Near}
)

var Flaechen = Set{
	Name:  "flaechen",
	Table: "linkfl",
	Geom:  "glink",
	Associations: []Association{
		{Column: "flnam", End: Start, Target: Target{Table: "flaechen", Name: "flnam", Geom: "geom", Match: Contains}},
		{Column: "haltnam", End: Finish, Target: haltungen},
		{Column: "tezgnam", End: Start, Target: Target{Table: "tezg", Name: "flnam", Geom: "geom", Match: Contains}},
	},
}

var Einleit = Set{
	Name:  "einleit",
	Table: "linksw",
	Geom:  "glink",
	Associations: []Association{
		{Column: "elnam", End: Start, Target: Target{Table: "einleit", Name: "elnam", Geom: "geom", Match: Near}},
		{Column: "haltnam", End: Finish, Target: haltungen},
	},
	Denormalize: []Denormalization{{Table: "einleit", Key: "elnam", Column: "haltnam"}},
}

var Einwohner = Set{
	Name:  "einwohner",
	Table: "linkew",
	Geom:  "glink",
	Associations: []Association{
		{Column: "elnam", End: Start, Target: Target{Table: "einwohner", Name: "elnam", Geom: "geom", Match: Near}},
		{Column: "haltnam", End: Finish, Target: haltungen},
	},
	Denormalize: []Denormalization{{Table: "einwohner", Key: "elnam", Column: "haltnam"}},
}

var Aussengebiete = Set{
	Name:  "aussengebiete",
	Table: "linkageb",
	Geom:  "glink",
	Associations: []Association{
		{Column: "gebnam", End: Start, Target: Target{Table: "aussengebiete", Name: "gebnam", Geom: "geom", Match: Contains}},
		{Column: "schnam", End: Finish, Target: schaechte},
	},
	Denormalize: []Denormalization{{Table: "aussengebiete", Key: "gebnam", Column: "schnam"}},
}

// Sets lists every association set by name.
var Sets = map[string]Set{
	Flaechen.Name:      Flaechen,
	Einleit.Name:       Einleit,
	Einwohner.Name:     Einwohner,
	Aussengebiete.Name: Aussengebiete,
}

type feature struct {
	pk   int64
	name string
	geom orb.Geometry
}

type link struct {
	pk    int64
	value sql.NullString
	start orb.Point
	end   orb.Point
	ok    bool // has a usable line geometry
}

// Update resolves every association of set and returns the number of link
// and source rows changed. A second run on unchanged data changes nothing.
func Update(ctx context.Context, s *session.Session, set Set) (int, error) {
	radius := s.Config.Export.SearchRadius
	total := 0

	for i, a := range set.Associations {
		targets, err := loadTargets(ctx, s, a.Target)
		if err != nil {
			return total, err
		}
		links, err := loadLinks(ctx, s, set, a.Column)
		if err != nil {
			return total, err
		}

		changes := resolve(links, targets, a, radius)
		if len(changes) == 0 {
			continue
		}

		block := fmt.Sprintf("link_%s_%s", set.Name, a.Column)
		q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE pk = ?", set.Table, a.Column)
		err = s.QKBlock(ctx, block, func(tx *session.Tx) error {
			for _, c := range changes {
				if _, err := tx.Exec(ctx, i+1, fields.NewStatement(q, fields.NullStr(c.value), fields.Int(c.pk))); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}

		log.Infof("%s.%s: %d links updated", set.Table, a.Column, len(changes))
		total += len(changes)
	}

	for _, d := range set.Denormalize {
		n, err := denormalize(ctx, s, set, d)
		if err != nil {
			return total, err
		}
		total += n
	}

	return total, nil
}

type change struct {
	pk    int64
	value sql.NullString
}

// resolve returns the links whose column has to change. A valid link is
// kept. An invalid one gets the nearest matching target, the lowest pk on
// equal distance, or NULL without a match.
func resolve(links []link, targets []feature, a Association, radius float64) []change {
	byName := make(map[string][]feature, len(targets))
	for _, f := range targets {
		byName[f.name] = append(byName[f.name], f)
	}

	var changes []change
	for _, l := range links {
		if !l.ok {
			continue
		}

		p := l.start
		if a.End == Finish {
			p = l.end
		}

		if l.value.Valid {
			valid := false
			for _, f := range byName[l.value.String] {
				if _, ok := matches(f.geom, p, a.Target.Match, radius); ok {
					valid = true
					break
				}
			}
			if valid {
				continue
			}
		}

		next := nearest(targets, p, a.Target.Match, radius)
		if next.Valid == l.value.Valid && next.String == l.value.String {
			continue
		}
		changes = append(changes, change{pk: l.pk, value: next})
	}
	return changes
}

// nearest expects targets ordered by pk.
func nearest(targets []feature, p orb.Point, m Match, radius float64) sql.NullString {
	best := sql.NullString{}
	bestDist := math.Inf(1)
	for _, f := range targets {
		d, ok := matches(f.geom, p, m, radius)
		if ok && d < bestDist {
			best = sql.NullString{String: f.name, Valid: true}
			bestDist = d
		}
	}
	return best
}

// matches returns the distance between p and g and whether it is within
// tolerance. Containment counts as distance 0.
func matches(g orb.Geometry, p orb.Point, m Match, radius float64) (float64, bool) {
	if m == Contains {
		switch g := g.(type) {
		case orb.Polygon:
			return 0, planar.PolygonContains(g, p)
		case orb.MultiPolygon:
			return 0, planar.MultiPolygonContains(g, p)
		}
		return 0, false
	}

	var d float64
	switch g := g.(type) {
	case orb.Point:
		d = planar.Distance(g, p)
	case nil:
		return 0, false
	default:
		d = planar.DistanceFrom(g, p)
	}
	return d, d <= radius
}

func loadTargets(ctx context.Context, s *session.Session, t Target) ([]feature, error) {
	q := fmt.Sprintf("SELECT pk, %s, %s FROM %s WHERE %s IS NOT NULL AND %s IS NOT NULL ORDER BY pk",
		t.Name, s.Dialect.AsWKB(t.Geom), t.Table, t.Name, t.Geom)
	rows, err := s.QueryQK(ctx, "link targets "+t.Table, fields.NewStatement(q))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []feature
	for rows.Next() {
		var f feature
		var b []byte
		if err := rows.Scan(&f.pk, &f.name, &b); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Table, err)
		}
		if f.geom, err = wkb.Unmarshal(b); err != nil {
			log.Warnf("%s %s: unreadable geometry: %v", t.Table, f.name, err)
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func loadLinks(ctx context.Context, s *session.Session, set Set, column string) ([]link, error) {
	q := fmt.Sprintf("SELECT pk, %s, %s FROM %s ORDER BY pk", column, s.Dialect.AsWKB(set.Geom), set.Table)
	rows, err := s.QueryQK(ctx, "links "+set.Table, fields.NewStatement(q))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []link
	for rows.Next() {
		var l link
		var b []byte
		if err := rows.Scan(&l.pk, &l.value, &b); err != nil {
			return nil, fmt.Errorf("scan %s: %w", set.Table, err)
		}
		if len(b) > 0 {
			if g, err := wkb.Unmarshal(b); err == nil {
				l.start, l.end, l.ok = endpoints(g)
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func endpoints(g orb.Geometry) (orb.Point, orb.Point, bool) {
	switch g := g.(type) {
	case orb.LineString:
		if len(g) >= 2 {
			return g[0], g[len(g)-1], true
		}
	case orb.MultiLineString:
		if len(g) > 0 && len(g[0]) >= 2 {
			last := g[len(g)-1]
			return g[0][0], last[len(last)-1], true
		}
	}
	return orb.Point{}, orb.Point{}, false
}

// denormalize copies the link column into the source rows that have a link.
// The link with the lowest pk decides.
func denormalize(ctx context.Context, s *session.Session, set Set, d Denormalization) (int, error) {
	linked, err := readPairs(ctx, s, fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IS NOT NULL ORDER BY pk",
		d.Key, d.Column, set.Table, d.Key))
	if err != nil {
		return 0, err
	}
	current, err := readPairs(ctx, s, fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IS NOT NULL ORDER BY pk",
		d.Key, d.Column, d.Table, d.Key))
	if err != nil {
		return 0, err
	}

	var keys []string
	for key, v := range linked {
		if cur, ok := current[key]; ok && cur != v {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	sort.Strings(keys)

	q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", d.Table, d.Column, d.Key)
	err = s.QKBlock(ctx, fmt.Sprintf("link_%s_%s", d.Table, d.Column), func(tx *session.Tx) error {
		for _, key := range keys {
			if _, err := tx.Exec(ctx, 1, fields.NewStatement(q, fields.NullStr(linked[key]), fields.Str(key))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Infof("%s.%s: %d rows updated from %s", d.Table, d.Column, len(keys), set.Table)
	return len(keys), nil
}

// readPairs reads a key → value map; the first row of a key wins.
func readPairs(ctx context.Context, s *session.Session, q string) (map[string]sql.NullString, error) {
	rows, err := s.QueryQK(ctx, "link pairs", fields.NewStatement(q))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]sql.NullString)
	for rows.Next() {
		var key string
		var v sql.NullString
		if err := rows.Scan(&key, &v); err != nil {
			return nil, err
		}
		if _, ok := out[key]; !ok {
			out[key] = v
		}
	}
	return out, rows.Err()
}
