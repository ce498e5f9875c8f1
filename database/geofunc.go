package database

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/planar"
)

const wkbDriver = "sqlite3_wkb"

// ErrUnsupportedIntersection is returned by the SQL function Intersection
// for polygon pairs it cannot compute exactly.
var ErrUnsupportedIntersection = errors.New("intersection of overlapping non-rectangular polygons is not supported")

func init() {
	sql.Register(wkbDriver, &sqlite3.SQLiteDriver{
		ConnectHook: registerGeoFuncs,
	})
}

// registerGeoFuncs installs the spatial SQL functions of the WKB dialect on
// a connection. Geometry arguments and results are WKB blobs; NULL in gives
// NULL out.
func registerGeoFuncs(conn *sqlite3.SQLiteConn) error {
	funcs := map[string]interface{}{
		"X":            geoX,
		"Y":            geoY,
		"Area":         geoArea,
		"GLength":      geoLength,
		"Centroid":     geoCentroid,
		"Within":       geoWithin,
		"Intersection": geoIntersection,
		"MakePoint":    geoMakePoint,
		"MakeLine":     geoMakeLine,
	}

	for name, impl := range funcs {
		if err := conn.RegisterFunc(name, impl, true); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func decode(v interface{}) (orb.Geometry, error) {
	b, ok := v.([]byte)
	if !ok || len(b) == 0 {
		return nil, nil
	}
	return wkb.Unmarshal(b)
}

func encode(g orb.Geometry) (interface{}, error) {
	if g == nil {
		return nil, nil
	}
	b, err := wkb.Marshal(g)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func geoX(v interface{}) (interface{}, error) {
	g, err := decode(v)
	if p, ok := g.(orb.Point); ok && err == nil {
		return p.X(), nil
	}
	return nil, err
}

func geoY(v interface{}) (interface{}, error) {
	g, err := decode(v)
	if p, ok := g.(orb.Point); ok && err == nil {
		return p.Y(), nil
	}
	return nil, err
}

func geoArea(v interface{}) (interface{}, error) {
	g, err := decode(v)
	if g == nil || err != nil {
		return nil, err
	}
	return math.Abs(planar.Area(g)), nil
}

func geoLength(v interface{}) (interface{}, error) {
	g, err := decode(v)
	if g == nil || err != nil {
		return nil, err
	}
	return planar.Length(g), nil
}

func geoCentroid(v interface{}) (interface{}, error) {
	g, err := decode(v)
	if g == nil || err != nil {
		return nil, err
	}
	c, _ := planar.CentroidArea(g)
	return encode(c)
}

func geoMakePoint(x, y interface{}) (interface{}, error) {
	fx, okx := toFloat(x)
	fy, oky := toFloat(y)
	if !okx || !oky {
		return nil, nil
	}
	return encode(orb.Point{fx, fy})
}

func geoMakeLine(a, b interface{}) (interface{}, error) {
	ga, err := decode(a)
	if err != nil {
		return nil, err
	}
	gb, err := decode(b)
	if err != nil {
		return nil, err
	}
	pa, oka := ga.(orb.Point)
	pb, okb := gb.(orb.Point)
	if !oka || !okb {
		return nil, nil
	}
	return encode(orb.LineString{pa, pb})
}

func geoWithin(a, b interface{}) (interface{}, error) {
	ga, err := decode(a)
	if err != nil {
		return nil, err
	}
	gb, err := decode(b)
	if err != nil || ga == nil || gb == nil {
		return nil, err
	}
	if within(ga, gb) {
		return int64(1), nil
	}
	return int64(0), nil
}

func geoIntersection(a, b interface{}) (interface{}, error) {
	ga, err := decode(a)
	if err != nil {
		return nil, err
	}
	gb, err := decode(b)
	if err != nil || ga == nil || gb == nil {
		return nil, err
	}

	mp, err := intersection(polygons(ga), polygons(gb))
	if err != nil || len(mp) == 0 {
		return nil, err
	}
	return encode(mp)
}

// within reports whether every vertex of a lies inside the polygonal
// geometry b.
func within(a, b orb.Geometry) bool {
	mp := polygons(b)
	if len(mp) == 0 {
		return false
	}

	inside := true
	forEachPoint(a, func(p orb.Point) {
		if inside && !planar.MultiPolygonContains(mp, p) {
			inside = false
		}
	})
	return inside
}

// intersection computes a ∩ b for the cases that have an exact answer
// without a general clipping algorithm: containment, disjoint bounds and a
// rectangular operand.
func intersection(a, b orb.MultiPolygon) (orb.MultiPolygon, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, nil
	}
	if !a.Bound().Intersects(b.Bound()) {
		return nil, nil
	}
	if within(a, b) {
		return a, nil
	}
	if within(b, a) {
		return b, nil
	}
	if bound, ok := rectangle(b); ok {
		return clip.MultiPolygon(bound, a.Clone()), nil
	}
	if bound, ok := rectangle(a); ok {
		return clip.MultiPolygon(bound, b.Clone()), nil
	}
	return nil, ErrUnsupportedIntersection
}

// rectangle reports whether mp is a single axis-aligned rectangle.
func rectangle(mp orb.MultiPolygon) (orb.Bound, bool) {
	if len(mp) != 1 || len(mp[0]) != 1 {
		return orb.Bound{}, false
	}

	bound := mp.Bound()
	ring := mp[0][0]
	for _, p := range ring {
		if (p[0] != bound.Min[0] && p[0] != bound.Max[0]) || (p[1] != bound.Min[1] && p[1] != bound.Max[1]) {
			return orb.Bound{}, false
		}
	}

	area := (bound.Max[0] - bound.Min[0]) * (bound.Max[1] - bound.Min[1])
	return bound, area > 0 && math.Abs(math.Abs(planar.Area(ring))-area) < 1e-9*area
}

func polygons(g orb.Geometry) orb.MultiPolygon {
	switch g := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}
	case orb.MultiPolygon:
		return g
	case orb.Collection:
		var mp orb.MultiPolygon
		for _, sub := range g {
			mp = append(mp, polygons(sub)...)
		}
		return mp
	}
	return nil
}

func forEachPoint(g orb.Geometry, fn func(orb.Point)) {
	switch g := g.(type) {
	case orb.Point:
		fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			fn(p)
		}
	case orb.LineString:
		for _, p := range g {
			fn(p)
		}
	case orb.Ring:
		for _, p := range g {
			fn(p)
		}
	case orb.Polygon:
		for _, r := range g {
			forEachPoint(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			forEachPoint(p, fn)
		}
	case orb.MultiLineString:
		for _, l := range g {
			forEachPoint(l, fn)
		}
	case orb.Collection:
		for _, sub := range g {
			forEachPoint(sub, fn)
		}
	}
}
