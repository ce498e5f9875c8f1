package database

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect holds the spatial function names and placeholder style of a QKan
// backend. It only picks between fixed spellings; all geometry work is done
// by the engine.
type Dialect struct {
	Name string

	numbered     bool
	wkb          string
	x            string
	y            string
	area         string
	length       string
	centroid     string
	within       string
	intersection string
	makePoint    string
	makeLine     string
	resultsDDL   []string
}

var (
	SpatiaLite = Dialect{
		Name:         "spatialite",
		wkb:          "AsBinary(CastToXY(%s))",
		x:            "X(%s)",
		y:            "Y(%s)",
		area:         "Area(%s)",
		length:       "GLength(%s)",
		centroid:     "Centroid(%s)",
		within:       "Within(%s, %s)",
		intersection: "CastToMultiPolygon(CollectionExtract(Intersection(%s, %s), 3))",
		makePoint:    "MakePoint(%[1]s, %[2]s, %[3]d)",
		makeLine:     "MakeLine(%s, %s)",
		resultsDDL: []string{
			`CREATE TABLE IF NOT EXISTS ResultsSch(
				pk INTEGER PRIMARY KEY AUTOINCREMENT,
				schnam TEXT,
				uebstauhaeuf REAL,
				uebstauanz REAL,
				maxuebstauvol REAL,
				kommentar TEXT,
				createdat TEXT DEFAULT CURRENT_DATE)`,
			`SELECT AddGeometryColumn('ResultsSch', 'geom', %[1]d, 'POINT', 2)`,
		},
	}

	PostGIS = Dialect{
		Name:         "postgis",
		numbered:     true,
		wkb:          "ST_AsBinary(ST_Force2D(%s))",
		x:            "ST_X(%s)",
		y:            "ST_Y(%s)",
		area:         "ST_Area(%s)",
		length:       "ST_Length(%s)",
		centroid:     "ST_Centroid(%s)",
		within:       "ST_Within(%s, %s)",
		intersection: "ST_Multi(ST_CollectionExtract(ST_Intersection(%s, %s), 3))",
		makePoint:    "ST_SetSRID(ST_MakePoint(%[1]s, %[2]s), %[3]d)",
		makeLine:     "ST_MakeLine(%s, %s)",
		resultsDDL: []string{
			`CREATE TABLE IF NOT EXISTS resultssch(
				pk SERIAL PRIMARY KEY,
				schnam TEXT,
				uebstauhaeuf DOUBLE PRECISION,
				uebstauanz DOUBLE PRECISION,
				maxuebstauvol DOUBLE PRECISION,
				kommentar TEXT,
				createdat TIMESTAMP DEFAULT now(),
				geom geometry(Point, %[1]d))`,
		},
	}

	// WKB is a plain SQLite file with geometries stored as WKB blobs. Its
	// spatial functions are provided by geofunc.go.
	WKB = Dialect{
		Name:         "wkb",
		wkb:          "%s",
		x:            "X(%s)",
		y:            "Y(%s)",
		area:         "Area(%s)",
		length:       "GLength(%s)",
		centroid:     "Centroid(%s)",
		within:       "Within(%s, %s)",
		intersection: "Intersection(%s, %s)",
		makePoint:    "MakePoint(%[1]s, %[2]s)",
		makeLine:     "MakeLine(%s, %s)",
		resultsDDL: []string{
			`CREATE TABLE IF NOT EXISTS ResultsSch(
				pk INTEGER PRIMARY KEY AUTOINCREMENT,
				schnam TEXT,
				uebstauhaeuf REAL,
				uebstauanz REAL,
				maxuebstauvol REAL,
				kommentar TEXT,
				createdat TEXT DEFAULT CURRENT_DATE,
				geom BLOB)`,
		},
	}
)

// DialectByName returns the dialect configured as qkan.dialect.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case SpatiaLite.Name:
		return SpatiaLite, nil
	case PostGIS.Name:
		return PostGIS, nil
	case WKB.Name:
		return WKB, nil
	}
	return Dialect{}, fmt.Errorf("unknown QKan dialect %q", name)
}

func (d Dialect) AsWKB(expr string) string { return fmt.Sprintf(d.wkb, expr) }
func (d Dialect) X(expr string) string     { return fmt.Sprintf(d.x, expr) }
func (d Dialect) Y(expr string) string     { return fmt.Sprintf(d.y, expr) }
func (d Dialect) Area(expr string) string  { return fmt.Sprintf(d.area, expr) }

func (d Dialect) Length(expr string) string   { return fmt.Sprintf(d.length, expr) }
func (d Dialect) Centroid(expr string) string { return fmt.Sprintf(d.centroid, expr) }

func (d Dialect) Within(a, b string) string { return fmt.Sprintf(d.within, a, b) }

// Intersection returns the polygonal part of the intersection of a and b as
// a multipolygon.
func (d Dialect) Intersection(a, b string) string { return fmt.Sprintf(d.intersection, a, b) }

// MakePoint builds a point in srid from two coordinate expressions. The WKB
// dialect stores no SRID.
func (d Dialect) MakePoint(x, y string, srid int) string { return fmt.Sprintf(d.makePoint, x, y, srid) }

func (d Dialect) MakeLine(a, b string) string { return fmt.Sprintf(d.makeLine, a, b) }

// ResultsTable returns the statements creating the ResultsSch table.
func (d Dialect) ResultsTable(srid int) []string {
	stmts := make([]string, len(d.resultsDDL))
	for i, s := range d.resultsDDL {
		if strings.Contains(s, "%[1]d") {
			s = fmt.Sprintf(s, srid)
		}
		stmts[i] = s
	}
	return stmts
}

// Rebind converts ? placeholders to $n for numbered dialects. Question marks
// inside quoted literals or identifiers are left alone.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}

	return b.String()
}
