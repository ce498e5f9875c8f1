// Package catchment computes the part of a catchment area that drains to a
// pipe. A catchment flagged with aufteilen = 'ja' is cut along the
// sub-catchment (tezg) its link points into; every other catchment counts
// with its full area.
package catchment

import (
	"fmt"

	"github.com/tebben/qkanhe/database"
)

const (
	// Flagged marks a catchment that is split along sub-catchments.
	Flagged = "ja"

	squareMetresPerHectare = 10000.0
)

// Splitter builds the SQL expressions for one link row of linkfl (alias lf)
// joined with its catchment flaechen (alias fl). The sub-catchment is
// joined as tg.
type Splitter struct {
	Dialect database.Dialect

	// Intersect enables splitting. Without it every catchment keeps its
	// full area.
	Intersect bool

	// MinArea is the smallest piece in m² that is exported.
	MinArea float64
}

// Join returns the join of the sub-catchment referenced by the link.
func (s Splitter) Join() string {
	return "LEFT JOIN tezg AS tg ON lf.tezgnam = tg.flnam"
}

// Geometry returns the expression of the exported piece. A flagged
// catchment without a sub-catchment yields NULL and is dropped by Filter.
func (s Splitter) Geometry() string {
	if !s.Intersect {
		return "fl.geom"
	}
	return fmt.Sprintf("CASE WHEN fl.aufteilen IS NULL OR fl.aufteilen <> '%s' THEN fl.geom ELSE %s END",
		Flagged, s.Dialect.Intersection("fl.geom", "tg.geom"))
}

// Area returns the area of the piece in m².
func (s Splitter) Area() string {
	return s.Dialect.Area(s.Geometry())
}

// Hectares returns the area of the piece in ha.
func (s Splitter) Hectares() string {
	return fmt.Sprintf("%s / %.1f", s.Area(), squareMetresPerHectare)
}

// Filter returns the condition keeping pieces above the minimum area. It
// holds one placeholder bound to MinArea.
func (s Splitter) Filter() string {
	return s.Area() + " > ?"
}
