// Package project writes a QGIS project for an imported QKan database by
// patching a template: coordinate system, map extent and layer datasources.
package project

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"

	"github.com/beevik/etree"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
)

const (
	// extent padding as a share of the network size, and its minimum in m
	padShare   = 0.05
	padMinimum = 10.0
)

type Options struct {
	SRID     int
	Extent   orb.Bound
	Database string
}

var dbName = regexp.MustCompile(`dbname='[^']*'`)

// Extent returns the bounds of points padded on every side by 5 % of the
// larger side, at least 10 m. ok is false without points.
func Extent(points []orb.Point) (b orb.Bound, ok bool) {
	if len(points) == 0 {
		return orb.Bound{}, false
	}

	b = orb.MultiPoint(points).Bound()
	pad := math.Max(padShare*math.Max(b.Max.X()-b.Min.X(), b.Max.Y()-b.Min.Y()), padMinimum)
	return b.Pad(pad), true
}

// Patch rewrites the template at src and writes the result to dest.
func Patch(src, dest string, o Options) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read project template: %w", err)
	}

	out, err := Rewrite(string(raw), o)
	if err != nil {
		return fmt.Errorf("project template %s: %w", src, err)
	}
	if err := os.WriteFile(dest, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write project %s: %w", dest, err)
	}

	log.Infof("Wrote project %s", dest)
	return nil
}

// Rewrite applies o to the text of a project file. Elements that are
// missing in the template are left out without error.
func Rewrite(qgs string, o Options) (string, error) {
	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalText = true
	if err := doc.ReadFromString(qgs); err != nil {
		return "", fmt.Errorf("parse project: %w", err)
	}

	if o.SRID > 0 {
		srid := strconv.Itoa(o.SRID)
		for _, e := range doc.FindElements("//spatialrefsys/srid") {
			e.SetText(srid)
		}
		for _, e := range doc.FindElements("//spatialrefsys/authid") {
			e.SetText("EPSG:" + srid)
		}
	}

	if !o.Extent.IsZero() {
		values := map[string]float64{
			"xmin": o.Extent.Min.X(),
			"ymin": o.Extent.Min.Y(),
			"xmax": o.Extent.Max.X(),
			"ymax": o.Extent.Max.Y(),
		}
		for _, extent := range doc.FindElements("//mapcanvas/extent") {
			for tag, v := range values {
				if e := extent.SelectElement(tag); e != nil {
					e.SetText(strconv.FormatFloat(v, 'f', 3, 64))
				}
			}
		}
	}

	// layer sources are "dbname='<file>' table=..." strings
	if o.Database != "" {
		for _, ds := range doc.FindElements("//datasource") {
			ds.SetText(dbName.ReplaceAllLiteralString(ds.Text(), "dbname='"+o.Database+"'"))
		}
	}

	return doc.WriteToString()
}
