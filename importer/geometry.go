package importer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/project"
	"github.com/tebben/qkanhe/session"
)

// linkTables are the QKan tables whose line geometry runs from the upper to
// the lower node.
var linkTables = []string{"haltungen", "pumpen", "wehre"}

// refreshGeometry fills missing node points from their coordinates and
// missing link lines from their end nodes. Existing geometries are kept.
func refreshGeometry(ctx context.Context, s *session.Session, _ *refs) error {
	point := s.Dialect.MakePoint("xsch", "ysch", s.Config.QKan.EPSG)
	nodes := fmt.Sprintf(`
		UPDATE schaechte SET geop = %s
		WHERE geop IS NULL AND xsch IS NOT NULL AND ysch IS NOT NULL`, point)

	return s.QKBlock(ctx, "import_geometrie", func(tx *session.Tx) error {
		n, err := tx.Exec(ctx, 1, fields.NewStatement(nodes))
		if err != nil {
			return err
		}
		s.Report.Count("geometrie_schaechte", int(n))

		for i, table := range linkTables {
			line := s.Dialect.MakeLine(
				"(SELECT geop FROM schaechte WHERE schaechte.schnam = "+table+".schoben)",
				"(SELECT geop FROM schaechte WHERE schaechte.schnam = "+table+".schunten)")
			q := fmt.Sprintf(`UPDATE %s SET geom = %s WHERE geom IS NULL`, table, line)
			n, err := tx.Exec(ctx, i+2, fields.NewStatement(q))
			if err != nil {
				return err
			}
			s.Report.Count("geometrie_"+table, int(n))
		}
		return nil
	})
}

// writeProject patches the configured QGIS template for the imported
// network: its coordinate system, the map extent around all nodes and the
// database of every layer.
func writeProject(ctx context.Context, s *session.Session) error {
	rows, err := s.QueryQK(ctx, "import_projekt (extent)", fields.NewStatement(`
		SELECT xsch, ysch FROM schaechte WHERE xsch IS NOT NULL AND ysch IS NOT NULL`))
	if err != nil {
		return err
	}

	var points []orb.Point
	for rows.Next() {
		var x, y sql.NullFloat64
		if err := rows.Scan(&x, &y); err != nil {
			rows.Close()
			return fmt.Errorf("import_projekt (extent): %w", err)
		}
		points = append(points, orb.Point{x.Float64, y.Float64})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("import_projekt (extent): %w", err)
	}

	opts := project.Options{SRID: s.Config.QKan.EPSG, Database: s.Config.QKan.Path}
	if b, ok := project.Extent(points); ok {
		opts.Extent = b
	} else {
		s.Warn("projekt: no manhole coordinates, map extent of the template kept")
	}

	return project.Patch(s.Config.Import.ProjectTemplate, s.Config.Import.ProjectFile, opts)
}
