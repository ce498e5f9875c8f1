package importer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/archive"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
)

var (
	floodingQuery = `
		SELECT MR.KNOTEN, LZ.HAEUFIGKEITUEBERSTAU, LZ.ANZAHLUEBERSTAU, MR.UEBERSTAUVOLUMEN
		FROM LAU_MAX_S AS MR
		LEFT JOIN LANGZEITKNOTEN AS LZ ON MR.KNOTEN = LZ.KNOTEN
		ORDER BY MR.KNOTEN`

	resultsGeometry = `
		UPDATE ResultsSch SET geom = (
			SELECT geop FROM schaechte WHERE schaechte.schnam = ResultsSch.schnam)`
)

type nodeResult struct {
	node                     string
	frequency, count, volume sql.NullFloat64
}

// Results replaces the contents of ResultsSch with the flooding results of
// the HE database. With results.archive_dir set the rows are also archived
// and the summary over all archived runs is logged.
func Results(ctx context.Context, s *session.Session) error {
	var results []nodeResult
	err := readHE(ctx, s, "results_ueberstau (read)", floodingQuery, func(r *sql.Rows) error {
		var n nodeResult
		if err := r.Scan(&n.node, &n.frequency, &n.count, &n.volume); err != nil {
			return err
		}
		results = append(results, n)
		return nil
	})
	if err != nil {
		return err
	}
	s.Report.Progress("Ergebnisse gelesen", 0.3)

	source := filepath.Base(s.Config.HE.Path)
	err = s.QKBlock(ctx, "results_schaechte", func(tx *session.Tx) error {
		step := 1
		for _, ddl := range s.Dialect.ResultsTable(s.Config.QKan.EPSG) {
			if _, err := tx.Exec(ctx, step, fields.NewStatement(ddl)); err != nil {
				return err
			}
			step++
		}
		if _, err := tx.Exec(ctx, step, fields.NewStatement(`DELETE FROM ResultsSch`)); err != nil {
			return err
		}

		for _, n := range results {
			step++
			row := fields.Row{Table: "ResultsSch", Columns: []fields.Column{
				fields.Text("schnam", fields.Str(n.node)),
				fields.Double("uebstauhaeuf", fields.NullFloat(n.frequency)),
				fields.Double("uebstauanz", fields.NullFloat(n.count)),
				fields.Double("maxuebstauvol", fields.NullFloat(n.volume)),
				fields.Text("kommentar", fields.Str(source)),
			}}
			if _, err := tx.Exec(ctx, step, row.Insert()); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx, step+1, fields.NewStatement(resultsGeometry))
		return err
	})
	if err != nil {
		return err
	}
	s.Report.Count("ResultsSch", len(results))
	s.Report.Progress("Ergebnisse geschrieben", 0.8)

	if s.Config.Results.ArchiveDir == "" {
		return nil
	}
	return archiveResults(ctx, s, source, results)
}

func archiveResults(ctx context.Context, s *session.Session, source string, results []nodeResult) error {
	dir := s.Config.Results.ArchiveDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	rows := make([]archive.NodeResult, len(results))
	for i, n := range results {
		rows[i] = archive.NodeResult{
			RunID:        s.RunID,
			Source:       source,
			Node:         n.node,
			Frequency:    optional(n.frequency),
			Count:        optional(n.count),
			MaxVolume:    optional(n.volume),
			ImportedUnix: s.Now.Unix(),
		}
	}

	name := strings.TrimSuffix(source, filepath.Ext(source)) + "_" + s.Now.Format("20060102T150405") + ".parquet"
	if err := archive.Write(filepath.Join(dir, name), rows); err != nil {
		return err
	}

	sum, err := archive.Summarize(ctx, filepath.Join(dir, "*.parquet"))
	if err != nil {
		s.Warn("results: archive summary failed: %v", err)
		return nil
	}
	log.WithFields(log.Fields{
		"nodes":      sum.Nodes,
		"flooded":    sum.Flooded,
		"max_volume": sum.MaxVolume,
	}).Info("Results archive summary")
	s.Report.Progress("Ergebnisse archiviert", 0.95)
	return nil
}

func optional(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
