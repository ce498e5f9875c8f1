// Package export writes a QKan network into a Hystem-Extran database.
//
// The entities are exported in a fixed order, each in its own HE
// transaction together with the row ID counter. Existing HE rows are updated
// when the modify flag of the entity is set; missing rows are inserted when
// its export flag is set.
package export

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/database"
	"github.com/tebben/qkanhe/linkage"
	"github.com/tebben/qkanhe/session"
	"github.com/tebben/qkanhe/settings"
)

type blockFunc func(ctx context.Context, s *session.Session, flags settings.EntityFlags) error

type block struct {
	name     string
	progress float64
	run      blockFunc
}

var blocks = []block{
	{name: "schaechte", progress: 0.30, run: exportSchaechte},
	{name: "speicher", progress: 0.35, run: exportSpeicher},
	{name: "speicherkennlinien", progress: 0.40, run: exportSpeicherkennlinien},
	{name: "auslaesse", progress: 0.45, run: exportAuslaesse},
	{name: "pumpen", progress: 0.50, run: exportPumpen},
	{name: "wehre", progress: 0.55, run: exportWehre},
	{name: "haltungen", progress: 0.60, run: exportHaltungen},
	{name: "bodenklassen", progress: 0.62, run: exportBodenklassen},
	{name: "abflussparameter", progress: 0.65, run: exportAbflussparameter},
	{name: "regenschreiber", progress: 0.68, run: exportRegenschreiber},
	{name: "flaechen", progress: 0.80, run: exportFlaechen},
	{name: "einleit", progress: 0.95, run: exportEinleit},
	{name: "aussengebiete", progress: 0.98, run: exportAussengebiete},
}

// links lists the link sets refreshed before the entity that reads them.
var links = map[string]linkage.Set{
	"flaechen":      linkage.Flaechen,
	"einleit":       linkage.Einleit,
	"aussengebiete": linkage.Aussengebiete,
}

// Run exports the QKan database of s into its HE database. Any SQL error
// aborts the pass; blocks committed before it stay in the HE database.
func Run(ctx context.Context, s *session.Session) error {
	cfg := s.Config

	if cfg.HE.Template != "" {
		if err := database.CopyTemplate(cfg.HE.Template, cfg.HE.Path); err != nil {
			return err
		}
		heDB, err := database.GetHEDB(ctx, cfg.HE)
		if err != nil {
			return err
		}
		s.HE = heDB
	}
	s.Report.Progress("HE-Datenbank geöffnet", 0.01)

	if err := s.LoadIDs(ctx); err != nil {
		return fmt.Errorf("export aborted: %w", err)
	}

	if err := checkNames(ctx, s); err != nil {
		return err
	}
	if active(cfg.Export.Flags("einleit")) {
		if err := checkEinzugsgebiete(ctx, s); err != nil {
			return err
		}
	}
	s.Report.Progress("Prüfungen abgeschlossen", 0.05)

	for _, b := range blocks {
		flags := cfg.Export.Flags(b.name)
		if !active(flags) {
			log.Debugf("Skipping %s", b.name)
			continue
		}

		if set, ok := links[b.name]; ok {
			n, err := linkage.Update(ctx, s, set)
			if err != nil {
				return err
			}
			s.Report.Count("link_"+set.Name, n)
		}

		if err := b.run(ctx, s, flags); err != nil {
			return err
		}
		s.Report.Progress(b.name, b.progress)
	}

	if cfg.Export.FixReferences {
		if err := fixReferences(ctx, s); err != nil {
			return err
		}
	}

	log.Infof("Export finished, next HE id %d", s.IDs.Peek())
	return nil
}

func active(f settings.EntityFlags) bool {
	return f.Export || f.Modify
}
