package export

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/fields"
	"github.com/tebben/qkanhe/session"
)

// referenceUpdates set the numeric reference columns HE keeps next to the
// name columns. A row whose referenced name is unknown keeps its old value.
var referenceUpdates = []string{
	`UPDATE ROHR SET SCHACHTOBENREF = (SELECT SCHACHT.ID FROM SCHACHT WHERE SCHACHT.NAME = ROHR.SCHACHTOBEN)
	WHERE EXISTS (SELECT 1 FROM SCHACHT WHERE SCHACHT.NAME = ROHR.SCHACHTOBEN)`,
	`UPDATE ROHR SET SCHACHTUNTENREF = (SELECT SCHACHT.ID FROM SCHACHT WHERE SCHACHT.NAME = ROHR.SCHACHTUNTEN)
	WHERE EXISTS (SELECT 1 FROM SCHACHT WHERE SCHACHT.NAME = ROHR.SCHACHTUNTEN)`,
	`UPDATE ROHR SET TEILEINZUGSGEBIETREF = (SELECT TEILEINZUGSGEBIET.ID FROM TEILEINZUGSGEBIET WHERE TEILEINZUGSGEBIET.NAME = ROHR.TEILEINZUGSGEBIET)
	WHERE EXISTS (SELECT 1 FROM TEILEINZUGSGEBIET WHERE TEILEINZUGSGEBIET.NAME = ROHR.TEILEINZUGSGEBIET)`,
	`UPDATE ABFLUSSPARAMETER SET BODENKLASSEREF = (SELECT BODENKLASSE.ID FROM BODENKLASSE WHERE BODENKLASSE.NAME = ABFLUSSPARAMETER.BODENKLASSE)
	WHERE EXISTS (SELECT 1 FROM BODENKLASSE WHERE BODENKLASSE.NAME = ABFLUSSPARAMETER.BODENKLASSE)`,
}

func fixReferences(ctx context.Context, s *session.Session) error {
	updated := 0
	err := s.HEBlock(ctx, "export_references", func(tx *session.Tx) error {
		for i, q := range referenceUpdates {
			n, err := tx.Exec(ctx, i+1, fields.NewStatement(q))
			if err != nil {
				return err
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debugf("Updated %d HE references", updated)
	s.Report.Count("references", updated)
	return nil
}
