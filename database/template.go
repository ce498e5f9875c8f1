package database

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// CopyTemplate replaces dest with a copy of the empty HE database template.
// An open handle on dest is closed first.
func CopyTemplate(template, dest string) error {
	CloseDB(HE)

	src, err := os.Open(template)
	if err != nil {
		return fmt.Errorf("open HE template: %w", err)
	}
	defer src.Close()

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", dest, err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("copy HE template: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	log.Infof("Copied HE template %s to %s", template, dest)
	return nil
}
