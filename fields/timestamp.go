package fields

import (
	"database/sql"
	"strings"
	"time"
)

const (
	TimestampLayout      = "02.01.2006 15:04:05"
	shortTimestampLayout = "02.01.2006 15:04"
)

// Timestamp normalizes a creation timestamp. Missing or unparsable values
// become now.
func Timestamp(ns sql.NullString, now time.Time) Value {
	if !ns.Valid || ns.String == "" {
		return Str(now.Format(TimestampLayout))
	}

	layout := TimestampLayout
	if strings.Count(ns.String, ":") == 1 {
		layout = shortTimestampLayout
	}

	t, err := time.ParseInLocation(layout, ns.String, now.Location())
	if err != nil {
		return Str(now.Format(TimestampLayout))
	}
	return Str(t.Format(TimestampLayout))
}
