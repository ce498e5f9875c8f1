package he

import (
	"fmt"
	"regexp"
	"strconv"
)

// Version is the major.minor part of the version string stored in
// ITWH$PROGINFO. Patch levels never change the schema.
type Version struct {
	Major int
	Minor int
}

var versionPattern = regexp.MustCompile(`^\s*(\d+)(?:\.(\d+))?`)

// ParseVersion reads the leading numerals of s, e.g. "7.9.2", "7.8" or "8".
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid HE version %q", s)
	}

	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, fmt.Errorf("invalid HE version %q: %w", s, err)
	}

	minor := 0
	if m[2] != "" {
		if minor, err = strconv.Atoi(m[2]); err != nil {
			return Version{}, fmt.Errorf("invalid HE version %q: %w", s, err)
		}
	}

	return Version{Major: major, Minor: minor}, nil
}

// AtLeast reports whether v is o or later.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	return v.Minor >= o.Minor
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

type capability struct {
	since   Version
	columns []string
}

// capabilities lists, per HE table, the columns introduced by later schema
// versions. All of them are written as 0 on export.
var capabilities = map[string][]capability{
	"ROHR": {
		{since: Version{7, 8}, columns: []string{"EINZUGSGEBIET", "KONSTANTERZUFLUSSTEZG"}},
		{since: Version{7, 9}, columns: []string{"BEFESTIGTEFLAECHE", "UNBEFESTIGTEFLAECHE"}},
	},
	"EINZELEINLEITER": {
		{since: Version{7, 9}, columns: []string{"ZUFLUSSOBERERSCHACHT"}},
	},
}

// Columns returns the version dependent columns of table that exist in
// schema version v.
func Columns(table string, v Version) []string {
	var cols []string
	for _, c := range capabilities[table] {
		if v.AtLeast(c.since) {
			cols = append(cols, c.columns...)
		}
	}
	return cols
}
