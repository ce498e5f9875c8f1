package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

var summaryQuery = `
	SELECT
		count(*),
		coalesce(sum(CASE WHEN maxuebstauvol > 0 THEN 1 ELSE 0 END), 0),
		coalesce(max(maxuebstauvol), 0)
	FROM read_parquet('%FILES%')`

// Summary aggregates one or more archive files.
type Summary struct {
	Nodes     int64   `json:"nodes"`
	Flooded   int64   `json:"flooded"`
	MaxVolume float64 `json:"max_volume"`
}

// Summarize runs the summary query over the archive files matching pattern,
// which may be a single path or a glob.
func Summarize(ctx context.Context, pattern string) (Summary, error) {
	query := strings.ReplaceAll(summaryQuery, "%FILES%", strings.ReplaceAll(pattern, "'", "''"))

	db, err := getDuckDB()
	if err != nil {
		return Summary{}, err
	}
	defer db.Close()

	var s Summary
	if err := db.QueryRowContext(ctx, query).Scan(&s.Nodes, &s.Flooded, &s.MaxVolume); err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", pattern, err)
	}
	return s, nil
}

func getDuckDB() (*sql.DB, error) {
	return sql.Open("duckdb", "")
}
