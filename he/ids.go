package he

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	readProgInfo   = `SELECT NEXTID, VERSION FROM "ITWH$PROGINFO"`
	updateProgInfo = `UPDATE "ITWH$PROGINFO" SET NEXTID = ?`
)

type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// IDAllocator hands out the database wide row IDs of an HE database. Every
// call to Next consumes a value, whether or not the row is written.
type IDAllocator struct {
	next int64
}

// LoadIDs reads the control row and returns an allocator starting above the
// stored counter together with the schema version. A missing row or NULL
// counter is an error.
func LoadIDs(ctx context.Context, q Querier) (*IDAllocator, Version, error) {
	var nextID sql.NullInt64
	var version sql.NullString
	if err := q.QueryRowContext(ctx, readProgInfo).Scan(&nextID, &version); err != nil {
		return nil, Version{}, fmt.Errorf("read ITWH$PROGINFO: %w", err)
	}
	if !nextID.Valid {
		return nil, Version{}, fmt.Errorf("read ITWH$PROGINFO: NEXTID is NULL")
	}

	v, err := ParseVersion(version.String)
	if err != nil {
		return nil, Version{}, err
	}

	return &IDAllocator{next: nextID.Int64 + 1}, v, nil
}

// Next returns a fresh ID.
func (a *IDAllocator) Next() int64 {
	id := a.next
	a.next++
	return id
}

// Peek returns the value Next would return without consuming it.
func (a *IDAllocator) Peek() int64 {
	return a.next
}

// Commit stores the counter so a later pass continues above every ID handed
// out so far.
func (a *IDAllocator) Commit(ctx context.Context, ex Execer) error {
	if _, err := ex.ExecContext(ctx, updateProgInfo, a.next); err != nil {
		return fmt.Errorf("update ITWH$PROGINFO: %w", err)
	}
	return nil
}
