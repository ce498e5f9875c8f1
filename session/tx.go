package session

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/errors"
	"github.com/tebben/qkanhe/fields"
)

// Tx is the transaction of one block. Statements are identified in errors
// by the block name and the step number given by the caller.
type Tx struct {
	tx     *sql.Tx
	block  string
	rebind func(string) string
}

func (t *Tx) label(step int) string {
	return fmt.Sprintf("%s (%d)", t.block, step)
}

// Exec runs st and returns the number of affected rows.
func (t *Tx) Exec(ctx context.Context, step int, st fields.Statement) (int64, error) {
	log.Debugf("%s: %s", t.label(step), st.Render())

	res, err := t.tx.ExecContext(ctx, t.rebind(st.SQL), st.Args()...)
	if err != nil {
		return 0, errors.NewStatementError(t.label(step), st.Render(), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewStatementError(t.label(step), st.Render(), err)
	}
	return n, nil
}

// Query runs a select inside the transaction. The caller closes the rows
// before issuing the next statement.
func (t *Tx) Query(ctx context.Context, step int, st fields.Statement) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, t.rebind(st.SQL), st.Args()...)
	if err != nil {
		return nil, errors.NewStatementError(t.label(step), st.Render(), err)
	}
	return rows, nil
}

// QueryRow scans a single row. sql.ErrNoRows is returned unwrapped.
func (t *Tx) QueryRow(ctx context.Context, step int, st fields.Statement, dest ...interface{}) error {
	err := t.tx.QueryRowContext(ctx, t.rebind(st.SQL), st.Args()...).Scan(dest...)
	if err == nil || err == sql.ErrNoRows {
		return err
	}
	return errors.NewStatementError(t.label(step), st.Render(), err)
}

// ExecContext lets the ID allocator commit inside the block.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.rebind(query), args...)
}

func identity(q string) string { return q }

// block runs fn inside a transaction on db. fn's error or a failed commit
// rolls the block back.
func block(ctx context.Context, db *sql.DB, name string, rebind func(string) string, fn func(*Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStatementError(name+" (begin)", "BEGIN", err)
	}

	tx := &Tx{tx: sqlTx, block: name, rebind: rebind}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			log.Errorf("%s: rollback failed: %v", name, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.NewStatementError(name+" (commit)", "COMMIT", err)
	}
	return nil
}
