package pgwire

import (
	"context"

	"github.com/quaypg/pgwire/internal/extquery"
)

// Transaction is a thin wrapper issuing BEGIN/COMMIT/ROLLBACK over the
// simple-query path (spec.md §1, §6). Commit and Rollback are one-shot;
// a second invocation fails.
type Transaction struct {
	conn *Connection
	done bool
}

// Commit issues COMMIT. Calling Commit or Rollback a second time fails.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return usageErrorf("transaction has already been committed or rolled back")
	}
	if err := extquery.ExecuteSimple(ctx, t.conn.session, "COMMIT"); err != nil {
		return translateQueryErr(err)
	}
	t.done = true
	t.conn.txn = nil
	return nil
}

// Rollback issues ROLLBACK. Calling Commit or Rollback a second time fails.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.done {
		return usageErrorf("transaction has already been committed or rolled back")
	}
	if err := extquery.ExecuteSimple(ctx, t.conn.session, "ROLLBACK"); err != nil {
		return translateQueryErr(err)
	}
	t.done = true
	t.conn.txn = nil
	return nil
}

// Close rolls back the transaction if it is still open, suppressing any
// error (spec.md §6: "disposal rolls back if still open, best-effort,
// exceptions suppressed"). Safe to call after an explicit Commit/Rollback.
func (t *Transaction) Close(ctx context.Context) {
	if t.done {
		return
	}
	t.Rollback(ctx)
}
