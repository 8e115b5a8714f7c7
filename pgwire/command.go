package pgwire

import (
	"context"

	"github.com/quaypg/pgwire/internal/extquery"
)

// Command is a mutable SQL statement bound to a Connection, with an ordered
// parameter collection and optional transaction binding (spec.md §6).
type Command struct {
	conn        *Connection
	CommandText string
	Parameters  ParameterCollection
	transaction *Transaction
}

// SetTransaction binds this command to an active transaction. Purely
// advisory in this library — every command on a Connection already runs
// against that connection's single session — but preserved so callers can
// assert a command belongs to a specific transaction.
func (c *Command) SetTransaction(t *Transaction) {
	c.transaction = t
}

func (c *Command) precheck() error {
	if c.conn == nil || c.conn.session == nil || !c.conn.session.Open() {
		return usageErrorf("connection is not open")
	}
	if c.CommandText == "" {
		return usageErrorf("CommandText is empty")
	}
	return nil
}

func (c *Command) resolve() (string, []extquery.Param, error) {
	sql, names := extquery.Substitute(c.CommandText)
	values := c.Parameters.byName()

	params := make([]extquery.Param, len(names))
	for i, name := range names {
		p, ok := values[name]
		if !ok {
			return "", nil, usageErrorf("parameter %q referenced in CommandText but not supplied", name)
		}
		params[i] = extquery.Param{Value: p.Value, Tag: p.Type.tag()}
	}
	return sql, params, nil
}

// ExecuteNonQuery runs CommandText to completion and returns the
// server-reported affected-row count.
func (c *Command) ExecuteNonQuery(ctx context.Context) (int64, error) {
	if err := c.precheck(); err != nil {
		return 0, err
	}
	sql, params, err := c.resolve()
	if err != nil {
		return 0, err
	}
	n, err := extquery.ExecuteNonQuery(ctx, c.conn.session, sql, params)
	if err != nil {
		return 0, translateQueryErr(err)
	}
	return n, nil
}

// ExecuteScalar runs CommandText and returns the first column of the first
// row, or nil if the result set is empty or that column is NULL.
func (c *Command) ExecuteScalar(ctx context.Context) (any, error) {
	rows, err := c.ExecuteReader(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close(ctx)

	ok, err := rows.Next(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || rows.ColumnCount() == 0 {
		return nil, nil
	}
	return rows.Value(0)
}

// ExecuteReader runs CommandText and returns a live streaming Rows cursor.
func (c *Command) ExecuteReader(ctx context.Context) (*Rows, error) {
	if err := c.precheck(); err != nil {
		return nil, err
	}
	sql, params, err := c.resolve()
	if err != nil {
		return nil, err
	}
	reader, err := extquery.StartReader(ctx, c.conn.session, sql, params)
	if err != nil {
		return nil, translateQueryErr(err)
	}
	return newRows(reader), nil
}
