// Package pgwire is the public, ADO-style façade over the PostgreSQL v3 wire
// protocol engine in internal/protocol, internal/auth, internal/wireval, and
// internal/extquery (spec.md §6). It exposes a flat, capability-based
// surface — Connection, Command, Transaction, ParameterCollection, Rows —
// rather than the class hierarchy the original source inherits from
// (spec.md §9).
package pgwire

import (
	"context"
	"errors"
	"fmt"

	"github.com/quaypg/pgwire/internal/auth"
	"github.com/quaypg/pgwire/internal/dsn"
	"github.com/quaypg/pgwire/internal/extquery"
	"github.com/quaypg/pgwire/internal/metrics"
	"github.com/quaypg/pgwire/internal/protocol"
)

// IsolationLevel names a SQL transaction isolation level (spec.md §6).
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	ReadUncommitted
	RepeatableRead
	Serializable
)

func (l IsolationLevel) clause() string {
	switch l {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// Connection owns one authenticated session. It is not safe for concurrent
// use: at most one Command or Transaction is active at a time (spec.md §3,
// §5).
type Connection struct {
	connStr string
	session *protocol.Session
	txn     *Transaction

	metrics *metrics.Collector
	label   string
}

// NewConnection returns an unopened Connection for connStr (spec.md §6's
// semicolon-separated key=value format). connStr is parsed when Open is
// called.
func NewConnection(connStr string) *Connection {
	return &Connection{connStr: connStr}
}

// WithMetrics attaches a metrics collector and a connection label used to
// tag auth outcomes, wire throughput, and reader lifecycle events recorded
// while this connection is open. Call before Open.
func (c *Connection) WithMetrics(m *metrics.Collector, label string) *Connection {
	c.metrics = m
	c.label = label
	return c
}

// Open dials the server and drives authentication to completion. Calling
// Open on an already-open Connection is a usage error.
func (c *Connection) Open(ctx context.Context) error {
	if c.session != nil && c.session.Open() {
		return usageErrorf("connection is already open")
	}
	info := dsn.Parse(c.connStr)

	session, err := protocol.Dial(ctx, "tcp", info.Addr())
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	session.Transport.SetMetrics(c.metrics, c.label)
	if err := auth.Authenticate(ctx, session, info.Username, info.Password, info.Database); err != nil {
		session.Close()
		return translateAuthErr(err)
	}
	c.session = session
	return nil
}

// Close terminates the session. Idempotent.
func (c *Connection) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	if err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

// ChangeDatabase is unsupported (spec.md §6) and always fails.
func (c *Connection) ChangeDatabase(ctx context.Context, name string) error {
	return usageErrorf("ChangeDatabase is not supported")
}

// CreateCommand returns a new Command bound to this Connection with an empty
// CommandText.
func (c *Connection) CreateCommand() *Command {
	return &Command{conn: c}
}

// BeginTransaction emits "BEGIN ISOLATION LEVEL <clause>" via the
// simple-query path and returns a transaction handle. Only one transaction
// may be active per connection at a time (spec.md §6).
func (c *Connection) BeginTransaction(ctx context.Context, level IsolationLevel) (*Transaction, error) {
	if c.session == nil || !c.session.Open() {
		return nil, usageErrorf("connection is not open")
	}
	if c.txn != nil {
		return nil, usageErrorf("a transaction is already active on this connection")
	}
	sql := fmt.Sprintf("BEGIN ISOLATION LEVEL %s", level.clause())
	if err := extquery.ExecuteSimple(ctx, c.session, sql); err != nil {
		return nil, translateQueryErr(err)
	}
	t := &Transaction{conn: c}
	c.txn = t
	return t, nil
}

func translateAuthErr(err error) error {
	var te *protocol.TransportError
	if errors.As(err, &te) {
		return &TransportError{Op: "authenticate", Err: err}
	}
	switch err.(type) {
	case *auth.Failure, *auth.ProtocolError:
		return &AuthenticationError{Err: err}
	default:
		return &AuthenticationError{Err: err}
	}
}

func translateQueryErr(err error) error {
	var te *protocol.TransportError
	if errors.As(err, &te) {
		return &TransportError{Op: "query", Err: err}
	}
	if we, ok := err.(*protocol.WireError); ok {
		return &ServerError{Message: we.Message}
	}
	return &ProtocolError{Err: err}
}
