package pgwire

import "fmt"

// TransportError wraps a socket-level failure: connection refused, a
// zero-length read, or any other I/O error on the underlying TCP stream
// (spec.md §7). The session is unusable once this surfaces.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("pgwire: transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError wraps an unexpected message tag or malformed framing seen
// outside of authentication (spec.md §7). The session is unusable once this
// surfaces.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("pgwire: protocol: %v", e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthenticationError wraps a failure during startup: a server-reported
// ErrorResponse, an unsupported authentication subtype, or a SCRAM failure
// (spec.md §7). The session is unusable once this surfaces.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string { return fmt.Sprintf("pgwire: authentication: %v", e.Err) }
func (e *AuthenticationError) Unwrap() error { return e.Err }

// ServerError carries an ErrorResponse's 'M' field verbatim, received during
// query execution (spec.md §7). Unlike the other kinds, the session remains
// usable afterward — the triggering ReadyForQuery has already been consumed.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return fmt.Sprintf("pgwire: server error: %s", e.Message) }

// UsageError signals a caller mistake: no connection, a connection that
// isn't open, empty CommandText, a referenced-but-missing named parameter,
// or an unsupported operation (spec.md §7, e.g. ChangeDatabase).
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return fmt.Sprintf("pgwire: usage: %s", e.Msg) }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// CastError signals that a typed accessor was called on a NULL column
// (spec.md §7). Callers should guard with Rows.IsNull first.
type CastError struct {
	Column string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("pgwire: cast error: column %q is NULL", e.Column)
}
