package auth

import "fmt"

// ProtocolError signals an unexpected message tag or malformed framing seen
// during the authentication handshake.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return e.msg }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

// Failure carries a server-reported ErrorResponse (or a locally-detected
// SCRAM verification failure) encountered during startup/authentication.
type Failure struct {
	msg string
}

func (e *Failure) Error() string { return e.msg }

func failuref(format string, args ...any) error {
	return &Failure{msg: fmt.Sprintf(format, args...)}
}
