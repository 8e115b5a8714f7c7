package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
)

// Session owns one TCP connection, its framed transport, and the
// open/closed lifecycle gate. It is created closed, transitions to open
// after the first ReadyForQuery following authentication, and transitions to
// closed on Terminate or a fatal I/O error. A Session is not safe for
// concurrent use — the wire protocol is half-duplex by convention, and at
// most one command may be in flight at a time (spec.md §3, invariant iii).
type Session struct {
	Transport *Transport

	open bool
	busy bool

	// ServerParams/BackendPID/BackendKey are populated once authentication
	// completes (spec.md §4.3): ParameterStatus and BackendKeyData messages
	// received during startup.
	ServerParams map[string]string
	BackendPID   uint32
	BackendKey   uint32
}

// Dial opens a TCP connection and wraps it as a new (not-yet-authenticated)
// Session. The caller must still drive authentication (internal/auth) before
// the session is usable.
func Dial(ctx context.Context, network, addr string) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("protocol: dial %s: %w", addr, err)
	}
	return &Session{Transport: NewTransport(conn)}, nil
}

// MarkOpen transitions the session to open; called once authentication
// culminates in the first ReadyForQuery.
func (s *Session) MarkOpen(params map[string]string, pid, key uint32) {
	s.open = true
	s.ServerParams = params
	s.BackendPID = pid
	s.BackendKey = key
}

// Open reports whether the session has completed authentication and is not
// yet closed.
func (s *Session) Open() bool {
	return s.open && !s.Transport.Closed()
}

// TryAcquire marks the session busy for the duration of one command/reader
// lifecycle, enforcing the single-request-in-flight invariant. It returns
// false if a command is already in flight.
func (s *Session) TryAcquire() bool {
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// Release clears the busy flag once the in-flight command's ReadyForQuery
// has been consumed.
func (s *Session) Release() {
	s.busy = false
}

// Close sends Terminate (best-effort) and closes the socket. Idempotent.
func (s *Session) Close() error {
	s.open = false
	return s.Transport.Close()
}

// ReadMessage reads one whole backend message using the transport's inline,
// zero-copy demultiplex path. The returned payload aliases the transport's
// receive buffer and is valid only until the caller invokes Advance or reads
// the next message.
func (s *Session) ReadMessage(ctx context.Context) (msgType byte, payload []byte, err error) {
	if err := s.Transport.EnsureBuffered(ctx, 5); err != nil {
		return 0, nil, err
	}
	header := s.Transport.Unconsumed()[:5]
	msgType = header[0]
	payloadLen := int(binary.BigEndian.Uint32(header[1:5])) - 4
	if payloadLen < 0 {
		return 0, nil, fmt.Errorf("protocol: invalid message length for %q", msgType)
	}
	if err := s.Transport.EnsureBuffered(ctx, 5+payloadLen); err != nil {
		return 0, nil, err
	}
	// EnsureBuffered may have shifted or reallocated the buffer; re-fetch
	// the header-relative view before advancing past it.
	s.Transport.Advance(5)
	payload = s.Transport.Unconsumed()[:payloadLen]
	return msgType, payload, nil
}

// Advance consumes the current message's payload from the receive buffer.
// Callers of ReadMessage must call this once done with the returned payload
// (typed accessors that copy out of it do so before calling Advance).
func (s *Session) Advance(payloadLen int) {
	s.Transport.Advance(payloadLen)
}

// ConsumeMessageOwned reads one whole message and copies its payload into a
// freshly allocated buffer, immediately advancing past it. The copy is a
// plain make, not a bufpool rental: the returned slice must outlive an
// unbounded number of subsequent reads on the shared receive buffer (e.g.
// across a multi-round SCRAM exchange), with no single point at which it
// could be returned to a pool.
func (s *Session) ConsumeMessageOwned(ctx context.Context) (msgType byte, payload []byte, err error) {
	msgType, borrowed, err := s.ReadMessage(ctx)
	if err != nil {
		return 0, nil, err
	}
	owned := make([]byte, len(borrowed))
	copy(owned, borrowed)
	s.Advance(len(borrowed))
	return msgType, owned, nil
}

// Send writes a pre-built message (or concatenated burst) to the socket.
func (s *Session) Send(msg []byte) error {
	return s.Transport.Send(msg)
}
