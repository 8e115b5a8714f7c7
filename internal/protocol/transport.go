// Package protocol implements the byte-level PostgreSQL v3 wire protocol: a
// framed duplex transport over a TCP socket, frontend message construction,
// backend message parsing, the session lifecycle, and the streaming row
// reader. It is intentionally unaware of SQL semantics or parameter
// substitution — those live in internal/extquery — and unaware of
// authentication mechanics — those live in internal/auth.
package protocol

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/quaypg/pgwire/internal/bufpool"
	"github.com/quaypg/pgwire/internal/metrics"
)

const (
	initialSendBufSize = 8 * 1024
	initialRecvBufSize = 64 * 1024
)

// TransportError wraps a socket-level failure — connection refused, reset,
// or closed mid-read/write, including a context cancellation that forced the
// connection shut — as distinct from a protocol framing error produced above
// this layer. Callers can distinguish the two with errors.As.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("protocol: transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Transport is a buffered duplex byte stream over a single TCP connection. It
// guarantees whole-message delivery to its consumers: a caller that asks
// EnsureBuffered for n bytes either gets them or gets a terminal error.
//
// Invariant: 0 <= pos <= len <= cap(recvBuf); bytes in recvBuf[pos:len] are
// unconsumed and have already been read off the wire.
type Transport struct {
	conn net.Conn

	sendBuf []byte

	recvBuf  []byte
	pos, len int

	closed bool

	metrics   *metrics.Collector
	connLabel string
}

// NewTransport wraps conn with the framed read/write buffers.
func NewTransport(conn net.Conn) *Transport {
	return &Transport{
		conn:    conn,
		sendBuf: make([]byte, 0, initialSendBufSize),
		recvBuf: make([]byte, initialRecvBufSize),
	}
}

// SetMetrics attaches a metrics collector and connection label, used to
// record wire throughput (and consulted by internal/auth and the reader for
// auth outcomes and row-streaming counters keyed off the same session).
func (t *Transport) SetMetrics(m *metrics.Collector, connection string) {
	t.metrics = m
	t.connLabel = connection
}

// Metrics returns the attached collector and connection label, or a nil
// collector if none was set.
func (t *Transport) Metrics() (*metrics.Collector, string) {
	return t.metrics, t.connLabel
}

// Unconsumed returns the bytes currently buffered and not yet consumed. The
// slice aliases the transport's internal buffer and is only valid until the
// next EnsureBuffered/Advance call.
func (t *Transport) Unconsumed() []byte {
	return t.recvBuf[t.pos:t.len]
}

// Advance consumes n bytes from the front of the unconsumed window.
func (t *Transport) Advance(n int) {
	t.pos += n
	if t.pos > t.len {
		panic("protocol: Advance past buffered data")
	}
}

// EnsureBuffered guarantees the unconsumed window holds at least n bytes,
// reading from the socket as needed. Each socket read fills as much of the
// free tail space as the socket returns, so more than n bytes may end up
// buffered; once n is satisfied, one final opportunistic, non-blocking read
// drains whatever the kernel already has queued (so the next call is more
// likely to be satisfied without a syscall).
func (t *Transport) EnsureBuffered(ctx context.Context, n int) error {
	if t.closed {
		return &TransportError{Err: fmt.Errorf("protocol: transport closed")}
	}
	if t.len-t.pos >= n {
		return nil
	}

	unconsumed := t.len - t.pos
	capacity := cap(t.recvBuf)

	switch {
	case capacity-t.pos >= n:
		// Free tail space (after pos) already covers the target; no move needed.
	case capacity >= n:
		// Shifting the unconsumed window to offset 0 frees enough tail space.
		copy(t.recvBuf[0:unconsumed], t.recvBuf[t.pos:t.len])
		t.pos = 0
		t.len = unconsumed
	default:
		newCap := capacity * 2
		if newCap < n {
			newCap = n
		}
		newBuf := make([]byte, newCap)
		copy(newBuf[0:unconsumed], t.recvBuf[t.pos:t.len])
		t.recvBuf = newBuf
		t.pos = 0
		t.len = unconsumed
	}

	for t.len-t.pos < n {
		readInto := t.recvBuf[t.len:cap(t.recvBuf)]
		nRead, err := t.readWithContext(ctx, readInto)
		if nRead > 0 {
			t.len += nRead
			if t.metrics != nil {
				t.metrics.BytesReceived(t.connLabel, nRead)
			}
		}
		if err != nil {
			t.closed = true
			return &TransportError{Err: err}
		}
		if nRead == 0 {
			t.closed = true
			return &TransportError{Err: fmt.Errorf("protocol: connection closed")}
		}
	}

	t.opportunisticFill()
	return nil
}

// opportunisticFill performs a single non-blocking read into any remaining
// free tail space, to reduce syscalls on the next EnsureBuffered call. Errors
// (including timeouts, which are the expected "nothing pending" outcome) are
// swallowed; they will resurface on the next real read if they indicate a
// genuine problem.
func (t *Transport) opportunisticFill() {
	free := t.recvBuf[t.len:cap(t.recvBuf)]
	if len(free) == 0 {
		return
	}
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		return
	}
	n, _ := t.conn.Read(free)
	t.conn.SetReadDeadline(time.Time{})
	if n > 0 {
		t.len += n
		if t.metrics != nil {
			t.metrics.BytesReceived(t.connLabel, n)
		}
	}
}

// readWithContext performs a blocking Read that aborts when ctx is done. A
// cancellation forcibly closes the underlying connection — the session is
// left in an indeterminate protocol state and must not be reused.
func (t *Transport) readWithContext(ctx context.Context, buf []byte) (int, error) {
	if ctx.Done() == nil {
		return t.conn.Read(buf)
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := t.conn.Read(buf)
		done <- result{n, err}
	}()

	select {
	case <-ctx.Done():
		t.conn.Close()
		<-done
		return 0, ctx.Err()
	case r := <-done:
		return r.n, r.err
	}
}

// Send writes bytes to the socket in one call. Small payloads reuse the
// transport's write buffer; larger ones rent a scratch buffer from the
// shared pool.
func (t *Transport) Send(payload []byte) error {
	if t.closed {
		return &TransportError{Err: fmt.Errorf("protocol: transport closed")}
	}
	if len(payload) <= cap(t.sendBuf) {
		t.sendBuf = t.sendBuf[:len(payload)]
		copy(t.sendBuf, payload)
		if _, err := t.conn.Write(t.sendBuf); err != nil {
			return &TransportError{Err: err}
		}
		if t.metrics != nil {
			t.metrics.BytesSent(t.connLabel, len(payload))
		}
		return nil
	}

	scratch := bufpool.Get(len(payload))
	defer bufpool.Put(scratch)
	copy(scratch, payload)
	if _, err := t.conn.Write(scratch); err != nil {
		return &TransportError{Err: err}
	}
	if t.metrics != nil {
		t.metrics.BytesSent(t.connLabel, len(payload))
	}
	return nil
}

// Close best-effort emits Terminate and closes the socket. Safe to call
// multiple times.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	// Terminate: type 'X', length 4 (no payload beyond the length itself).
	t.conn.Write([]byte{'X', 0, 0, 0, 4})
	return t.conn.Close()
}

// Closed reports whether the transport has been torn down.
func (t *Transport) Closed() bool {
	return t.closed
}
