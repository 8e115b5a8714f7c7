package extquery

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/quaypg/pgwire/internal/protocol"
)

// fakeBackend assembles raw PostgreSQL messages on the server half of a
// net.Pipe, in the same hand-rolled style used for the protocol package's own
// reader tests rather than a mocking framework.
type fakeBackend struct {
	conn net.Conn
}

func (b *fakeBackend) send(msgType byte, body []byte) {
	buf := make([]byte, 1+4+len(body))
	buf[0] = msgType
	binary.BigEndian.PutUint32(buf[1:5], uint32(4+len(body)))
	copy(buf[5:], body)
	b.conn.Write(buf)
}

func (b *fakeBackend) parseComplete()  { b.send(protocol.MsgParseComplete, nil) }
func (b *fakeBackend) bindComplete()   { b.send(protocol.MsgBindComplete, nil) }
func (b *fakeBackend) readyForQuery()  { b.send(protocol.MsgReadyForQuery, []byte{'I'}) }
func (b *fakeBackend) commandComplete(tag string) {
	b.send(protocol.MsgCommandComplete, append([]byte(tag), 0))
}
func (b *fakeBackend) errorResponse(msg string) {
	body := append([]byte{'M'}, append([]byte(msg), 0, 0)...)
	b.send(protocol.MsgErrorResponse, body)
}

func newPipedSession(t *testing.T) (*protocol.Session, *fakeBackend) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	// net.Pipe is unbuffered: consume whatever the client sends so its writes
	// never block; these tests script only the server's replies.
	go io.Copy(io.Discard, server)
	session := &protocol.Session{Transport: protocol.NewTransport(client)}
	session.MarkOpen(nil, 0, 0)
	return session, &fakeBackend{conn: server}
}

func TestExecuteNonQueryReturnsAffectedRows(t *testing.T) {
	session, backend := newPipedSession(t)
	ctx := context.Background()

	go func() {
		backend.parseComplete()
		backend.bindComplete()
		backend.commandComplete("UPDATE 3")
		backend.readyForQuery()
	}()

	n, err := ExecuteNonQuery(ctx, session, "UPDATE users SET active = $1", []Param{{Value: true}})
	if err != nil {
		t.Fatalf("ExecuteNonQuery: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 affected rows, got %d", n)
	}
}

func TestExecuteNonQuerySurfacesServerError(t *testing.T) {
	session, backend := newPipedSession(t)
	ctx := context.Background()

	go func() {
		backend.errorResponse("division by zero")
		backend.readyForQuery()
	}()

	_, err := ExecuteNonQuery(ctx, session, "SELECT 1/0", nil)
	if err == nil {
		t.Fatal("expected a server error")
	}
	if _, ok := err.(*protocol.WireError); !ok {
		t.Fatalf("expected *protocol.WireError, got %T", err)
	}
}

func TestExecuteSimpleBlocksUntilReadyForQuery(t *testing.T) {
	session, backend := newPipedSession(t)
	ctx := context.Background()

	go func() {
		backend.commandComplete("BEGIN")
		backend.readyForQuery()
	}()

	if err := ExecuteSimple(ctx, session, "BEGIN"); err != nil {
		t.Fatalf("ExecuteSimple: %v", err)
	}
}

func TestStartReaderReturnsUsableReader(t *testing.T) {
	session, backend := newPipedSession(t)
	ctx := context.Background()

	go func() {
		backend.parseComplete()
		backend.bindComplete()

		var rowDesc []byte
		rowDesc = binary.BigEndian.AppendUint16(rowDesc, 1)
		rowDesc = append(rowDesc, "id"...)
		rowDesc = append(rowDesc, 0)
		rowDesc = binary.BigEndian.AppendUint32(rowDesc, 0)
		rowDesc = binary.BigEndian.AppendUint16(rowDesc, 0)
		rowDesc = binary.BigEndian.AppendUint32(rowDesc, 23)
		rowDesc = binary.BigEndian.AppendUint16(rowDesc, 0)
		rowDesc = binary.BigEndian.AppendUint32(rowDesc, 0)
		rowDesc = binary.BigEndian.AppendUint16(rowDesc, uint16(protocol.FormatBinary))
		backend.send(protocol.MsgRowDescription, rowDesc)

		var row []byte
		row = binary.BigEndian.AppendUint16(row, 1)
		row = binary.BigEndian.AppendUint32(row, 4)
		row = binary.BigEndian.AppendUint32(row, 1)
		backend.send(protocol.MsgDataRow, row)

		backend.commandComplete("SELECT 1")
		backend.readyForQuery()
	}()

	reader, err := StartReader(ctx, session, "SELECT id FROM t WHERE id = $1", []Param{{Value: int64(1)}})
	if err != nil {
		t.Fatalf("StartReader: %v", err)
	}
	ok, err := reader.Read(ctx)
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	if err := reader.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPipelineRejectsConcurrentCommandsOnOneSession(t *testing.T) {
	session, _ := newPipedSession(t)
	ctx := context.Background()

	if !session.TryAcquire() {
		t.Fatal("expected first acquire to succeed")
	}
	defer session.Release()

	if _, err := ExecuteNonQuery(ctx, session, "SELECT 1", nil); err != errBusy {
		t.Fatalf("expected errBusy while a command is already in flight, got %v", err)
	}
	if _, err := StartReader(ctx, session, "SELECT 1", nil); err != errBusy {
		t.Fatalf("expected errBusy for StartReader too, got %v", err)
	}
	if err := ExecuteSimple(ctx, session, "BEGIN"); err != errBusy {
		t.Fatalf("expected errBusy for ExecuteSimple too, got %v", err)
	}
}
