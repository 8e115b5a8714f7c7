package protocol

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
)

// fakeBackend wraps the server half of a net.Pipe and assembles raw PostgreSQL
// messages, mirroring the hand-rolled fake-server style used in the teacher's
// pool/proxy test suites rather than a mocking framework.
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

func (b *fakeBackend) rowDescription(names []string) {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, uint16(len(names)))
	for _, name := range names {
		body = append(body, name...)
		body = append(body, 0)
		body = binary.BigEndian.AppendUint32(body, 0)
		body = binary.BigEndian.AppendUint16(body, 0)
		body = binary.BigEndian.AppendUint32(body, 25) // text OID
		body = binary.BigEndian.AppendUint16(body, 0)
		body = binary.BigEndian.AppendUint32(body, 0)
		body = binary.BigEndian.AppendUint16(body, uint16(FormatBinary))
	}
	b.send(MsgRowDescription, body)
}

func (b *fakeBackend) dataRow(values []string) {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, uint16(len(values)))
	for _, v := range values {
		body = binary.BigEndian.AppendUint32(body, uint32(int32(len(v))))
		body = append(body, v...)
	}
	b.send(MsgDataRow, body)
}

func (b *fakeBackend) commandComplete(tag string) {
	b.send(MsgCommandComplete, append([]byte(tag), 0))
}

func (b *fakeBackend) readyForQuery() {
	b.send(MsgReadyForQuery, []byte{'I'})
}

func (b *fakeBackend) errorResponse(message string) {
	var body []byte
	body = append(body, 'M')
	body = append(body, message...)
	body = append(body, 0)
	body = append(body, 0)
	b.send(MsgErrorResponse, body)
}

func newPipedSession(t *testing.T) (*Session, *fakeBackend) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	session := &Session{Transport: NewTransport(client)}
	session.MarkOpen(nil, 0, 0)
	session.TryAcquire()
	return session, &fakeBackend{conn: server}
}

func TestReaderStreamsRowsThenCompletes(t *testing.T) {
	session, backend := newPipedSession(t)
	ctx := context.Background()

	go func() {
		backend.rowDescription([]string{"id", "name"})
		backend.dataRow([]string{"1", "alice"})
		backend.dataRow([]string{"2", "bob"})
		backend.commandComplete("SELECT 2")
		backend.readyForQuery()
	}()

	r := NewReader(session, false)
	got := [][2]string{}
	for {
		ok, err := r.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !ok {
			break
		}
		id, _ := r.RawColumn(0)
		name, _ := r.RawColumn(1)
		got = append(got, [2]string{string(id), string(name)})
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(got), got)
	}
	if got[0] != [2]string{"1", "alice"} || got[1] != [2]string{"2", "bob"} {
		t.Fatalf("unexpected rows: %v", got)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReaderSurfacesNullColumns(t *testing.T) {
	session, backend := newPipedSession(t)
	ctx := context.Background()

	go func() {
		backend.rowDescription([]string{"id", "name"})
		b := backend
		var body []byte
		body = binary.BigEndian.AppendUint16(body, 2)
		body = binary.BigEndian.AppendUint32(body, 1)
		body = append(body, '1')
		body = binary.BigEndian.AppendUint32(body, 0xFFFFFFFF) // int32 -1: NULL
		b.send(MsgDataRow, body)
		backend.commandComplete("SELECT 1")
		backend.readyForQuery()
	}()

	r := NewReader(session, false)
	ok, err := r.Read(ctx)
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	_, isNull := r.RawColumn(1)
	if !isNull {
		t.Fatal("expected second column to report NULL")
	}
	r.Close(ctx)
}

func TestReaderReturnsWireErrorOnErrorResponse(t *testing.T) {
	session, backend := newPipedSession(t)
	ctx := context.Background()

	go func() {
		backend.errorResponse("syntax error at or near \"SELCT\"")
		backend.readyForQuery()
	}()

	r := NewReader(session, false)
	ok, err := r.Read(ctx)
	if ok {
		t.Fatal("expected no row on error")
	}
	var wireErr *WireError
	if err == nil {
		t.Fatal("expected a WireError")
	}
	if we, isWire := err.(*WireError); isWire {
		wireErr = we
	} else {
		t.Fatalf("expected *WireError, got %T", err)
	}
	if wireErr.Message != `syntax error at or near "SELCT"` {
		t.Fatalf("unexpected message: %q", wireErr.Message)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close after error should drain cleanly: %v", err)
	}
}

func TestReaderCloseDrainsWhenAbandonedEarly(t *testing.T) {
	session, backend := newPipedSession(t)
	ctx := context.Background()

	go func() {
		backend.rowDescription([]string{"id"})
		backend.dataRow([]string{"1"})
		backend.dataRow([]string{"2"})
		backend.dataRow([]string{"3"})
		backend.commandComplete("SELECT 3")
		backend.readyForQuery()
	}()

	r := NewReader(session, false)
	ok, err := r.Read(ctx)
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}

	// Abandon after the first row; Close must drain to ReadyForQuery so the
	// session is left in a reusable state.
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if session.busy {
		t.Fatal("expected session to be released after Close")
	}
}

func TestReaderNoDataMeansZeroRows(t *testing.T) {
	session, backend := newPipedSession(t)
	ctx := context.Background()

	go func() {
		backend.send(MsgNoData, nil)
		backend.commandComplete("INSERT 0 1")
		backend.readyForQuery()
	}()

	r := NewReader(session, false)
	ok, err := r.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ok {
		t.Fatal("expected no rows after NoData")
	}
}
