package protocol

import "context"

type readerState int

const (
	stateInitial readerState = iota
	stateDescribed
	stateRow
	stateCompleted
	stateClosed
)

// Reader is the forward-only streaming cursor over one Extended Query's
// response stream (spec.md §4.6). It demultiplexes RowDescription/DataRow/
// CommandComplete/ReadyForQuery/ErrorResponse, exposing column metadata and
// zero-copy access to the current row.
//
// A row view returned by RawColumn is only valid until the next call to
// Read; typed accessors in the pgwire package copy out of it eagerly.
type Reader struct {
	session *Session
	state   readerState

	columns []ColumnDescriptor
	row     []ColumnSlice
	rowBuf  []byte

	pendingAdvance int

	closeSessionOnClose bool
}

// NewReader creates a reader bound to session. closeSessionOnClose mirrors
// spec.md's "close-connection hint": if true, Close also closes the session.
func NewReader(session *Session, closeSessionOnClose bool) *Reader {
	return &Reader{session: session, closeSessionOnClose: closeSessionOnClose}
}

// Columns returns the most recently seen RowDescription's column metadata.
// Valid until the reader is closed or a subsequent RowDescription arrives
// (Extended Query never sends more than one per reader, since this library
// only ever issues a single statement per burst).
func (r *Reader) Columns() []ColumnDescriptor {
	return r.columns
}

// Read advances to the next row. It returns true when positioned on a new
// DataRow, false once ReadyForQuery has been observed (the terminal state
// for this reader). A non-nil error means the server reported ErrorResponse;
// the caller should still Close to drain the connection back to a usable
// state.
func (r *Reader) Read(ctx context.Context) (bool, error) {
	if r.state == stateClosed || r.state == stateCompleted {
		return false, nil
	}
	if r.pendingAdvance > 0 {
		r.session.Advance(r.pendingAdvance)
		r.pendingAdvance = 0
	}

	for {
		msgType, payload, err := r.session.ReadMessage(ctx)
		if err != nil {
			return false, err
		}

		switch msgType {
		case MsgParseComplete, MsgBindComplete, MsgNoData, MsgNoticeResponse:
			r.session.Advance(len(payload))
			continue

		case MsgRowDescription:
			cols, perr := ParseRowDescription(payload)
			r.session.Advance(len(payload))
			if perr != nil {
				return false, perr
			}
			r.columns = cols
			r.state = stateDescribed
			continue

		case MsgDataRow:
			row, perr := ParseDataRow(payload)
			if perr != nil {
				r.session.Advance(len(payload))
				return false, perr
			}
			r.row = row
			r.rowBuf = payload
			r.pendingAdvance = len(payload)
			r.state = stateRow
			if m, label := r.session.Transport.Metrics(); m != nil {
				m.RowsStreamed(label, 1)
			}
			return true, nil

		case MsgCommandComplete:
			r.session.Advance(len(payload))
			continue

		case MsgReadyForQuery:
			r.session.Advance(len(payload))
			r.state = stateCompleted
			return false, nil

		case MsgErrorResponse:
			msg := ParseErrorMessage(payload)
			r.session.Advance(len(payload))
			return false, &WireError{Message: msg}
		}

		// Any other tag is skipped.
		r.session.Advance(len(payload))
	}
}

// ColumnCount returns the number of columns in the current row set.
func (r *Reader) ColumnCount() int {
	return len(r.columns)
}

// RawColumn returns the current row's raw bytes for column i and whether it
// is SQL NULL. The returned slice aliases the reader's internal buffer and
// must not be retained past the next Read call.
func (r *Reader) RawColumn(i int) (data []byte, isNull bool) {
	cs := r.row[i]
	if cs.Length < 0 {
		return nil, true
	}
	return r.rowBuf[cs.Offset : cs.Offset+cs.Length], false
}

// AffectedRows always reports -1 on the streaming reader: real affected-row
// counts surface only through Command.ExecuteNonQuery (spec.md's "possibly
// buggy" RecordsAffected semantic, preserved deliberately — see DESIGN.md).
func (r *Reader) AffectedRows() int64 {
	return -1
}

// Close drains any remaining messages to ReadyForQuery (ignoring
// intermediate errors — the request is already being abandoned) if the
// reader was not already fully consumed, then releases the session.
// Idempotent.
func (r *Reader) Close(ctx context.Context) error {
	if r.state == stateClosed {
		return nil
	}
	if r.state != stateCompleted {
		if m, label := r.session.Transport.Metrics(); m != nil {
			m.ReaderDrained(label)
		}
		if r.pendingAdvance > 0 {
			r.session.Advance(r.pendingAdvance)
			r.pendingAdvance = 0
		}
		for {
			msgType, payload, err := r.session.ReadMessage(ctx)
			if err != nil {
				break
			}
			r.session.Advance(len(payload))
			if msgType == MsgReadyForQuery {
				break
			}
		}
	}
	r.state = stateClosed
	r.session.Release()
	if r.closeSessionOnClose {
		return r.session.Close()
	}
	return nil
}

// WireError carries a server-reported ErrorResponse's human message
// verbatim (spec.md §7's ServerError kind). It is re-wrapped as
// pgwire.ServerError at the public API boundary.
type WireError struct {
	Message string
}

func (e *WireError) Error() string {
	return e.Message
}
