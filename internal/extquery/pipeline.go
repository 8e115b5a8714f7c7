package extquery

import (
	"context"
	"fmt"

	"github.com/quaypg/pgwire/internal/protocol"
	"github.com/quaypg/pgwire/internal/wireval"
)

var errBusy = fmt.Errorf("extquery: a command is already in flight on this connection")

// Param is a resolved, positionally-ordered parameter ready for binding.
type Param struct {
	Value any
	Tag   wireval.TypeTag
}

// StartReader issues Parse/Bind/Describe/Execute/Sync for sql (already in
// positional $n form) against session and returns a streaming Reader
// positioned before the first row. The caller owns the returned reader and
// must Close it, which also releases the session back to idle.
func StartReader(ctx context.Context, session *protocol.Session, sql string, params []Param) (*protocol.Reader, error) {
	if !session.TryAcquire() {
		return nil, errBusy
	}
	burst, err := buildBurst(sql, params)
	if err != nil {
		session.Release()
		return nil, err
	}
	if err := session.Send(burst); err != nil {
		session.Release()
		return nil, err
	}
	return protocol.NewReader(session, false), nil
}

// ExecuteNonQuery runs sql to completion and returns the server-reported
// affected-row count from CommandComplete (spec.md §4.5: "execute non-query
// consume to ReadyForQuery, return affected rows").
func ExecuteNonQuery(ctx context.Context, session *protocol.Session, sql string, params []Param) (int64, error) {
	if !session.TryAcquire() {
		return 0, errBusy
	}
	defer session.Release()

	burst, err := buildBurst(sql, params)
	if err != nil {
		return 0, err
	}
	if err := session.Send(burst); err != nil {
		return 0, err
	}

	var affected int64
	var pendingErr error
	for {
		msgType, payload, err := session.ReadMessage(ctx)
		if err != nil {
			return 0, err
		}
		switch msgType {
		case protocol.MsgCommandComplete:
			_, affected = protocol.ParseCommandComplete(payload)
			session.Advance(len(payload))
		case protocol.MsgErrorResponse:
			msg := protocol.ParseErrorMessage(payload)
			session.Advance(len(payload))
			pendingErr = &protocol.WireError{Message: msg}
		case protocol.MsgReadyForQuery:
			session.Advance(len(payload))
			return affected, pendingErr
		default:
			session.Advance(len(payload))
		}
	}
}

// ExecuteSimple issues sql over the simple-query path ('Q'), used for
// transaction control (BEGIN/COMMIT/ROLLBACK) where no parameters or
// binary-result negotiation are needed (spec.md §4.5, §6's transaction
// contract). It blocks until ReadyForQuery.
func ExecuteSimple(ctx context.Context, session *protocol.Session, sql string) error {
	if !session.TryAcquire() {
		return errBusy
	}
	defer session.Release()

	if err := session.Send(protocol.BuildSimpleQuery(sql)); err != nil {
		return err
	}

	var pendingErr error
	for {
		msgType, payload, err := session.ReadMessage(ctx)
		if err != nil {
			return err
		}
		switch msgType {
		case protocol.MsgErrorResponse:
			msg := protocol.ParseErrorMessage(payload)
			session.Advance(len(payload))
			pendingErr = &protocol.WireError{Message: msg}
		case protocol.MsgReadyForQuery:
			session.Advance(len(payload))
			return pendingErr
		default:
			session.Advance(len(payload))
		}
	}
}

func buildBurst(sql string, params []Param) ([]byte, error) {
	oids := make([]uint32, len(params))
	encoded := make([]protocol.EncodedParam, len(params))
	for i, p := range params {
		enc, err := wireval.Encode(p.Value, p.Tag)
		if err != nil {
			return nil, err
		}
		oids[i] = enc.OID
		encoded[i] = protocol.EncodedParam{Value: enc.Bytes, IsNull: enc.IsNull}
	}
	return protocol.BuildExtendedQueryBurst(sql, oids, encoded), nil
}
