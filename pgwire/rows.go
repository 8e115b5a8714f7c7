package pgwire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quaypg/pgwire/internal/protocol"
	"github.com/quaypg/pgwire/internal/wireval"
)

// Rows is the public streaming cursor returned by Command.ExecuteReader,
// wrapping internal/protocol.Reader with typed, copy-on-access column
// accessors (spec.md §4.6, §9's "typed accessors materialize copies").
type Rows struct {
	reader *protocol.Reader
}

func newRows(r *protocol.Reader) *Rows {
	return &Rows{reader: r}
}

// Next advances to the next row. It returns false once the server has sent
// ReadyForQuery; a non-nil error means the server reported ErrorResponse,
// wrapped as ServerError, and the caller should still Close.
func (r *Rows) Next(ctx context.Context) (bool, error) {
	ok, err := r.reader.Read(ctx)
	if err != nil {
		return false, wrapReaderErr(err)
	}
	return ok, nil
}

// ColumnCount returns the number of columns in the current result set.
func (r *Rows) ColumnCount() int {
	return r.reader.ColumnCount()
}

// ColumnName returns the name of column i from the most recent
// RowDescription.
func (r *Rows) ColumnName(i int) string {
	return r.reader.Columns()[i].Name
}

// IsNull reports whether column i of the current row is SQL NULL.
func (r *Rows) IsNull(i int) bool {
	_, isNull := r.reader.RawColumn(i)
	return isNull
}

// AffectedRows always reports -1 on a streaming Rows value; the server's
// affected-row count surfaces only through Command.ExecuteNonQuery
// (spec.md §9, preserved deliberately).
func (r *Rows) AffectedRows() int64 {
	return r.reader.AffectedRows()
}

// Close drains any remaining server messages and releases the connection
// for the next command. Idempotent.
func (r *Rows) Close(ctx context.Context) error {
	return r.reader.Close(ctx)
}

func (r *Rows) column(i int) (raw []byte, name string, err error) {
	raw, isNull := r.reader.RawColumn(i)
	name = r.reader.Columns()[i].Name
	if isNull {
		return nil, name, &CastError{Column: name}
	}
	return raw, name, nil
}

// GetInt16 decodes column i as int2.
func (r *Rows) GetInt16(i int) (int16, error) {
	raw, name, err := r.column(i)
	if err != nil {
		return 0, err
	}
	v, derr := wireval.DecodeInt16(raw)
	if derr != nil {
		return 0, &ProtocolError{Err: fmt.Errorf("column %q: %w", name, derr)}
	}
	return v, nil
}

// GetInt32 decodes column i as int4.
func (r *Rows) GetInt32(i int) (int32, error) {
	raw, name, err := r.column(i)
	if err != nil {
		return 0, err
	}
	v, derr := wireval.DecodeInt32(raw)
	if derr != nil {
		return 0, &ProtocolError{Err: fmt.Errorf("column %q: %w", name, derr)}
	}
	return v, nil
}

// GetInt64 decodes column i as int8.
func (r *Rows) GetInt64(i int) (int64, error) {
	raw, name, err := r.column(i)
	if err != nil {
		return 0, err
	}
	v, derr := wireval.DecodeInt64(raw)
	if derr != nil {
		return 0, &ProtocolError{Err: fmt.Errorf("column %q: %w", name, derr)}
	}
	return v, nil
}

// GetSingle decodes column i as float4.
func (r *Rows) GetSingle(i int) (float32, error) {
	raw, name, err := r.column(i)
	if err != nil {
		return 0, err
	}
	v, derr := wireval.DecodeFloat32(raw)
	if derr != nil {
		return 0, &ProtocolError{Err: fmt.Errorf("column %q: %w", name, derr)}
	}
	return v, nil
}

// GetDouble decodes column i as float8.
func (r *Rows) GetDouble(i int) (float64, error) {
	raw, name, err := r.column(i)
	if err != nil {
		return 0, err
	}
	v, derr := wireval.DecodeFloat64(raw)
	if derr != nil {
		return 0, &ProtocolError{Err: fmt.Errorf("column %q: %w", name, derr)}
	}
	return v, nil
}

// GetBoolean decodes column i as bool.
func (r *Rows) GetBoolean(i int) (bool, error) {
	raw, name, err := r.column(i)
	if err != nil {
		return false, err
	}
	v, derr := wireval.DecodeBool(raw)
	if derr != nil {
		return false, &ProtocolError{Err: fmt.Errorf("column %q: %w", name, derr)}
	}
	return v, nil
}

// GetDateTime decodes column i as timestamp or timestamptz, returned in UTC.
func (r *Rows) GetDateTime(i int) (time.Time, error) {
	raw, name, err := r.column(i)
	if err != nil {
		return time.Time{}, err
	}
	v, derr := wireval.DecodeTimestamp(raw)
	if derr != nil {
		return time.Time{}, &ProtocolError{Err: fmt.Errorf("column %q: %w", name, derr)}
	}
	return v, nil
}

// GetDate decodes column i as date, returned as a UTC midnight time.Time.
func (r *Rows) GetDate(i int) (time.Time, error) {
	raw, name, err := r.column(i)
	if err != nil {
		return time.Time{}, err
	}
	v, derr := wireval.DecodeDate(raw)
	if derr != nil {
		return time.Time{}, &ProtocolError{Err: fmt.Errorf("column %q: %w", name, derr)}
	}
	return v, nil
}

// GetGuid decodes column i as uuid.
func (r *Rows) GetGuid(i int) ([16]byte, error) {
	raw, name, err := r.column(i)
	if err != nil {
		return [16]byte{}, err
	}
	v, derr := wireval.DecodeGUID(raw)
	if derr != nil {
		return [16]byte{}, &ProtocolError{Err: fmt.Errorf("column %q: %w", name, derr)}
	}
	return v, nil
}

// GetBytes decodes column i as bytea, copying out of the reader's internal
// buffer.
func (r *Rows) GetBytes(i int) ([]byte, error) {
	raw, _, err := r.column(i)
	if err != nil {
		return nil, err
	}
	return wireval.DecodeBytes(raw), nil
}

// GetString decodes column i as UTF-8 text. Used directly for text/char/
// varchar columns and unknown OIDs, and as the textual fallback for numeric
// (spec.md §4.4: binary numeric decoding is intentionally unimplemented).
func (r *Rows) GetString(i int) (string, error) {
	raw, _, err := r.column(i)
	if err != nil {
		return "", err
	}
	return wireval.DecodeString(raw), nil
}

// Value decodes column i into its natural Go type using the OID table from
// spec.md §4.4, or nil if the column is NULL. Used by Command.ExecuteScalar,
// where the caller has no static column type to decode against.
func (r *Rows) Value(i int) (any, error) {
	if r.IsNull(i) {
		return nil, nil
	}
	switch r.reader.Columns()[i].OID {
	case wireval.OIDBool:
		return r.GetBoolean(i)
	case wireval.OIDBytea:
		return r.GetBytes(i)
	case wireval.OIDInt8:
		return r.GetInt64(i)
	case wireval.OIDInt2:
		return r.GetInt16(i)
	case wireval.OIDInt4, wireval.OIDOid:
		return r.GetInt32(i)
	case wireval.OIDFloat4:
		return r.GetSingle(i)
	case wireval.OIDFloat8:
		return r.GetDouble(i)
	case wireval.OIDDate:
		return r.GetDate(i)
	case wireval.OIDTimestamp, wireval.OIDTimestampTZ:
		return r.GetDateTime(i)
	case wireval.OIDUUID:
		return r.GetGuid(i)
	default: // text/varchar/bpchar, numeric (textual fallback), and unknown OIDs
		return r.GetString(i)
	}
}

func wrapReaderErr(err error) error {
	if we, ok := err.(*protocol.WireError); ok {
		return &ServerError{Message: we.Message}
	}
	var te *protocol.TransportError
	if errors.As(err, &te) {
		return &TransportError{Op: "read", Err: err}
	}
	return &ProtocolError{Err: err}
}
