package wireval

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DecodeInt16 decodes a binary int2 column.
func DecodeInt16(raw []byte) (int16, error) {
	if len(raw) != 2 {
		return 0, fmt.Errorf("wireval: int2 wants 2 bytes, got %d", len(raw))
	}
	return int16(binary.BigEndian.Uint16(raw)), nil
}

// DecodeInt32 decodes a binary int4 column.
func DecodeInt32(raw []byte) (int32, error) {
	if len(raw) != 4 {
		return 0, fmt.Errorf("wireval: int4 wants 4 bytes, got %d", len(raw))
	}
	return int32(binary.BigEndian.Uint32(raw)), nil
}

// DecodeInt64 decodes a binary int8 column.
func DecodeInt64(raw []byte) (int64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("wireval: int8 wants 8 bytes, got %d", len(raw))
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// DecodeFloat32 decodes a binary float4 column.
func DecodeFloat32(raw []byte) (float32, error) {
	if len(raw) != 4 {
		return 0, fmt.Errorf("wireval: float4 wants 4 bytes, got %d", len(raw))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(raw)), nil
}

// DecodeFloat64 decodes a binary float8 column.
func DecodeFloat64(raw []byte) (float64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("wireval: float8 wants 8 bytes, got %d", len(raw))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
}

// DecodeBool decodes a binary bool column.
func DecodeBool(raw []byte) (bool, error) {
	if len(raw) != 1 {
		return false, fmt.Errorf("wireval: bool wants 1 byte, got %d", len(raw))
	}
	return raw[0] != 0, nil
}

// DecodeTimestamp decodes a binary timestamp (or timestamptz) column into a
// UTC time.Time, counting microseconds since the PostgreSQL epoch.
func DecodeTimestamp(raw []byte) (time.Time, error) {
	if len(raw) != 8 {
		return time.Time{}, fmt.Errorf("wireval: timestamp wants 8 bytes, got %d", len(raw))
	}
	micros := int64(binary.BigEndian.Uint64(raw))
	return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
}

// DecodeDate decodes a binary date column into a UTC midnight time.Time.
func DecodeDate(raw []byte) (time.Time, error) {
	if len(raw) != 4 {
		return time.Time{}, fmt.Errorf("wireval: date wants 4 bytes, got %d", len(raw))
	}
	days := int32(binary.BigEndian.Uint32(raw))
	return pgEpoch.AddDate(0, 0, int(days)), nil
}

// DecodeGUID reverses encodeGUID: it takes the wire's canonical big-endian 16
// bytes and reverses the first three field groups (4, 2, 2 bytes) back into
// the little-endian field layout that Encode accepts for TypeGuid.
func DecodeGUID(raw []byte) ([16]byte, error) {
	var out [16]byte
	if len(raw) != 16 {
		return out, fmt.Errorf("wireval: uuid wants 16 bytes, got %d", len(raw))
	}
	reverse := func(dst, src []byte) {
		for i := range src {
			dst[i] = src[len(src)-1-i]
		}
	}
	reverse(out[0:4], raw[0:4])
	reverse(out[4:6], raw[4:6])
	reverse(out[6:8], raw[6:8])
	copy(out[8:16], raw[8:16])
	return out, nil
}

// DecodeBytes copies a binary bytea column.
func DecodeBytes(raw []byte) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

// DecodeString decodes any column as UTF-8 text. Used directly for
// text/varchar/bpchar columns, and as the fallback for numeric and any OID
// this codec does not have a dedicated binary layout for (spec.md §4.4: a
// numeric column's digits are left as its textual representation rather than
// decoded from the NBASE-10000 binary numeric wire format).
func DecodeString(raw []byte) string {
	return string(raw)
}

// DecodeNumericText parses a numeric column delivered in its textual form
// (see DecodeString) into a float64, for callers that want an arithmetic
// value rather than an exact decimal string.
func DecodeNumericText(raw []byte) (float64, error) {
	s := strings.TrimSpace(string(raw))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("wireval: not a numeric literal: %q", s)
	}
	return v, nil
}
