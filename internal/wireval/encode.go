// Package wireval implements the Value Codec (spec.md §4.4): encoding
// parameter values into PostgreSQL binary wire representation tagged with an
// OID, and decoding backend binary column values into host Go types. The
// teacher repo never implements this — it only relays opaque bytes between a
// real client and a real backend — so this package is grounded directly on
// spec.md's OID table and on the binary-format conventions visible in
// jackc/pgx's pgproto3 frontend (see other_examples), adapted into a small,
// allocation-light encoder/decoder pair.
package wireval

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Fixed OIDs for the types this codec understands (spec.md §4.4).
const (
	OIDBool        uint32 = 16
	OIDBytea       uint32 = 17
	OIDInt8        uint32 = 20
	OIDInt2        uint32 = 21
	OIDInt4        uint32 = 23
	OIDText        uint32 = 25
	OIDOid         uint32 = 26
	OIDFloat4      uint32 = 700
	OIDFloat8      uint32 = 701
	OIDUnknown     uint32 = 0
	OIDBPChar      uint32 = 1042
	OIDVarchar     uint32 = 1043
	OIDDate        uint32 = 1082
	OIDTimestamp   uint32 = 1114
	OIDTimestampTZ uint32 = 1184
	OIDNumeric     uint32 = 1700
	OIDUUID        uint32 = 2950
)

// pgEpoch is midnight UTC on 2000-01-01, the PostgreSQL epoch (spec.md §3).
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Encoded is a parameter's wire-ready form: its binary bytes (or IsNull) and
// the OID the server should treat it as.
type Encoded struct {
	Bytes  []byte
	IsNull bool
	OID    uint32
}

// TypeTag names the recognized declared parameter types (spec.md §3).
type TypeTag int

const (
	TypeInferred TypeTag = iota
	TypeInt16
	TypeInt32
	TypeInt64
	TypeSingle
	TypeDouble
	TypeBoolean
	TypeDateTime
	TypeDate
	TypeGuid
	TypeBinary
	TypeString
)

// Encode encodes a single parameter value. If tag is TypeInferred, the
// runtime type of value selects the encoding the same way an explicit tag
// would; anything not in the recognized set falls back to UTF-8 text with
// OID 0 (server-inferred).
func Encode(value any, tag TypeTag) (Encoded, error) {
	if value == nil {
		return Encoded{IsNull: true}, nil
	}
	if tag == TypeInferred {
		tag = inferTag(value)
	}

	switch tag {
	case TypeInt16:
		v, err := asInt64(value)
		if err != nil {
			return Encoded{}, err
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int16(v)))
		return Encoded{Bytes: buf, OID: OIDInt2}, nil

	case TypeInt32:
		v, err := asInt64(value)
		if err != nil {
			return Encoded{}, err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(v)))
		return Encoded{Bytes: buf, OID: OIDInt4}, nil

	case TypeInt64:
		v, err := asInt64(value)
		if err != nil {
			return Encoded{}, err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v))
		return Encoded{Bytes: buf, OID: OIDInt8}, nil

	case TypeSingle:
		v, err := asFloat64(value)
		if err != nil {
			return Encoded{}, err
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(v)))
		return Encoded{Bytes: buf, OID: OIDFloat4}, nil

	case TypeDouble:
		v, err := asFloat64(value)
		if err != nil {
			return Encoded{}, err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(v))
		return Encoded{Bytes: buf, OID: OIDFloat8}, nil

	case TypeBoolean:
		v, ok := value.(bool)
		if !ok {
			return Encoded{}, fmt.Errorf("wireval: %v is not a bool", value)
		}
		b := byte(0)
		if v {
			b = 1
		}
		return Encoded{Bytes: []byte{b}, OID: OIDBool}, nil

	case TypeDateTime:
		t, err := asTime(value)
		if err != nil {
			return Encoded{}, err
		}
		micros := t.UTC().Sub(pgEpoch).Microseconds()
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(micros))
		return Encoded{Bytes: buf, OID: OIDTimestamp}, nil

	case TypeDate:
		t, err := asTime(value)
		if err != nil {
			return Encoded{}, err
		}
		days := int32(t.UTC().Sub(pgEpoch).Hours() / 24)
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(days))
		return Encoded{Bytes: buf, OID: OIDDate}, nil

	case TypeGuid:
		raw, err := asUUIDBytes(value)
		if err != nil {
			return Encoded{}, err
		}
		return Encoded{Bytes: encodeGUID(raw), OID: OIDUUID}, nil

	case TypeBinary:
		b, ok := value.([]byte)
		if !ok {
			return Encoded{}, fmt.Errorf("wireval: %v is not []byte", value)
		}
		out := make([]byte, len(b))
		copy(out, b)
		return Encoded{Bytes: out, OID: OIDBytea}, nil

	default: // TypeString and anything unrecognized: UTF-8 text, server-inferred
		return Encoded{Bytes: []byte(fmt.Sprint(value)), OID: OIDUnknown}, nil
	}
}

func inferTag(value any) TypeTag {
	switch value.(type) {
	case int16:
		return TypeInt16
	case int32:
		return TypeInt32
	case int, int64:
		return TypeInt64
	case float32:
		return TypeSingle
	case float64:
		return TypeDouble
	case bool:
		return TypeBoolean
	case time.Time:
		return TypeDateTime
	case [16]byte:
		return TypeGuid
	case []byte:
		return TypeBinary
	case string:
		return TypeString
	default:
		return TypeString
	}
}

func asInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("wireval: %v is not an integer", value)
	}
}

func asFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("wireval: %v is not a float", value)
	}
}

func asTime(value any) (time.Time, error) {
	t, ok := value.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("wireval: %v is not a time.Time", value)
	}
	return t, nil
}

func asUUIDBytes(value any) ([16]byte, error) {
	switch v := value.(type) {
	case [16]byte:
		return v, nil
	case []byte:
		if len(v) != 16 {
			return [16]byte{}, fmt.Errorf("wireval: UUID must be 16 bytes, got %d", len(v))
		}
		var out [16]byte
		copy(out[:], v)
		return out, nil
	default:
		return [16]byte{}, fmt.Errorf("wireval: %v is not a UUID", value)
	}
}

// encodeGUID reverses the first three little-endian .NET-style GUID field
// groups (4, 2, 2 bytes) into canonical big-endian order; the trailing 8
// bytes are already byte-order-agnostic and pass through unchanged
// (spec.md §4.4).
func encodeGUID(src [16]byte) []byte {
	out := make([]byte, 16)
	reverse := func(dst, src []byte) {
		for i := range src {
			dst[i] = src[len(src)-1-i]
		}
	}
	reverse(out[0:4], src[0:4])
	reverse(out[4:6], src[4:6])
	reverse(out[6:8], src[6:8])
	copy(out[8:16], src[8:16])
	return out
}
