package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frontend/backend message type tags (spec.md §3-4).
const (
	MsgAuthentication  byte = 'R'
	MsgErrorResponse   byte = 'E'
	MsgReadyForQuery   byte = 'Z'
	MsgTerminate       byte = 'X'
	MsgSimpleQuery     byte = 'Q'
	MsgParameterStatus byte = 'S'
	MsgBackendKeyData  byte = 'K'
	MsgPassword        byte = 'p'
	MsgParse           byte = 'P'
	MsgBind            byte = 'B'
	MsgDescribe        byte = 'D'
	MsgExecute         byte = 'E'
	MsgSync            byte = 'S'
	MsgParseComplete   byte = '1'
	MsgBindComplete    byte = '2'
	MsgNoData          byte = 'n'
	MsgCommandComplete byte = 'C'
	MsgRowDescription  byte = 'T'
	MsgDataRow         byte = 'D'
	MsgNoticeResponse  byte = 'N'
)

// ProtocolVersion30 is the PostgreSQL v3.0 wire protocol version integer.
const ProtocolVersion30 uint32 = 3 << 16

// FormatText and FormatBinary are the PostgreSQL column/parameter format codes.
const (
	FormatText   int16 = 0
	FormatBinary int16 = 1
)

// ---- frontend message builders -------------------------------------------

func withHeader(msgType byte, body []byte) []byte {
	buf := make([]byte, 1+4+len(body))
	buf[0] = msgType
	binary.BigEndian.PutUint32(buf[1:5], uint32(4+len(body)))
	copy(buf[5:], body)
	return buf
}

// BuildStartupMessage builds the untagged StartupMessage: protocol version,
// the user/database/client_encoding parameter triples, and a trailing zero.
func BuildStartupMessage(user, database string) []byte {
	var body []byte
	verBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(verBuf, ProtocolVersion30)
	body = append(body, verBuf...)

	appendParam := func(key, val string) {
		body = append(body, key...)
		body = append(body, 0)
		body = append(body, val...)
		body = append(body, 0)
	}
	appendParam("user", user)
	appendParam("database", database)
	appendParam("client_encoding", "UTF8")
	body = append(body, 0)

	msg := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(msg[:4], uint32(len(msg)))
	copy(msg[4:], body)
	return msg
}

// BuildPasswordMessage wraps payload in a PasswordMessage ('p'). It is used
// verbatim for cleartext/MD5 password responses (payload already
// null-terminated by the caller) and for SCRAM SASL responses (payload is
// the raw SASL message bytes, no terminator).
func BuildPasswordMessage(payload []byte) []byte {
	return withHeader(MsgPassword, payload)
}

// BuildSASLInitialResponse builds a PasswordMessage carrying the SASL
// mechanism name and client-first-message: mechanism\0 + int32(len) + msg.
func BuildSASLInitialResponse(mechanism string, clientFirstMessage []byte) []byte {
	body := append([]byte(mechanism), 0)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(clientFirstMessage)))
	body = append(body, lenBuf...)
	body = append(body, clientFirstMessage...)
	return BuildPasswordMessage(body)
}

// BuildSimpleQuery builds a simple-query ('Q') message from raw SQL text.
func BuildSimpleQuery(sql string) []byte {
	body := append([]byte(sql), 0)
	return withHeader(MsgSimpleQuery, body)
}

// BuildParse builds an unnamed-statement Parse ('P') message.
func BuildParse(sql string, paramOIDs []uint32) []byte {
	var body []byte
	body = append(body, 0) // unnamed statement
	body = append(body, sql...)
	body = append(body, 0)

	countBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(countBuf, uint16(len(paramOIDs)))
	body = append(body, countBuf...)
	for _, oid := range paramOIDs {
		oidBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(oidBuf, oid)
		body = append(body, oidBuf...)
	}
	return withHeader(MsgParse, body)
}

// EncodedParam is a single bound parameter value ready for the wire: either
// IsNull (encoded as length -1, no body) or Value holding the binary bytes.
type EncodedParam struct {
	Value  []byte
	IsNull bool
}

// BuildBind builds an unnamed-portal, unnamed-statement Bind ('B') message.
// Every parameter format and every result format is binary (format code 1).
func BuildBind(params []EncodedParam) []byte {
	var body []byte
	body = append(body, 0) // unnamed portal
	body = append(body, 0) // unnamed statement

	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, v)
		return b
	}
	i32 := func(v int32) []byte {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v))
		return b
	}

	// Parameter format codes: count + that many binary(1) codes.
	body = append(body, u16(uint16(len(params)))...)
	for range params {
		body = append(body, u16(uint16(FormatBinary))...)
	}

	// Parameter values: count + {length, bytes} per param.
	body = append(body, u16(uint16(len(params)))...)
	for _, p := range params {
		if p.IsNull {
			body = append(body, i32(-1)...)
			continue
		}
		body = append(body, i32(int32(len(p.Value)))...)
		body = append(body, p.Value...)
	}

	// Result format codes: a single code (1) applies to all columns.
	body = append(body, u16(1)...)
	body = append(body, u16(uint16(FormatBinary))...)

	return withHeader(MsgBind, body)
}

// BuildDescribePortal builds a Describe ('D') message for the unnamed portal.
func BuildDescribePortal() []byte {
	body := []byte{'P', 0}
	return withHeader(MsgDescribe, body)
}

// BuildExecute builds an Execute ('E') message for the unnamed portal with
// an unbounded row limit.
func BuildExecute() []byte {
	body := make([]byte, 1+4)
	body[0] = 0 // unnamed portal
	binary.BigEndian.PutUint32(body[1:], 0)
	return withHeader(MsgExecute, body)
}

// BuildSync builds an empty Sync ('S') message.
func BuildSync() []byte {
	return withHeader(MsgSync, nil)
}

// BuildTerminate builds the Terminate ('X') message.
func BuildTerminate() []byte {
	return withHeader(MsgTerminate, nil)
}

// BuildExtendedQueryBurst concatenates Parse/Bind/Describe/Execute/Sync into
// one contiguous send, so the caller issues a single Transport.Send call and
// the server observes — and replies to — all five messages as one batch.
func BuildExtendedQueryBurst(sql string, paramOIDs []uint32, params []EncodedParam) []byte {
	var out []byte
	out = append(out, BuildParse(sql, paramOIDs)...)
	out = append(out, BuildBind(params)...)
	out = append(out, BuildDescribePortal()...)
	out = append(out, BuildExecute()...)
	out = append(out, BuildSync()...)
	return out
}

// ---- backend message parsers ----------------------------------------------

// ParseErrorMessage extracts the 'M' (human message) field from an
// ErrorResponse payload, or "Unknown error" if absent.
func ParseErrorMessage(payload []byte) string {
	i := 0
	for i < len(payload) {
		fieldType := payload[i]
		if fieldType == 0 {
			break
		}
		i++
		start := i
		for i < len(payload) && payload[i] != 0 {
			i++
		}
		if fieldType == 'M' {
			return string(payload[start:i])
		}
		if i < len(payload) {
			i++ // skip terminator
		}
	}
	return "Unknown error"
}

// ParseCommandComplete extracts the command tag and the trailing affected-row
// count (0 if absent or unparseable).
func ParseCommandComplete(payload []byte) (tag string, rowsAffected int64) {
	end := len(payload)
	if end > 0 && payload[end-1] == 0 {
		end--
	}
	tag = string(payload[:end])

	lastSpace := -1
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == ' ' {
			lastSpace = i
			break
		}
	}
	if lastSpace < 0 || lastSpace == len(tag)-1 {
		return tag, 0
	}
	var n int64
	for _, c := range tag[lastSpace+1:] {
		if c < '0' || c > '9' {
			return tag, 0
		}
		n = n*10 + int64(c-'0')
	}
	return tag, n
}

// ColumnDescriptor describes one result column from a RowDescription.
type ColumnDescriptor struct {
	Name   string
	OID    uint32
	Format int16
}

// ParseRowDescription parses a RowDescription ('T') payload.
func ParseRowDescription(payload []byte) ([]ColumnDescriptor, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("protocol: RowDescription too short")
	}
	fieldCount := binary.BigEndian.Uint16(payload[:2])
	pos := 2
	cols := make([]ColumnDescriptor, 0, fieldCount)
	for i := 0; i < int(fieldCount); i++ {
		nameEnd := pos
		for nameEnd < len(payload) && payload[nameEnd] != 0 {
			nameEnd++
		}
		if nameEnd >= len(payload) {
			return nil, fmt.Errorf("protocol: malformed RowDescription field name")
		}
		name := string(payload[pos:nameEnd])
		pos = nameEnd + 1

		// table OID(4) + attribute number(2) — skipped.
		pos += 6
		if pos+4 > len(payload) {
			return nil, fmt.Errorf("protocol: truncated RowDescription")
		}
		oid := binary.BigEndian.Uint32(payload[pos : pos+4])
		pos += 4

		// type size(2) + type modifier(4) — skipped.
		pos += 6
		if pos+2 > len(payload) {
			return nil, fmt.Errorf("protocol: truncated RowDescription")
		}
		format := int16(binary.BigEndian.Uint16(payload[pos : pos+2]))
		pos += 2

		cols = append(cols, ColumnDescriptor{Name: name, OID: oid, Format: format})
	}
	return cols, nil
}

// ColumnSlice is a {offset, length} pair into a DataRow payload. Length -1
// denotes SQL NULL.
type ColumnSlice struct {
	Offset, Length int
}

// ParseDataRow parses a DataRow ('D') payload into per-column offset/length
// pairs, all relative to the start of payload. No copying occurs.
func ParseDataRow(payload []byte) ([]ColumnSlice, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("protocol: DataRow too short")
	}
	colCount := binary.BigEndian.Uint16(payload[:2])
	pos := 2
	cols := make([]ColumnSlice, 0, colCount)
	for i := 0; i < int(colCount); i++ {
		if pos+4 > len(payload) {
			return nil, fmt.Errorf("protocol: truncated DataRow")
		}
		length := int32(binary.BigEndian.Uint32(payload[pos : pos+4]))
		pos += 4
		if length < 0 {
			cols = append(cols, ColumnSlice{Offset: pos, Length: -1})
			continue
		}
		if pos+int(length) > len(payload) {
			return nil, fmt.Errorf("protocol: truncated DataRow column")
		}
		cols = append(cols, ColumnSlice{Offset: pos, Length: int(length)})
		pos += int(length)
	}
	return cols, nil
}
