package protocol

import (
	"encoding/binary"
	"testing"
)

func TestBuildStartupMessageLayout(t *testing.T) {
	msg := BuildStartupMessage("alice", "mydb")

	length := binary.BigEndian.Uint32(msg[:4])
	if int(length) != len(msg) {
		t.Fatalf("length prefix %d does not match actual message length %d", length, len(msg))
	}
	version := binary.BigEndian.Uint32(msg[4:8])
	if version != ProtocolVersion30 {
		t.Fatalf("expected protocol version %d, got %d", ProtocolVersion30, version)
	}
	if !containsNullTerminated(msg[8:], "alice") {
		t.Error("expected username in startup message")
	}
	if !containsNullTerminated(msg[8:], "mydb") {
		t.Error("expected database name in startup message")
	}
}

func containsNullTerminated(body []byte, want string) bool {
	target := append([]byte(want), 0)
	for i := 0; i+len(target) <= len(body); i++ {
		match := true
		for j := range target {
			if body[i+j] != target[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestBuildBindAllColumnsRequestBinaryFormat(t *testing.T) {
	params := []EncodedParam{
		{Value: []byte{0, 0, 0, 1}},
		{IsNull: true},
	}
	msg := BuildBind(params)

	// Last 4 bytes: result-format count (u16=1) + binary format code (u16=1).
	n := len(msg)
	resultCount := binary.BigEndian.Uint16(msg[n-4 : n-2])
	resultFormat := binary.BigEndian.Uint16(msg[n-2:])
	if resultCount != 1 {
		t.Fatalf("expected a single result format code applying to all columns, got count %d", resultCount)
	}
	if int16(resultFormat) != FormatBinary {
		t.Fatalf("expected binary result format, got %d", resultFormat)
	}
}

func TestBuildBindEncodesNullAsLengthMinusOne(t *testing.T) {
	params := []EncodedParam{{IsNull: true}}
	msg := BuildBind(params)

	// unnamed portal(1) + unnamed statement(1) + paramFormatCount(2) +
	// paramFormatCode(2) + paramValueCount(2) = offset 8, then int32 length.
	body := msg[5:] // skip header
	offset := 1 + 1 + 2 + 2 + 2
	length := int32(binary.BigEndian.Uint32(body[offset : offset+4]))
	if length != -1 {
		t.Fatalf("expected NULL parameter encoded as length -1, got %d", length)
	}
}

func TestParseErrorMessageExtractsHumanField(t *testing.T) {
	payload := []byte{}
	payload = append(payload, 'S')
	payload = append(payload, []byte("ERROR")...)
	payload = append(payload, 0)
	payload = append(payload, 'M')
	payload = append(payload, []byte("relation \"x\" does not exist")...)
	payload = append(payload, 0)
	payload = append(payload, 0) // terminator

	msg := ParseErrorMessage(payload)
	if msg != `relation "x" does not exist` {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestParseErrorMessageFallsBackWhenFieldMissing(t *testing.T) {
	payload := []byte{'S', 'E', 'R', 'R', 'O', 'R', 0, 0}
	if got := ParseErrorMessage(payload); got != "Unknown error" {
		t.Fatalf("expected fallback message, got %q", got)
	}
}

func TestParseCommandCompleteExtractsRowCount(t *testing.T) {
	tag, n := ParseCommandComplete([]byte("UPDATE 42\x00"))
	if tag != "UPDATE 42" {
		t.Fatalf("unexpected tag: %q", tag)
	}
	if n != 42 {
		t.Fatalf("expected 42 affected rows, got %d", n)
	}
}

func TestParseCommandCompleteWithoutCount(t *testing.T) {
	tag, n := ParseCommandComplete([]byte("BEGIN\x00"))
	if tag != "BEGIN" {
		t.Fatalf("unexpected tag: %q", tag)
	}
	if n != 0 {
		t.Fatalf("expected 0 when no count is present, got %d", n)
	}
}

func TestParseRowDescriptionRoundTrip(t *testing.T) {
	var payload []byte
	payload = binary.BigEndian.AppendUint16(payload, 2)

	appendField := func(name string, oid uint32, format int16) {
		payload = append(payload, name...)
		payload = append(payload, 0)
		payload = binary.BigEndian.AppendUint32(payload, 0) // table OID
		payload = binary.BigEndian.AppendUint16(payload, 0) // attr number
		payload = binary.BigEndian.AppendUint32(payload, oid)
		payload = binary.BigEndian.AppendUint16(payload, 0) // type size
		payload = binary.BigEndian.AppendUint32(payload, 0) // type modifier
		payload = binary.BigEndian.AppendUint16(payload, uint16(format))
	}
	appendField("id", 23, FormatBinary)
	appendField("name", 25, FormatBinary)

	cols, err := ParseRowDescription(payload)
	if err != nil {
		t.Fatalf("ParseRowDescription: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(cols))
	}
	if cols[0].Name != "id" || cols[0].OID != 23 {
		t.Fatalf("unexpected first column: %+v", cols[0])
	}
	if cols[1].Name != "name" || cols[1].OID != 25 {
		t.Fatalf("unexpected second column: %+v", cols[1])
	}
}

func TestParseDataRowHandlesNulls(t *testing.T) {
	var payload []byte
	payload = binary.BigEndian.AppendUint16(payload, 2)
	payload = binary.BigEndian.AppendUint32(payload, 4)
	payload = append(payload, 0, 0, 0, 7)
	payload = binary.BigEndian.AppendUint32(payload, 0xFFFFFFFF) // int32 -1: NULL

	cols, err := ParseDataRow(payload)
	if err != nil {
		t.Fatalf("ParseDataRow: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(cols))
	}
	if cols[0].Length != 4 {
		t.Fatalf("expected first column length 4, got %d", cols[0].Length)
	}
	if cols[1].Length != -1 {
		t.Fatalf("expected second column to be NULL (-1), got %d", cols[1].Length)
	}
}

func TestParseDataRowRejectsTruncatedPayload(t *testing.T) {
	var payload []byte
	payload = binary.BigEndian.AppendUint16(payload, 1)
	payload = binary.BigEndian.AppendUint32(payload, 10) // claims 10 bytes, none follow

	if _, err := ParseDataRow(payload); err == nil {
		t.Fatal("expected error for truncated DataRow")
	}
}
