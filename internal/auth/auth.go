// Package auth drives the PostgreSQL startup/authentication state machine
// (spec.md §4.3): cleartext, MD5, and SCRAM-SHA-256, keyed off the
// AuthenticationRequest subtype, until ReadyForQuery. Grounded on the
// client-side authenticatePG implementation in the teacher repo's
// internal/pool/pool.go, generalized from a connection-pool warm-up routine
// into a standalone entry point usable by a single session at a time.
package auth

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"

	"github.com/quaypg/pgwire/internal/protocol"
)

// Authenticate sends the StartupMessage and drives the backend's challenge
// sequence to completion. On success the session transitions to open
// (session.MarkOpen has been called) and is positioned just after the first
// ReadyForQuery.
func Authenticate(ctx context.Context, session *protocol.Session, user, password, database string) error {
	m, label := session.Transport.Metrics()
	mechanism := ""
	success := false
	defer func() {
		if m != nil && mechanism != "" {
			outcome := "failed"
			if success {
				outcome = "ok"
			}
			m.AuthOutcome(label, mechanism, outcome)
		}
	}()

	if err := session.Send(protocol.BuildStartupMessage(user, database)); err != nil {
		return err
	}

	params := make(map[string]string)
	var backendPID, backendKey uint32

	for {
		msgType, payload, err := session.ReadMessage(ctx)
		if err != nil {
			return err
		}

		switch msgType {
		case protocol.MsgAuthentication:
			if len(payload) < 4 {
				session.Advance(len(payload))
				return protocolErrorf("authentication message too short")
			}
			authType := binary.BigEndian.Uint32(payload[:4])

			switch authType {
			case 0: // AuthenticationOk
				if mechanism == "" {
					mechanism = "trust"
				}
				session.Advance(len(payload))

			case 3: // AuthenticationCleartextPassword
				mechanism = "cleartext"
				session.Advance(len(payload))
				pw := append([]byte(password), 0)
				if err := session.Send(protocol.BuildPasswordMessage(pw)); err != nil {
					return err
				}

			case 5: // AuthenticationMD5Password
				mechanism = "md5"
				if len(payload) < 8 {
					session.Advance(len(payload))
					return protocolErrorf("MD5 authentication message too short")
				}
				salt := make([]byte, 4)
				copy(salt, payload[4:8])
				session.Advance(len(payload))
				hashed := append([]byte(computeMD5Password(user, password, salt)), 0)
				if err := session.Send(protocol.BuildPasswordMessage(hashed)); err != nil {
					return err
				}

			case 10: // AuthenticationSASL — SCRAM-SHA-256
				mechanism = "scram-sha-256"
				mechanisms := make([]byte, len(payload)-4)
				copy(mechanisms, payload[4:])
				session.Advance(len(payload))
				if err := performSCRAM(ctx, session, user, password, mechanisms); err != nil {
					return err
				}

			default:
				session.Advance(len(payload))
				return protocolErrorf("unsupported authentication method: %d", authType)
			}

		case protocol.MsgParameterStatus:
			key, val := parseNullTerminatedPair(payload)
			if key != "" {
				params[key] = val
			}
			session.Advance(len(payload))

		case protocol.MsgBackendKeyData:
			if len(payload) >= 8 {
				backendPID = binary.BigEndian.Uint32(payload[:4])
				backendKey = binary.BigEndian.Uint32(payload[4:8])
			}
			session.Advance(len(payload))

		case protocol.MsgReadyForQuery:
			session.Advance(len(payload))
			session.MarkOpen(params, backendPID, backendKey)
			success = true
			return nil

		case protocol.MsgErrorResponse:
			msg := protocol.ParseErrorMessage(payload)
			session.Advance(len(payload))
			return failuref("%s", msg)

		default:
			session.Advance(len(payload))
		}
	}
}

// computeMD5Password computes "md5" + hex(md5(hex(md5(password+user))+salt)).
func computeMD5Password(user, password string, salt []byte) string {
	h1 := md5.Sum([]byte(password + user))
	hex1 := hex.EncodeToString(h1[:])
	h2 := md5.Sum(append([]byte(hex1), salt...))
	return "md5" + hex.EncodeToString(h2[:])
}

// parseNullTerminatedPair parses a "key\0value\0" buffer.
func parseNullTerminatedPair(data []byte) (string, string) {
	for i := 0; i < len(data); i++ {
		if data[i] == 0 {
			key := string(data[:i])
			rest := data[i+1:]
			for j := 0; j < len(rest); j++ {
				if rest[j] == 0 {
					return key, string(rest[:j])
				}
			}
			return key, string(rest)
		}
	}
	return "", ""
}
