package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Binary layout, schema version 1. The fixed-offset header comes first so
// the rotation Lua script can read and rewrite the refresh hash, validity
// flag, and last-active timestamp without parsing the variable tail.
//
//	offset 0      version (1 byte)
//	offset 1      valid flag (1 byte, 0 or 1)
//	offset 2      refresh hash (32 bytes)
//	offset 34     created-at, unix seconds (8 bytes, big-endian)
//	offset 42     expires-at (8 bytes, big-endian)
//	offset 50     last-active-at (8 bytes, big-endian)
//	offset 58     user ID (1 length byte + bytes)
//	then          ip, user-agent, fingerprint (1 length byte + bytes each)
const schemaVersion = 1

const (
	offValid      = 1
	offHash       = 2
	offCreated    = 34
	offExpires    = 42
	offLastActive = 50
	offUserID     = 58
)

var errCorruptSession = errors.New("corrupt session record")

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(schemaVersion)

	if s.Valid {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	buf.Write(s.RefreshHash[:])

	for _, ts := range []int64{s.CreatedAt, s.ExpiresAt, s.LastActiveAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"userID", s.UserID},
		{"ip", s.IP},
		{"userAgent", s.UserAgent},
		{"fingerprint", s.Fingerprint},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	return buf.Bytes(), nil
}

// encodeDeviceTail renders the variable ip/user-agent/fingerprint tail
// that follows the user ID field.
func encodeDeviceTail(ip, userAgent, fingerprint string) ([]byte, error) {
	var buf bytes.Buffer

	for _, field := range []struct {
		name  string
		value string
	}{
		{"ip", ip},
		{"userAgent", userAgent},
		{"fingerprint", fingerprint},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != schemaVersion {
		return nil, errors.New("invalid session schema version")
	}

	s := &Session{}

	validByte, err := reader.ReadByte()
	if err != nil {
		return nil, errCorruptSession
	}
	s.Valid = validByte == 1

	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, errCorruptSession
	}

	for _, ts := range []*int64{&s.CreatedAt, &s.ExpiresAt, &s.LastActiveAt} {
		if err := binary.Read(reader, binary.BigEndian, ts); err != nil {
			return nil, errCorruptSession
		}
	}

	for _, field := range []*string{&s.UserID, &s.IP, &s.UserAgent, &s.Fingerprint} {
		length, err := reader.ReadByte()
		if err != nil {
			return nil, errCorruptSession
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, errCorruptSession
		}
		*field = string(raw)
	}

	return s, nil
}
