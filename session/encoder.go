package session

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const formatVersion = 1

var errMalformed = errors.New("malformed session record")

// Encode serializes s into the versioned binary record stored in Redis.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if len(s.SessionID) > 255 {
		return nil, errors.New("sessionID too long")
	}
	if len(s.AccountID) > 255 {
		return nil, errors.New("accountID too long")
	}

	var buf bytes.Buffer
	buf.Grow(3 + len(s.SessionID) + len(s.AccountID) + 64 + 16)
	buf.WriteByte(formatVersion)
	buf.WriteByte(byte(len(s.SessionID)))
	buf.WriteString(s.SessionID)
	buf.WriteByte(byte(len(s.AccountID)))
	buf.WriteString(s.AccountID)
	buf.Write(s.IPHash[:])
	buf.Write(s.UserAgentHash[:])

	var ts [16]byte
	binary.BigEndian.PutUint64(ts[0:8], uint64(s.CreatedAt))
	binary.BigEndian.PutUint64(ts[8:16], uint64(s.ExpiresAt))
	buf.Write(ts[:])

	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode. Unknown versions, truncated
// input and trailing bytes are rejected.
func Decode(data []byte) (*Session, error) {
	if len(data) < 1 {
		return nil, errMalformed
	}
	if data[0] != formatVersion {
		return nil, errors.New("unsupported session format version")
	}
	pos := 1

	readString := func() (string, error) {
		if pos >= len(data) {
			return "", errMalformed
		}
		n := int(data[pos])
		pos++
		if pos+n > len(data) {
			return "", errMalformed
		}
		v := string(data[pos : pos+n])
		pos += n
		return v, nil
	}

	sid, err := readString()
	if err != nil {
		return nil, err
	}
	accountID, err := readString()
	if err != nil {
		return nil, err
	}
	if sid == "" || accountID == "" {
		return nil, errMalformed
	}
	if len(data)-pos != 32+32+16 {
		return nil, errMalformed
	}

	s := &Session{SessionID: sid, AccountID: accountID}
	copy(s.IPHash[:], data[pos:pos+32])
	pos += 32
	copy(s.UserAgentHash[:], data[pos:pos+32])
	pos += 32
	s.CreatedAt = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
	s.ExpiresAt = int64(binary.BigEndian.Uint64(data[pos+8 : pos+16]))
	return s, nil
}
