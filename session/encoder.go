package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionCurrent = 1

var errInvalidSessionVersion = errors.New("invalid session version")

// Encode serializes a [Session] into the compact binary storage format:
// version byte, length-prefixed strings, big-endian int64 timestamps.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.AccountID) > 255 {
		return nil, errors.New("accountID too long")
	}
	buf.WriteByte(byte(len(s.AccountID)))
	buf.WriteString(s.AccountID)

	if len(s.Device) > 255 {
		return nil, errors.New("device too long")
	}
	buf.WriteByte(byte(len(s.Device)))
	buf.WriteString(s.Device)

	if len(s.Origin) > 255 {
		return nil, errors.New("origin too long")
	}
	buf.WriteByte(byte(len(s.Origin)))
	buf.WriteString(s.Origin)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastActiveAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses the binary format produced by [Encode]. SessionID is not
// part of the payload; callers set it from the Redis key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errInvalidSessionVersion
	}

	s := &Session{}

	accountID, err := readLenPrefixed(reader)
	if err != nil {
		return nil, err
	}
	s.AccountID = accountID

	device, err := readLenPrefixed(reader)
	if err != nil {
		return nil, err
	}
	s.Device = device

	origin, err := readLenPrefixed(reader)
	if err != nil {
		return nil, err
	}
	s.Origin = origin

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.LastActiveAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	return s, nil
}

func readLenPrefixed(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
