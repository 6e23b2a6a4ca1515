package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// CurrentSchemaVersion is the binary layout written by [Encode].
const CurrentSchemaVersion = 1

const flagCompact byte = 1 << 0

// Layout (v1), fixed prefix so the rotate script can address fields by offset:
//
//	[0]      version
//	[1:33]   refresh hash
//	[33]     flags
//	[34:38]  membership version (BE uint32)
//	[38:46]  created at (BE int64)
//	[46:54]  expires at (BE int64)
//	[54]     user id length, then user id bytes
const (
	offsetFlags     = 33
	offsetExpiresAt = 46
	fixedPrefixSize = 54
)

// Encode serializes r into the current schema.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}
	if len(r.UserID) > 255 {
		return nil, errors.New("userID too long")
	}

	var buf bytes.Buffer
	buf.Grow(fixedPrefixSize + 1 + len(r.UserID))

	buf.WriteByte(CurrentSchemaVersion)
	buf.Write(r.RefreshHash[:])

	var flags byte
	if r.Compact {
		flags |= flagCompact
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, r.MembershipVersion); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(r.UserID)))
	buf.WriteString(r.UserID)

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode]. SessionID is not part of the
// blob; callers set it from the key.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	r := &Record{SchemaVersion: version}
	if _, err := io.ReadFull(reader, r.RefreshHash[:]); err != nil {
		return nil, err
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r.Compact = flags&flagCompact != 0

	if err := binary.Read(reader, binary.BigEndian, &r.MembershipVersion); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	r.UserID = string(userID)

	return r, nil
}
