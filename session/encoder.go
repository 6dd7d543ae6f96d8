package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	recordFormatVersionCurrent = 1
	maxRecordString            = math.MaxUint16
)

// Record is a cached, issued KS together with the identity it was issued for.
type Record struct {
	Format    Format
	PartnerID int64
	UserID    string
	KS        string
	IssuedAt  int64
	ExpiresAt int64
}

// EncodeRecord serializes r in the current binary record format.
func EncodeRecord(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}
	var buf bytes.Buffer
	buf.Grow(1 + 1 + 8 + 2 + len(r.UserID) + 2 + len(r.KS) + 16)

	buf.WriteByte(recordFormatVersionCurrent)
	buf.WriteByte(byte(r.Format))

	if err := binary.Write(&buf, binary.BigEndian, r.PartnerID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "userID", r.UserID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "ks", r.KS); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeRecord parses data produced by EncodeRecord.
func DecodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, fmt.Errorf("unsupported record version %d", version)
	}

	r := &Record{}

	format, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r.Format = Format(format)

	if err := binary.Read(reader, binary.BigEndian, &r.PartnerID); err != nil {
		return nil, err
	}
	if r.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	if r.KS, err = readString(reader); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes after record")
	}

	return r, nil
}

func writeString(buf *bytes.Buffer, name, s string) error {
	if len(s) > maxRecordString {
		return fmt.Errorf("%s too long", name)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
