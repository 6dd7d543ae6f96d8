package ks

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	v1SignatureLen = DigestSize * 2
	v1MinFields    = 7
)

// Token is the decoded, verified content of a KS.
type Token struct {
	Version   Version
	PartnerID int
	UserID    string

	// ExpiresAt is the absolute expiry (unix seconds) carried by v1 tokens.
	ExpiresAt int64
	// ExpiryFraction is the 4-decimal expiry rendering of v1 tokens.
	ExpiryFraction string
	// Duration is the relative lifetime in seconds carried by v2 tokens.
	Duration int

	Privileges []Privilege

	// Fields holds the ordered v2 body including reserved keys.
	Fields []Field
	// Nonce is the random prefix of a v2 body.
	Nonce []byte
	// Payload is the signed v1 field string.
	Payload string
}

// Privilege returns the value of the first directive with key.
func (t *Token) Privilege(key string) (string, bool) {
	for _, p := range t.Privileges {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Parse decodes token and verifies it against secret. The format is detected from the
// decoded prefix.
func Parse(token, secret string) (*Token, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(raw, []byte(v2Prefix)) {
		return parseV2(raw, secret)
	}
	return parseV1(raw, secret)
}

func decodeToken(token string) ([]byte, error) {
	token = strings.TrimRight(strings.TrimSpace(token), "=")
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return raw, nil
}

func parseV1(raw []byte, secret string) (*Token, error) {
	if len(raw) <= v1SignatureLen {
		return nil, fmt.Errorf("%w: v1 token too short", ErrMalformed)
	}
	signature := raw[:v1SignatureLen]
	payload := string(raw[v1SignatureLen:])

	sum := Digest([]byte(secret + payload))
	want := []byte(hex.EncodeToString(sum[:]))
	if subtle.ConstantTimeCompare(bytes.ToLower(signature), want) != 1 {
		return nil, ErrSignature
	}

	parts := strings.Split(payload, ";")
	if len(parts) < v1MinFields {
		return nil, fmt.Errorf("%w: v1 payload has %d fields", ErrMalformed, len(parts))
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: partner id %q", ErrMalformed, parts[0])
	}
	expiresAt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry %q", ErrMalformed, parts[2])
	}

	return &Token{
		Version:        V1,
		PartnerID:      pid,
		UserID:         parts[5],
		ExpiresAt:      expiresAt,
		ExpiryFraction: parts[4],
		Privileges:     ParsePrivileges(parts[6]),
		Payload:        payload,
	}, nil
}

func parseV2(raw []byte, secret string) (*Token, error) {
	rest := raw[len(v2Prefix):]
	sep := bytes.IndexByte(rest, '|')
	if sep <= 0 {
		return nil, fmt.Errorf("%w: v2 envelope missing partner id", ErrMalformed)
	}
	pid, err := strconv.Atoi(string(rest[:sep]))
	if err != nil {
		return nil, fmt.Errorf("%w: partner id %q", ErrMalformed, rest[:sep])
	}

	plain, err := Decrypt(DeriveKey(secret), IV[:], rest[sep+1:])
	if err != nil {
		return nil, err
	}
	plain = bytes.TrimRight(plain, "\x00")
	if len(plain) < DigestSize+NonceSize {
		return nil, fmt.Errorf("%w: v2 body too short", ErrSignature)
	}

	body := plain[DigestSize:]
	sum := Digest(body)
	reverseBytes(sum[:])
	if subtle.ConstantTimeCompare(sum[:], plain[:DigestSize]) != 1 {
		return nil, ErrSignature
	}

	fields, err := parseFields(string(body[NonceSize:]))
	if err != nil {
		return nil, err
	}

	t := &Token{
		Version:   V2,
		PartnerID: pid,
		Fields:    fields,
		Nonce:     append([]byte(nil), body[:NonceSize]...),
	}
	for _, f := range fields {
		switch f.Key {
		case FieldExpiry:
			d, err := strconv.Atoi(f.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: duration %q", ErrMalformed, f.Value)
			}
			t.Duration = d
		case FieldUser:
			t.UserID = f.Value
		case FieldType:
		default:
			t.Privileges = append(t.Privileges, Privilege{Key: f.Key, Value: f.Value})
		}
	}
	return t, nil
}
