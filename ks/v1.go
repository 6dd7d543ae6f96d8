package ks

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// V1 builds a plaintext token:
//
//	base64url(hex(SHA1(secret || payload)) || payload)
//	payload = "{pid};{pid};{expiry};0;{expiry:.4f};{user};{privileges};;"
//
// It returns ErrEncoding when the secret, user id or privileges are not valid UTF-8,
// and when the user id or privileges contain ';', which would shift the payload fields.
func (g *Generator) V1(p Params) (string, error) {
	if err := checkEncoding(p); err != nil {
		return "", err
	}
	if strings.ContainsRune(p.UserID, ';') {
		return "", fmt.Errorf("%w: user id contains ';'", ErrEncoding)
	}
	if strings.ContainsRune(p.Privileges, ';') {
		return "", fmt.Errorf("%w: privileges contain ';'", ErrEncoding)
	}

	expiry := g.expiresAt(p.ExpirySeconds)
	payload := v1Payload(p, expiry)

	sig := Digest([]byte(p.Secret + payload))
	raw := hex.EncodeToString(sig[:]) + payload
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

func v1Payload(p Params, expiry float64) string {
	pid := strconv.Itoa(p.PartnerID)

	var b strings.Builder
	b.Grow(64 + len(p.UserID) + len(p.Privileges))
	b.WriteString(pid)
	b.WriteByte(';')
	b.WriteString(pid)
	b.WriteByte(';')
	b.WriteString(strconv.FormatInt(int64(expiry), 10))
	b.WriteString(";0;")
	b.WriteString(strconv.FormatFloat(expiry, 'f', 4, 64))
	b.WriteByte(';')
	b.WriteString(p.UserID)
	b.WriteByte(';')
	b.WriteString(p.Privileges)
	b.WriteString(";;")
	return b.String()
}

// expiresAt returns now + normalized expiry in fractional unix seconds.
func (g *Generator) expiresAt(seconds int) float64 {
	now := g.clock()
	return float64(now.Unix()) + float64(now.Nanosecond())/1e9 + float64(NormalizeExpiry(seconds))
}

func checkEncoding(p Params) error {
	switch {
	case !utf8.ValidString(p.Secret):
		return fmt.Errorf("%w: secret is not valid UTF-8", ErrEncoding)
	case !utf8.ValidString(p.UserID):
		return fmt.Errorf("%w: user id is not valid UTF-8", ErrEncoding)
	case !utf8.ValidString(p.Privileges):
		return fmt.Errorf("%w: privileges are not valid UTF-8", ErrEncoding)
	}
	return nil
}
