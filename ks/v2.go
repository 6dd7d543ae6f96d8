package ks

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
)

// NonceSize is the number of random printable bytes leading a v2 body.
const NonceSize = 16

const (
	nonceMin = 65
	nonceMax = 125

	v2Prefix = "v2|"
)

// V2 builds an encrypted token:
//
//	base64url("v2|{pid}|" || AES128-CBC(reverse(SHA1(buf)) || buf))
//	buf = nonce || query(fields)
//
// The AES key is SHA1(secret)[0:16] and the IV is the fixed IV.
func (g *Generator) V2(p Params) (string, error) {
	if err := checkEncoding(p); err != nil {
		return "", err
	}

	nonce, err := g.nonce()
	if err != nil {
		return "", err
	}

	encoded := encodeFields(sessionFields(p))
	body := make([]byte, 0, NonceSize+len(encoded))
	body = append(body, nonce...)
	body = append(body, encoded...)

	sum := Digest(body)
	reverseBytes(sum[:])

	plain := make([]byte, 0, DigestSize+len(body))
	plain = append(plain, sum[:]...)
	plain = append(plain, body...)

	ciphertext, err := Encrypt(DeriveKey(p.Secret), IV[:], plain)
	if err != nil {
		return "", err
	}

	prefix := v2Prefix + strconv.Itoa(p.PartnerID) + "|"
	out := make([]byte, 0, len(prefix)+len(ciphertext))
	out = append(out, prefix...)
	out = append(out, ciphertext...)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// nonce reads NonceSize bytes and folds each into the printable range [65, 125].
func (g *Generator) nonce() ([]byte, error) {
	buf := make([]byte, NonceSize)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return nil, fmt.Errorf("%w: random source: %v", ErrCrypto, err)
	}
	for i, b := range buf {
		buf[i] = nonceMin + b%(nonceMax-nonceMin+1)
	}
	return buf, nil
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
