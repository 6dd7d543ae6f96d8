package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
)

// FingerprintInput is every attribute that changes the meaning of an issued KS.
type FingerprintInput struct {
	Secret        string
	PartnerID     int
	UserID        string
	Privileges    string
	SessionType   int
	Format        uint8
	ExpirySeconds int
}

// Fingerprint returns a stable hex key for in. The secret only enters as its own
// SHA-256, so the key is safe to store and rotates with the secret.
func Fingerprint(in FingerprintInput) string {
	secretHash := sha256.Sum256([]byte(in.Secret))

	h := sha256.New()
	_, _ = h.Write(secretHash[:])
	writeField(h, strconv.Itoa(in.PartnerID))
	writeField(h, in.UserID)
	writeField(h, in.Privileges)
	writeField(h, strconv.Itoa(in.SessionType))
	writeField(h, strconv.Itoa(int(in.Format)))
	writeField(h, strconv.Itoa(in.ExpirySeconds))
	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes s so adjacent fields cannot alias.
func writeField(w io.Writer, s string) {
	_, _ = w.Write([]byte(strconv.Itoa(len(s))))
	_, _ = w.Write([]byte{':'})
	_, _ = w.Write([]byte(s))
}
