package ks

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

// DefaultExpiry is the lifetime in seconds used when a session requests an expiry of 0.
const DefaultExpiry = 86400

// Version identifies a token wire format.
type Version uint8

const (
	// V1 is the plaintext, digest-signed format.
	V1 Version = 1
	// V2 is the encrypted, binary format.
	V2 Version = 2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("Version(%d)", uint8(v))
	}
}

// ParseVersion accepts "v1", "1", "v2" or "2".
func ParseVersion(s string) (Version, error) {
	switch s {
	case "v1", "1", "":
		return V1, nil
	case "v2", "2":
		return V2, nil
	default:
		return 0, fmt.Errorf("unsupported ks version %q", s)
	}
}

// Params are the session attributes bound into a token.
type Params struct {
	Secret        string
	UserID        string
	PartnerID     int
	ExpirySeconds int
	Privileges    string
}

// Config injects the capabilities a Generator reads from its environment.
type Config struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// Random supplies the v2 nonce bytes. Defaults to crypto/rand.Reader.
	Random io.Reader
}

// Generator produces tokens. It holds no mutable state and is safe for concurrent use
// as long as its Random reader is.
type Generator struct {
	clock  func() time.Time
	random io.Reader
}

// NewGenerator returns a Generator using cfg, filling unset capabilities with the
// process clock and crypto/rand.
func NewGenerator(cfg Config) *Generator {
	g := &Generator{clock: cfg.Clock, random: cfg.Random}
	if g.clock == nil {
		g.clock = time.Now
	}
	if g.random == nil {
		g.random = rand.Reader
	}
	return g
}

var defaultGenerator = NewGenerator(Config{})

// Default returns the Generator backed by time.Now and crypto/rand.
func Default() *Generator {
	return defaultGenerator
}

// Generate builds a token in format v.
func (g *Generator) Generate(v Version, p Params) (string, error) {
	switch v {
	case V1:
		return g.V1(p)
	case V2:
		return g.V2(p)
	default:
		return "", fmt.Errorf("%w: unsupported version %d", ErrInvalidSpec, uint8(v))
	}
}

// NormalizeExpiry maps 0 to DefaultExpiry. Negative values pass through.
func NormalizeExpiry(seconds int) int {
	if seconds == 0 {
		return DefaultExpiry
	}
	return seconds
}

// Now reads the generator's clock.
func (g *Generator) Now() time.Time {
	return g.clock()
}
