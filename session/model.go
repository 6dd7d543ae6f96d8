package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goKaltura/ks"
)

// Type is the session kind. Values match the remote API enumeration.
type Type int

const (
	// TypeUser is a regular user session.
	TypeUser Type = 0
	// TypeAdmin is an administrative session.
	TypeAdmin Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeUser:
		return "user"
	case TypeAdmin:
		return "admin"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType accepts "user", "admin" or their numeric values.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user", "0":
		return TypeUser, nil
	case "admin", "2":
		return TypeAdmin, nil
	default:
		return 0, fmt.Errorf("unsupported session type %q", s)
	}
}

// Format selects the token wire format.
type Format = ks.Version

const (
	FormatV1 = ks.V1
	FormatV2 = ks.V2
)

// Spec is a finalized session. A Spec with a non-empty Secret produced by
// [SpecBuilder.Build] always carries a KS.
//
// Type is carried for callers; neither token format encodes it.
type Spec struct {
	Secret        string
	UserID        string
	PartnerID     int
	ExpirySeconds int
	Privileges    string
	Type          Type
	Format        Format

	KS string
	// IssuedAt is when KS was generated locally. Zero for a pre-supplied KS.
	IssuedAt time.Time
}

// Params returns the token inputs of s.
func (s Spec) Params() ks.Params {
	return ks.Params{
		Secret:        s.Secret,
		UserID:        s.UserID,
		PartnerID:     s.PartnerID,
		ExpirySeconds: s.ExpirySeconds,
		Privileges:    s.Privileges,
	}
}

// Authenticated reports whether s carries a KS.
func (s Spec) Authenticated() bool {
	return s.KS != ""
}

// ExpiresAt returns the local expiry of a generated KS, or the zero time when the KS
// was supplied by the caller.
func (s Spec) ExpiresAt() time.Time {
	if s.IssuedAt.IsZero() {
		return time.Time{}
	}
	return s.IssuedAt.Add(time.Duration(ks.NormalizeExpiry(s.ExpirySeconds)) * time.Second)
}

// String omits the secret and the token.
func (s Spec) String() string {
	return fmt.Sprintf("session{partner=%d user=%q type=%s format=%s privileges=%q expiry=%ds authenticated=%t}",
		s.PartnerID, s.UserID, s.Type, s.Format, s.Privileges, s.ExpirySeconds, s.Authenticated())
}

// Issue generates a fresh KS for spec with g and returns the updated copy.
func Issue(g *ks.Generator, spec Spec) (Spec, error) {
	if g == nil {
		g = ks.Default()
	}
	token, err := g.Generate(spec.Format, spec.Params())
	if err != nil {
		return Spec{}, err
	}
	spec.KS = token
	spec.IssuedAt = g.Now()
	return spec, nil
}
