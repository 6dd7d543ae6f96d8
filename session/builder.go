package session

import (
	"fmt"
	"strings"

	"github.com/MrEthical07/goKaltura/ks"
)

// SpecBuilder accumulates session attributes. It is a value: every With method returns
// a modified copy and leaves the receiver untouched, so a partially configured builder
// can be shared and branched safely.
type SpecBuilder struct {
	spec          Spec
	generator     *ks.Generator
	requireUserID bool
}

// NewSpecBuilder returns a builder with the default expiry and the v1 format.
func NewSpecBuilder() SpecBuilder {
	return SpecBuilder{
		spec: Spec{
			ExpirySeconds: ks.DefaultExpiry,
			Type:          TypeUser,
			Format:        FormatV1,
		},
	}
}

func (b SpecBuilder) WithSecret(secret string) SpecBuilder {
	b.spec.Secret = secret
	return b
}

func (b SpecBuilder) WithUserID(userID string) SpecBuilder {
	b.spec.UserID = userID
	return b
}

func (b SpecBuilder) WithPartnerID(partnerID int) SpecBuilder {
	b.spec.PartnerID = partnerID
	return b
}

// WithExpiry sets the lifetime in seconds. 0 selects ks.DefaultExpiry.
func (b SpecBuilder) WithExpiry(seconds int) SpecBuilder {
	b.spec.ExpirySeconds = seconds
	return b
}

func (b SpecBuilder) WithPrivileges(privileges string) SpecBuilder {
	b.spec.Privileges = privileges
	return b
}

func (b SpecBuilder) WithType(t Type) SpecBuilder {
	b.spec.Type = t
	return b
}

func (b SpecBuilder) WithFormat(f Format) SpecBuilder {
	b.spec.Format = f
	return b
}

// WithKS supplies a token to use verbatim instead of generating one.
func (b SpecBuilder) WithKS(token string) SpecBuilder {
	b.spec.KS = token
	return b
}

// WithGenerator overrides the generator used by Build.
func (b SpecBuilder) WithGenerator(g *ks.Generator) SpecBuilder {
	b.generator = g
	return b
}

// RequireUserID makes Build reject a secret-bearing spec without a user id.
func (b SpecBuilder) RequireUserID(required bool) SpecBuilder {
	b.requireUserID = required
	return b
}

// Spec returns the attributes accumulated so far without finalizing them.
func (b SpecBuilder) Spec() Spec {
	return b.spec
}

// Build finalizes the spec. When a secret is present and no KS was supplied, a KS is
// generated; generation errors are returned and no partial spec escapes.
func (b SpecBuilder) Build() (Spec, error) {
	spec := b.spec
	spec.ExpirySeconds = ks.NormalizeExpiry(spec.ExpirySeconds)

	if spec.Secret == "" {
		return spec, nil
	}
	if b.requireUserID && strings.TrimSpace(spec.UserID) == "" {
		return Spec{}, fmt.Errorf("%w: user id required when a secret is set", ks.ErrInvalidSpec)
	}
	if spec.KS != "" {
		return spec, nil
	}
	return Issue(b.generator, spec)
}
