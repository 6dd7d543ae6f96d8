package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goKaltura/ks"
)

type tokenContextKey struct{}

// TokenFromContext returns the token verified by Guard.
func TokenFromContext(ctx context.Context) (*ks.Token, bool) {
	tok, ok := ctx.Value(tokenContextKey{}).(*ks.Token)
	return tok, ok
}

type guardOptions struct {
	allowV2 bool
}

// GuardOption changes which tokens Guard admits.
type GuardOption func(*guardOptions)

// AllowV2 admits v2 tokens. A v2 token carries its lifetime but not its issue time, so
// the guard cannot enforce expiry on it: a v2 token with a valid digest is admitted
// for as long as the secret is unchanged.
func AllowV2() GuardOption {
	return func(o *guardOptions) { o.allowV2 = true }
}

// Guard admits requests whose KS verifies against secret and has not expired. Only v1
// tokens are admitted unless AllowV2 is given. A nil clock uses time.Now.
func Guard(secret string, clock func() time.Time, opts ...GuardOption) func(http.Handler) http.Handler {
	return guard(secret, clock, "", opts)
}

// RequirePrivilege is Guard plus a check that the token carries privilege key.
func RequirePrivilege(secret string, clock func() time.Time, key string, opts ...GuardOption) func(http.Handler) http.Handler {
	return guard(secret, clock, key, opts)
}

func guard(secret string, clock func() time.Time, privilege string, opts []GuardOption) func(http.Handler) http.Handler {
	if clock == nil {
		clock = time.Now
	}
	var o guardOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			raw, ok := requestToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			tok, err := ks.Parse(raw, secret)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			switch tok.Version {
			case ks.V1:
				if tok.ExpiresAt <= clock().Unix() {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			case ks.V2:
				// no issue time to check against
				if !o.allowV2 {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			default:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if privilege != "" {
				if _, ok := tok.Privilege(privilege); !ok {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), tokenContextKey{}, tok)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestToken(r *http.Request) (string, bool) {
	if v := r.URL.Query().Get("ks"); v != "" {
		return v, true
	}

	const scheme = "KS "
	value := r.Header.Get("Authorization")
	if !strings.HasPrefix(value, scheme) {
		return "", false
	}
	token := strings.TrimSpace(value[len(scheme):])
	if token == "" {
		return "", false
	}
	return token, true
}
