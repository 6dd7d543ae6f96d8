package ks

import "errors"

var (
	// ErrCrypto is returned when cipher initialization, padding, or the random source fails.
	ErrCrypto = errors.New("ks: crypto failure")
	// ErrEncoding is returned when a field cannot be serialized into the token layout.
	ErrEncoding = errors.New("ks: encoding failure")
	// ErrInvalidSpec is returned when session attributes violate the caller's policy.
	ErrInvalidSpec = errors.New("ks: invalid session spec")
	// ErrMalformed is returned when a token does not match either wire format.
	ErrMalformed = errors.New("ks: malformed token")
	// ErrSignature is returned when a token's signature or digest does not verify.
	ErrSignature = errors.New("ks: signature mismatch")
)
