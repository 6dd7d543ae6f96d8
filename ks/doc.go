// Package ks builds and inspects session tokens ("KS") accepted by the Kaltura API.
//
// Two wire formats are supported:
//
//   - v1: base64url(hex(SHA1(secret || payload)) || payload), where payload is a
//     semicolon-joined field string.
//   - v2: base64url("v2|" || partnerID || "|" || AES128-CBC(reverse(SHA1(buf)) || buf)),
//     where buf is a random nonce followed by query-string encoded fields.
//
// # Compatibility
//
// SHA-1, the fixed IV and zero padding are dictated by the remote service. They are not
// security choices and must not be replaced with stronger primitives: the service would
// reject every token.
//
// # What this package must NOT do
//
//   - Perform I/O other than reading the injected clock and random source.
//   - Log or swallow failures. Every error is returned to the caller.
//   - Import goKaltura or session (no upward imports).
package ks
