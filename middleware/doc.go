// Package middleware exposes HTTP middleware that admits requests carrying a valid KS.
//
// # Guards
//
//   - [Guard] verifies the token with a partner admin secret and rejects expired v1 tokens.
//   - [RequirePrivilege] additionally demands one privilege key.
//
// v2 tokens are rejected unless [AllowV2] is passed. They carry a lifetime but no issue
// time, so an admitted v2 token is never treated as expired.
//
// The token is read from the "ks" query parameter or an "Authorization: KS <token>"
// header. The verified [ks.Token] is stored in the request context.
//
// # What this package must NOT do
//
//   - Generate tokens.
//   - Access Redis.
//   - Echo the token or the reason for a rejection to the caller.
package middleware
