// Package internal contains helpers that are private to goKaltura: request ids and the
// cache fingerprint of a session.
//
// # What this package must NOT do
//
//   - Export types that appear in the public goKaltura API.
//   - Be imported by any package outside the goKaltura module.
package internal
