// Package session models a Kaltura session (the attributes bound into a KS), builds
// finalized specs immutably, and caches issued tokens in Redis.
//
// # Binary encoding
//
// Cached tokens are stored as a compact versioned [Record]. The version byte comes
// first; decoders reject versions they do not know.
//
// # Architecture boundaries
//
// This package owns [Spec], [SpecBuilder], [Record] and [Store]. Token bytes are built by
// package ks; this package only decides when to ask for one.
//
// # What this package must NOT do
//
//   - Import goKaltura (no upward imports).
//   - Store or log the shared secret. Records hold the issued KS only.
package session
