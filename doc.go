// Package goKaltura issues Kaltura session tokens (KS) and attaches them to raw API calls.
//
// The package is designed for concurrent server workloads: Client methods are safe to call
// from multiple goroutines after construction through [Builder.Build].
//
// # Architecture boundaries
//
// goKaltura is the public surface. It exposes [Client], [Builder], [Config] and value types
// (MetricsSnapshot, AuditEvent). Token bytes are produced by package ks; session attributes,
// the immutable spec builder and the Redis token cache live in package session.
//
// # What this package must NOT do
//
//   - Log, print, or audit the admin secret or a KS value.
//   - Swallow token generation failures. They are returned to the caller; only
//     best-effort cache and audit failures are logged.
//   - Deserialize API responses into typed models. Responses are returned raw.
package goKaltura
