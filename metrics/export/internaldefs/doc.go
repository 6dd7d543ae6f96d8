// Package internaldefs holds the metric families, label names and histogram bounds
// shared by the Prometheus and OTel exporters.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
