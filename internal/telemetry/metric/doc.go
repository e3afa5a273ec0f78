// Package metric provides Prometheus metrics for SaveVault.
//
//   - prometheus.go: registry, vault operation metrics and exposition
//   - collector.go: collector reading live vault state on scrape
//
// The CLI writes the text exposition to a file after each command
// (--metrics-out); Handler serves the same registry over HTTP.
package metric
