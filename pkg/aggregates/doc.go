// Package aggregates caches per-request derived data such as dashboard
// statistics and shared page props.
//
// Entries are keyed by principal, effective company and aggregate name, so a
// company switch or a different user never sees another view's numbers.
// Concurrent misses for the same key are collapsed into one computation.
package aggregates
