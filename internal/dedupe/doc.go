// Package dedupe provides a TTL-based cache for skipping redelivered ingest
// frames. The mirror assumes ordered delivery; dedupe only guards against the
// transport replaying a frame it already delivered.
package dedupe
