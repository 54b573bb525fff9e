// Package protocol defines the wire vocabulary shared between the transport
// feeding the mirror and the mirror itself: runtime status and error codes,
// the inspector event taxonomy, and the boundary payload shapes.
//
// The mirror treats payload contents as structurally trusted. Beyond field
// presence checks there is no schema validation here; malformed payloads are
// expected to be rejected upstream.
package protocol
