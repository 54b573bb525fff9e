// ABOUTME: Package documentation for the scope daemon.
// ABOUTME: Describes the HTTP surface and how it relates to the mirror.

// Package scope hosts the runtime mirror behind an HTTP surface.
//
// The daemon has two sides. The ingest side accepts payload frames from the
// runtime transport: single frames over POST /ingest, or a long-lived frame
// stream over a WebSocket at /ingest/ws. Each frame wraps one mirror payload
// (init, status, tools, context, agents, events); frames carrying an ID are
// deduplicated so the transport can redeliver safely.
//
// The read side serves inspection clients. JSON endpoints under /api expose
// the current mirrored state (status, context, tools, agents), and two SSE
// streams push changes as they happen: /api/watch for coarse runtime
// notifications, and /api/agents/{id}/events for the full typed event feed of
// one agent. SSE delivery is best-effort: a stalled client drops events
// rather than stalling mirror dispatch.
//
// All mirroring semantics live in the mirror package; scope only decodes
// frames, routes them to the right mirror operation, and re-serializes
// subscriber callbacks for clients.
package scope
