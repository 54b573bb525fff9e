// Package mirror reconstructs a live, in-memory view of a remote copilot
// runtime from snapshot and event payloads, without any direct reference to
// the runtime itself.
//
// # Structure
//
// Two cooperating types:
//
//   - Core: the runtime-wide mirror. Connection status, shared properties,
//     context entries, the tool catalog, and the registry of Agent mirrors
//     keyed by agent ID. Core is the only component that creates or destroys
//     Agents: explicitly via ApplyAgents reconciliation, implicitly when an
//     event batch references an unknown agent ID.
//
//   - Agent: the per-agent mirror. Tool handler/renderer maps, latest state
//     and message list, and a set of typed event subscribers fed by
//     EmitEvents.
//
// # Update semantics
//
// Snapshot payloads replace fields wholesale. Agent state and messages are
// presence-gated: a snapshot that omits them leaves the previous value in
// place. Deltas are never resolved by the mirror; they are forwarded for the
// subscriber to interpret.
//
// # Dispatch contract
//
// All dispatch is synchronous and in input order per agent. The subscriber
// set is snapshotted before each event, so a subscriber added during dispatch
// of event K first sees K+1, and one removed during K never sees K+1.
// Callbacks are invoked outside the mirror's locks and may safely call back
// into it, including Subscribe and Cancel.
//
// # Degradation
//
// Malformed entries degrade to best-effort partial application: snapshots or
// events without an agent ID are skipped, unrecognized error codes fall back
// to a generic code, and unrecognized event tags route to a catch-all
// callback. Nothing in this package aborts a batch; a debugging surface must
// stay usable even when fed slightly inconsistent data.
package mirror
