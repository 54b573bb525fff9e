// ABOUTME: Boundary payload shapes consumed by the mirror layer.
// ABOUTME: Produced by an external transport; opaque values stay raw JSON.

package protocol

import "encoding/json"

// ContextEntry is one shared context value exposed by the runtime.
type ContextEntry struct {
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
}

// AgentSnapshot asserts the complete current value of one agent's mirrored
// fields. ToolHandlers and ToolRenderers always replace wholesale (absent
// means empty). State and Messages are presence-gated: an absent field means
// "no new information", not "clear to empty", so a tools-only update cannot
// accidentally wipe state the transport doesn't know about yet.
type AgentSnapshot struct {
	AgentID       string                     `json:"agentId"`
	ToolHandlers  map[string]json.RawMessage `json:"toolHandlers,omitempty"`
	ToolRenderers map[string]json.RawMessage `json:"toolRenderers,omitempty"`
	State         json.RawMessage            `json:"state,omitempty"`
	Messages      *[]json.RawMessage         `json:"messages,omitempty"`
}

// InitPayload is a full reset: everything present is applied, everything
// omitted falls back to its empty default.
type InitPayload struct {
	Status  *StatusPayload          `json:"status,omitempty"`
	Agents  []AgentSnapshot         `json:"agents,omitempty"`
	Tools   []json.RawMessage       `json:"tools,omitempty"`
	Context map[string]ContextEntry `json:"context,omitempty"`
	Events  []InspectorEvent        `json:"events,omitempty"`
}

// StatusPayload replaces the runtime connection status and properties.
type StatusPayload struct {
	RuntimeStatus RuntimeStatus              `json:"runtimeStatus"`
	Properties    map[string]json.RawMessage `json:"properties,omitempty"`
	LastError     *RuntimeError              `json:"lastError,omitempty"`
}

// ToolsPayload replaces the tool catalog. Descriptors are pass-through; the
// mirror does not interpret them.
type ToolsPayload struct {
	Tools []json.RawMessage `json:"tools"`
}

// ContextPayload replaces the shared context map wholesale.
type ContextPayload struct {
	Context map[string]ContextEntry `json:"context"`
}

// AgentsPayload is the authoritative agent set; agents absent from it are
// removed from the mirror.
type AgentsPayload struct {
	Agents []AgentSnapshot `json:"agents"`
}

// EventsPayload is an ordered batch of events, each carrying its own agent ID.
type EventsPayload struct {
	Events []InspectorEvent `json:"events"`
}
