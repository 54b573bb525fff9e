// ABOUTME: Inspector event record and the closed event tag taxonomy.
// ABOUTME: Unknown tags stay representable so future runtimes don't break the mirror.

package protocol

import "encoding/json"

// EventType tags an inspector event. The recognized set is closed at 17 tags;
// anything else is dispatched through the generic catch-all rather than
// rejected, so newer runtimes can emit tags this build has never seen.
type EventType string

const (
	EventRunStarted         EventType = "RUN_STARTED"
	EventRunFinished        EventType = "RUN_FINISHED"
	EventRunError           EventType = "RUN_ERROR"
	EventStepStarted        EventType = "STEP_STARTED"
	EventStepFinished       EventType = "STEP_FINISHED"
	EventTextMessageStart   EventType = "TEXT_MESSAGE_START"
	EventTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventTextMessageEnd     EventType = "TEXT_MESSAGE_END"
	EventToolCallStart      EventType = "TOOL_CALL_START"
	EventToolCallArgs       EventType = "TOOL_CALL_ARGS"
	EventToolCallEnd        EventType = "TOOL_CALL_END"
	EventToolCallResult     EventType = "TOOL_CALL_RESULT"
	EventStateSnapshot      EventType = "STATE_SNAPSHOT"
	EventStateDelta         EventType = "STATE_DELTA"
	EventMessagesSnapshot   EventType = "MESSAGES_SNAPSHOT"
	EventRawEvent           EventType = "RAW_EVENT"
	EventCustomEvent        EventType = "CUSTOM_EVENT"
)

// Known reports whether the tag is part of the recognized taxonomy.
func (t EventType) Known() bool {
	switch t {
	case EventRunStarted, EventRunFinished, EventRunError,
		EventStepStarted, EventStepFinished,
		EventTextMessageStart, EventTextMessageContent, EventTextMessageEnd,
		EventToolCallStart, EventToolCallArgs, EventToolCallEnd, EventToolCallResult,
		EventStateSnapshot, EventStateDelta, EventMessagesSnapshot,
		EventRawEvent, EventCustomEvent:
		return true
	}
	return false
}

// InspectorEvent is one lifecycle or streaming event observed in the remote
// runtime. Events are immutable once constructed; identity is the ID, which
// the producer assigns monotonically.
//
// The buffer fields (TextMessageBuffer, ToolCallBuffer, PartialToolCallArgs,
// ToolCallArgs, ToolCallName, Result) are owned by the event producer and
// carried through verbatim. The mirror never accumulates streamed chunks or
// re-derives these values.
type InspectorEvent struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agentId"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	TextMessageBuffer   string          `json:"textMessageBuffer,omitempty"`
	ToolCallBuffer      string          `json:"toolCallBuffer,omitempty"`
	ToolCallName        string          `json:"toolCallName,omitempty"`
	PartialToolCallArgs json.RawMessage `json:"partialToolCallArgs,omitempty"`
	ToolCallArgs        json.RawMessage `json:"toolCallArgs,omitempty"`
	Result              json.RawMessage `json:"result,omitempty"`
}
