// ABOUTME: Tests for the per-agent mirror: snapshots, dispatch, fan-out.
// ABOUTME: Covers presence-gating, ordering, mid-dispatch subscribe/cancel.

package mirror

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-scope/internal/protocol"
)

func testAgent(t *testing.T, id string) *Agent {
	t.Helper()
	return newAgent(id, slog.Default())
}

func event(id, agentID string, typ protocol.EventType) protocol.InspectorEvent {
	return protocol.InspectorEvent{
		ID:        id,
		AgentID:   agentID,
		Type:      typ,
		Timestamp: 1,
		Payload:   json.RawMessage(`{}`),
	}
}

func TestAgent_UpdateSnapshotReplacesToolMapsWholesale(t *testing.T) {
	a := testAgent(t, "a1")

	a.UpdateSnapshot(protocol.AgentSnapshot{
		AgentID: "a1",
		ToolHandlers: map[string]json.RawMessage{
			"search": json.RawMessage(`{"kind":"handler"}`),
			"write":  json.RawMessage(`{"kind":"handler"}`),
		},
	})
	require.Len(t, a.ToolHandlers(), 2)

	// A later snapshot with one handler replaces, never merges.
	a.UpdateSnapshot(protocol.AgentSnapshot{
		AgentID: "a1",
		ToolHandlers: map[string]json.RawMessage{
			"search": json.RawMessage(`{"kind":"handler"}`),
		},
	})
	handlers := a.ToolHandlers()
	require.Len(t, handlers, 1)
	assert.Contains(t, handlers, "search")

	// Absent maps clear to empty.
	a.UpdateSnapshot(protocol.AgentSnapshot{AgentID: "a1"})
	assert.Empty(t, a.ToolHandlers())
	assert.Empty(t, a.ToolRenderers())
}

func TestAgent_UpdateSnapshotStateIsPresenceGated(t *testing.T) {
	a := testAgent(t, "a1")

	stateChanges := 0
	sub := a.Subscribe(&AgentSubscriber{
		OnStateChanged: func(json.RawMessage) { stateChanges++ },
	})
	defer sub.Cancel()

	a.UpdateSnapshot(protocol.AgentSnapshot{
		AgentID: "a1",
		State:   json.RawMessage(`{"step":3}`),
	})
	require.Equal(t, 1, stateChanges)
	assert.JSONEq(t, `{"step":3}`, string(a.State()))

	// A tools-only update must not clear state it doesn't know about.
	a.UpdateSnapshot(protocol.AgentSnapshot{
		AgentID:      "a1",
		ToolHandlers: map[string]json.RawMessage{"search": json.RawMessage(`{}`)},
	})
	assert.Equal(t, 1, stateChanges)
	assert.JSONEq(t, `{"step":3}`, string(a.State()))

	// An explicitly carried empty state does replace.
	a.UpdateSnapshot(protocol.AgentSnapshot{
		AgentID: "a1",
		State:   json.RawMessage(`null`),
	})
	assert.Equal(t, 2, stateChanges)
	assert.Equal(t, "null", string(a.State()))
}

func TestAgent_UpdateSnapshotMessagesArePresenceGated(t *testing.T) {
	a := testAgent(t, "a1")

	messageChanges := 0
	sub := a.Subscribe(&AgentSubscriber{
		OnMessagesChanged: func([]json.RawMessage) { messageChanges++ },
	})
	defer sub.Cancel()

	msgs := []json.RawMessage{json.RawMessage(`{"role":"user"}`)}
	a.UpdateSnapshot(protocol.AgentSnapshot{AgentID: "a1", Messages: &msgs})
	require.Equal(t, 1, messageChanges)
	require.Len(t, a.Messages(), 1)

	a.UpdateSnapshot(protocol.AgentSnapshot{AgentID: "a1"})
	assert.Equal(t, 1, messageChanges)
	assert.Len(t, a.Messages(), 1)

	empty := []json.RawMessage{}
	a.UpdateSnapshot(protocol.AgentSnapshot{AgentID: "a1", Messages: &empty})
	assert.Equal(t, 2, messageChanges)
	assert.Empty(t, a.Messages())
}

func TestAgent_EmitEventsPreservesOrderAcrossSubscribers(t *testing.T) {
	a := testAgent(t, "a1")

	var first, second []string
	record := func(into *[]string) *AgentSubscriber {
		return &AgentSubscriber{
			OnRunStarted:  func(p EventParams) { *into = append(*into, p.Event.ID) },
			OnRunFinished: func(p RunFinishedParams) { *into = append(*into, p.Event.ID) },
		}
	}
	s1 := a.Subscribe(record(&first))
	defer s1.Cancel()
	s2 := a.Subscribe(record(&second))
	defer s2.Cancel()

	a.EmitEvents([]protocol.InspectorEvent{
		event("e1", "a1", protocol.EventRunStarted),
		event("e2", "a1", protocol.EventRunFinished),
	})

	assert.Equal(t, []string{"e1", "e2"}, first)
	assert.Equal(t, []string{"e1", "e2"}, second)
}

func TestAgent_SubscriberAddedDuringDispatchSkipsCurrentEvent(t *testing.T) {
	a := testAgent(t, "a1")

	var late []string
	var addOnce bool
	sub := a.Subscribe(&AgentSubscriber{
		OnRunStarted: func(p EventParams) {
			if !addOnce {
				addOnce = true
				a.Subscribe(&AgentSubscriber{
					OnRunStarted: func(p EventParams) { late = append(late, p.Event.ID) },
				})
			}
		},
	})
	defer sub.Cancel()

	a.EmitEvents([]protocol.InspectorEvent{
		event("e1", "a1", protocol.EventRunStarted),
		event("e2", "a1", protocol.EventRunStarted),
	})

	// The subscriber added while e1 was dispatching sees e2 only.
	assert.Equal(t, []string{"e2"}, late)
}

func TestAgent_SubscriberRemovedDuringDispatchMissesNextEvent(t *testing.T) {
	a := testAgent(t, "a1")

	var seen []string
	var victim *Subscription
	victim = a.Subscribe(&AgentSubscriber{
		OnRunStarted: func(p EventParams) {
			seen = append(seen, p.Event.ID)
			victim.Cancel()
		},
	})

	a.EmitEvents([]protocol.InspectorEvent{
		event("e1", "a1", protocol.EventRunStarted),
		event("e2", "a1", protocol.EventRunStarted),
	})

	assert.Equal(t, []string{"e1"}, seen)
}

func TestAgent_StateDeltaFiresPrimaryAndStateChanged(t *testing.T) {
	a := testAgent(t, "a1")

	deltas := 0
	stateChanges := 0
	sub := a.Subscribe(&AgentSubscriber{
		OnStateDelta:   func(EventParams) { deltas++ },
		OnStateChanged: func(json.RawMessage) { stateChanges++ },
	})
	defer sub.Cancel()

	ev := event("e1", "a1", protocol.EventStateDelta)
	ev.Payload = nil // empty delta still signals a change
	a.EmitEvents([]protocol.InspectorEvent{ev})

	assert.Equal(t, 1, deltas)
	assert.Equal(t, 1, stateChanges)
}

func TestAgent_MessagesSnapshotFiresMessagesChanged(t *testing.T) {
	a := testAgent(t, "a1")

	snapshots := 0
	messageChanges := 0
	sub := a.Subscribe(&AgentSubscriber{
		OnMessagesSnapshot: func(EventParams) { snapshots++ },
		OnMessagesChanged:  func([]json.RawMessage) { messageChanges++ },
	})
	defer sub.Cancel()

	a.EmitEvents([]protocol.InspectorEvent{event("e1", "a1", protocol.EventMessagesSnapshot)})

	assert.Equal(t, 1, snapshots)
	assert.Equal(t, 1, messageChanges)
}

func TestAgent_UnrecognizedTagRoutesToCatchAll(t *testing.T) {
	a := testAgent(t, "a1")

	var generic []string
	typed := 0
	sub := a.Subscribe(&AgentSubscriber{
		OnRunStarted: func(EventParams) { typed++ },
		OnEvent:      func(p EventParams) { generic = append(generic, string(p.Event.Type)) },
	})
	defer sub.Cancel()

	a.EmitEvents([]protocol.InspectorEvent{event("e1", "a1", "FUTURE_TAG")})

	assert.Zero(t, typed)
	assert.Equal(t, []string{"FUTURE_TAG"}, generic)
}

func TestAgent_ToolCallParamsCarryProducerBuffersVerbatim(t *testing.T) {
	a := testAgent(t, "a1")

	var args ToolCallArgsParams
	var end ToolCallEndParams
	sub := a.Subscribe(&AgentSubscriber{
		OnToolCallArgs: func(p ToolCallArgsParams) { args = p },
		OnToolCallEnd:  func(p ToolCallEndParams) { end = p },
	})
	defer sub.Cancel()

	evArgs := event("e1", "a1", protocol.EventToolCallArgs)
	evArgs.ToolCallBuffer = `{"query":"go`
	evArgs.ToolCallName = "search"
	evArgs.PartialToolCallArgs = json.RawMessage(`{"query":"go"}`)

	evEnd := event("e2", "a1", protocol.EventToolCallEnd)
	evEnd.ToolCallName = "search"
	evEnd.ToolCallArgs = json.RawMessage(`{"query":"golang"}`)

	a.EmitEvents([]protocol.InspectorEvent{evArgs, evEnd})

	assert.Equal(t, `{"query":"go`, args.ToolCallBuffer)
	assert.Equal(t, "search", args.ToolCallName)
	assert.JSONEq(t, `{"query":"go"}`, string(args.PartialToolCallArgs))
	assert.Equal(t, "search", end.ToolCallName)
	assert.JSONEq(t, `{"query":"golang"}`, string(end.ToolCallArgs))
}

func TestAgent_DispatchAttachesAmbientContext(t *testing.T) {
	a := testAgent(t, "a1")

	msgs := []json.RawMessage{json.RawMessage(`{"role":"user"}`)}
	a.UpdateSnapshot(protocol.AgentSnapshot{
		AgentID:  "a1",
		State:    json.RawMessage(`{"step":1}`),
		Messages: &msgs,
	})

	var got EventParams
	sub := a.Subscribe(&AgentSubscriber{
		OnRunStarted: func(p EventParams) { got = p },
	})
	defer sub.Cancel()

	a.EmitEvents([]protocol.InspectorEvent{event("e1", "a1", protocol.EventRunStarted)})

	require.Same(t, a, got.Agent)
	assert.JSONEq(t, `{"step":1}`, string(got.State))
	require.Len(t, got.Messages, 1)
	assert.Nil(t, got.Input)
}

func TestAgent_SubscriptionCancelIsIdempotent(t *testing.T) {
	a := testAgent(t, "a1")

	calls := 0
	sub := a.Subscribe(&AgentSubscriber{
		OnRunStarted: func(EventParams) { calls++ },
	})

	sub.Cancel()
	sub.Cancel()

	a.EmitEvents([]protocol.InspectorEvent{event("e1", "a1", protocol.EventRunStarted)})
	assert.Zero(t, calls)
}
