// ABOUTME: Per-agent mirror: tool maps, state, messages, and typed event fan-out.
// ABOUTME: Translates a flat ordered event stream into per-tag subscriber callbacks.

package mirror

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-scope/internal/protocol"
)

// Agent holds the mirrored view of exactly one remote agent. It is created
// and destroyed only by its owning Core: explicitly when a snapshot for a new
// agent ID arrives, or implicitly when an event batch references an unknown
// ID. The ID is assigned at creation and never changes.
type Agent struct {
	id     string
	logger *slog.Logger

	mu            sync.Mutex
	toolHandlers  map[string]json.RawMessage
	toolRenderers map[string]json.RawMessage
	state         json.RawMessage
	messages      []json.RawMessage
	subs          map[string]*AgentSubscriber
}

// EventContext is the ambient view attached to every dispatched callback:
// the agent itself plus its mirrored messages and state as of dispatch time.
// Subscribers can inspect "current state as of now" alongside the specific
// event without separately querying the mirror.
type EventContext struct {
	Agent    *Agent
	Messages []json.RawMessage
	State    json.RawMessage

	// Input is reserved for the run input once the runtime reports it.
	// Always nil today.
	Input json.RawMessage
}

// EventParams is the callback parameter for event tags that carry no extra
// reshaped fields beyond the event itself.
type EventParams struct {
	EventContext
	Event protocol.InspectorEvent
}

// RunFinishedParams adds the producer-reported run result.
type RunFinishedParams struct {
	EventParams
	Result json.RawMessage
}

// TextMessageParams adds the producer-accumulated text buffer.
type TextMessageParams struct {
	EventParams
	TextMessageBuffer string
}

// ToolCallArgsParams adds the in-flight tool call buffers. All values come
// from the event verbatim; the mirror never accumulates chunks itself.
type ToolCallArgsParams struct {
	EventParams
	ToolCallBuffer      string
	ToolCallName        string
	PartialToolCallArgs json.RawMessage
}

// ToolCallEndParams adds the completed tool call name and arguments.
type ToolCallEndParams struct {
	EventParams
	ToolCallName string
	ToolCallArgs json.RawMessage
}

// AgentSubscriber is a bundle of callbacks for one subscriber. Every field is
// optional; nil callbacks are skipped. Callbacks run synchronously on the
// goroutine that feeds the mirror, in event order.
type AgentSubscriber struct {
	OnRunStarted         func(EventParams)
	OnRunFinished        func(RunFinishedParams)
	OnRunError           func(EventParams)
	OnStepStarted        func(EventParams)
	OnStepFinished       func(EventParams)
	OnTextMessageStart   func(EventParams)
	OnTextMessageContent func(TextMessageParams)
	OnTextMessageEnd     func(TextMessageParams)
	OnToolCallStart      func(EventParams)
	OnToolCallArgs       func(ToolCallArgsParams)
	OnToolCallEnd        func(ToolCallEndParams)
	OnToolCallResult     func(EventParams)
	OnStateSnapshot      func(EventParams)
	OnStateDelta         func(EventParams)
	OnMessagesSnapshot   func(EventParams)
	OnRawEvent           func(EventParams)
	OnCustomEvent        func(EventParams)

	// OnEvent is the catch-all for tags outside the recognized taxonomy.
	OnEvent func(EventParams)

	// OnStateChanged fires when a snapshot replaces the agent state, and on
	// STATE_SNAPSHOT / STATE_DELTA events.
	OnStateChanged func(state json.RawMessage)

	// OnMessagesChanged fires when a snapshot replaces the message list, and
	// on MESSAGES_SNAPSHOT events.
	OnMessagesChanged func(messages []json.RawMessage)
}

func newAgent(id string, logger *slog.Logger) *Agent {
	return &Agent{
		id:            id,
		logger:        logger.With("agent_id", id),
		toolHandlers:  make(map[string]json.RawMessage),
		toolRenderers: make(map[string]json.RawMessage),
		subs:          make(map[string]*AgentSubscriber),
	}
}

// ID returns the immutable agent identifier.
func (a *Agent) ID() string {
	return a.id
}

// ToolHandlers returns a copy of the mirrored tool handler map.
func (a *Agent) ToolHandlers() map[string]json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneRawMap(a.toolHandlers)
}

// ToolRenderers returns a copy of the mirrored tool renderer map.
func (a *Agent) ToolRenderers() map[string]json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneRawMap(a.toolRenderers)
}

// State returns the latest mirrored conversational state, nil if the runtime
// has not reported one yet.
func (a *Agent) State() json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Messages returns a copy of the latest mirrored message list.
func (a *Agent) Messages() []json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneRawSlice(a.messages)
}

// Subscribe registers a callback bundle and returns its revocation handle.
func (a *Agent) Subscribe(sub *AgentSubscriber) *Subscription {
	subID := uuid.New().String()

	a.mu.Lock()
	a.subs[subID] = sub
	a.mu.Unlock()

	a.logger.Debug("agent subscriber added", "sub_id", subID)

	return &Subscription{cancel: func() {
		a.mu.Lock()
		delete(a.subs, subID)
		a.mu.Unlock()
	}}
}

// UpdateSnapshot applies a whole-agent snapshot. Tool handler and renderer
// maps replace wholesale (absent means empty). State and messages replace
// only when the snapshot carries the field, even if the carried value is
// empty; each replacement fires its changed notification.
func (a *Agent) UpdateSnapshot(snap protocol.AgentSnapshot) {
	a.mu.Lock()

	a.toolHandlers = snap.ToolHandlers
	if a.toolHandlers == nil {
		a.toolHandlers = make(map[string]json.RawMessage)
	}
	a.toolRenderers = snap.ToolRenderers
	if a.toolRenderers == nil {
		a.toolRenderers = make(map[string]json.RawMessage)
	}

	stateChanged := snap.State != nil
	if stateChanged {
		a.state = snap.State
	}
	messagesChanged := snap.Messages != nil
	if messagesChanged {
		a.messages = *snap.Messages
	}

	state := a.state
	messages := cloneRawSlice(a.messages)
	subs := a.subscriberSnapshot()
	a.mu.Unlock()

	if stateChanged {
		for _, s := range subs {
			if s.OnStateChanged != nil {
				s.OnStateChanged(state)
			}
		}
	}
	if messagesChanged {
		for _, s := range subs {
			if s.OnMessagesChanged != nil {
				s.OnMessagesChanged(messages)
			}
		}
	}
}

// EmitEvents dispatches each event in order, synchronously, to every
// currently registered subscriber. By the time it returns, all events are
// fully fanned out. The subscriber set is snapshotted before each event: a
// subscriber added during dispatch of event K sees K+1 but not K, and a
// subscriber removed during K never sees K+1.
func (a *Agent) EmitEvents(events []protocol.InspectorEvent) {
	for _, ev := range events {
		a.dispatchEvent(ev)
	}
}

func (a *Agent) dispatchEvent(ev protocol.InspectorEvent) {
	a.mu.Lock()
	subs := a.subscriberSnapshot()
	state := a.state
	messages := cloneRawSlice(a.messages)
	a.mu.Unlock()

	base := EventParams{
		EventContext: EventContext{
			Agent:    a,
			Messages: messages,
			State:    state,
		},
		Event: ev,
	}

	switch ev.Type {
	case protocol.EventRunStarted:
		for _, s := range subs {
			if s.OnRunStarted != nil {
				s.OnRunStarted(base)
			}
		}

	case protocol.EventRunFinished:
		p := RunFinishedParams{EventParams: base, Result: ev.Result}
		for _, s := range subs {
			if s.OnRunFinished != nil {
				s.OnRunFinished(p)
			}
		}

	case protocol.EventRunError:
		for _, s := range subs {
			if s.OnRunError != nil {
				s.OnRunError(base)
			}
		}

	case protocol.EventStepStarted:
		for _, s := range subs {
			if s.OnStepStarted != nil {
				s.OnStepStarted(base)
			}
		}

	case protocol.EventStepFinished:
		for _, s := range subs {
			if s.OnStepFinished != nil {
				s.OnStepFinished(base)
			}
		}

	case protocol.EventTextMessageStart:
		for _, s := range subs {
			if s.OnTextMessageStart != nil {
				s.OnTextMessageStart(base)
			}
		}

	case protocol.EventTextMessageContent:
		p := TextMessageParams{EventParams: base, TextMessageBuffer: ev.TextMessageBuffer}
		for _, s := range subs {
			if s.OnTextMessageContent != nil {
				s.OnTextMessageContent(p)
			}
		}

	case protocol.EventTextMessageEnd:
		p := TextMessageParams{EventParams: base, TextMessageBuffer: ev.TextMessageBuffer}
		for _, s := range subs {
			if s.OnTextMessageEnd != nil {
				s.OnTextMessageEnd(p)
			}
		}

	case protocol.EventToolCallStart:
		for _, s := range subs {
			if s.OnToolCallStart != nil {
				s.OnToolCallStart(base)
			}
		}

	case protocol.EventToolCallArgs:
		p := ToolCallArgsParams{
			EventParams:         base,
			ToolCallBuffer:      ev.ToolCallBuffer,
			ToolCallName:        ev.ToolCallName,
			PartialToolCallArgs: ev.PartialToolCallArgs,
		}
		for _, s := range subs {
			if s.OnToolCallArgs != nil {
				s.OnToolCallArgs(p)
			}
		}

	case protocol.EventToolCallEnd:
		p := ToolCallEndParams{
			EventParams:  base,
			ToolCallName: ev.ToolCallName,
			ToolCallArgs: ev.ToolCallArgs,
		}
		for _, s := range subs {
			if s.OnToolCallEnd != nil {
				s.OnToolCallEnd(p)
			}
		}

	case protocol.EventToolCallResult:
		for _, s := range subs {
			if s.OnToolCallResult != nil {
				s.OnToolCallResult(base)
			}
		}

	case protocol.EventStateSnapshot:
		for _, s := range subs {
			if s.OnStateSnapshot != nil {
				s.OnStateSnapshot(base)
			}
		}
		for _, s := range subs {
			if s.OnStateChanged != nil {
				s.OnStateChanged(state)
			}
		}

	case protocol.EventStateDelta:
		for _, s := range subs {
			if s.OnStateDelta != nil {
				s.OnStateDelta(base)
			}
		}
		for _, s := range subs {
			if s.OnStateChanged != nil {
				s.OnStateChanged(state)
			}
		}

	case protocol.EventMessagesSnapshot:
		for _, s := range subs {
			if s.OnMessagesSnapshot != nil {
				s.OnMessagesSnapshot(base)
			}
		}
		for _, s := range subs {
			if s.OnMessagesChanged != nil {
				s.OnMessagesChanged(messages)
			}
		}

	case protocol.EventRawEvent:
		for _, s := range subs {
			if s.OnRawEvent != nil {
				s.OnRawEvent(base)
			}
		}

	case protocol.EventCustomEvent:
		for _, s := range subs {
			if s.OnCustomEvent != nil {
				s.OnCustomEvent(base)
			}
		}

	default:
		a.logger.Debug("unrecognized event tag, using catch-all",
			"type", string(ev.Type),
			"event_id", ev.ID,
		)
		for _, s := range subs {
			if s.OnEvent != nil {
				s.OnEvent(base)
			}
		}
	}
}

// subscriberSnapshot copies the subscriber set. Must be called with mu held.
func (a *Agent) subscriberSnapshot() []*AgentSubscriber {
	subs := make([]*AgentSubscriber, 0, len(a.subs))
	for _, s := range a.subs {
		subs = append(subs, s)
	}
	return subs
}

func cloneRawSlice(in []json.RawMessage) []json.RawMessage {
	if in == nil {
		return nil
	}
	out := make([]json.RawMessage, len(in))
	copy(out, in)
	return out
}

func cloneRawMap(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
