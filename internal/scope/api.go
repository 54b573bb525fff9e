// ABOUTME: HTTP read API exposing the mirrored runtime to inspection clients.
// ABOUTME: JSON views of the mirror plus SSE streams backed by subscriptions.

package scope

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/2389/coven-scope/internal/mirror"
	"github.com/2389/coven-scope/internal/protocol"
)

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	RuntimeStatus protocol.RuntimeStatus     `json:"runtime_status"`
	Properties    map[string]json.RawMessage `json:"properties"`
	LastError     *protocol.RuntimeError     `json:"last_error,omitempty"`
}

// AgentSummary is one entry in the GET /api/agents response.
type AgentSummary struct {
	AgentID       string `json:"agent_id"`
	ToolHandlers  int    `json:"tool_handlers"`
	ToolRenderers int    `json:"tool_renderers"`
	Messages      int    `json:"messages"`
	HasState      bool   `json:"has_state"`
}

// AgentDetail is the JSON response for GET /api/agents/{id}.
type AgentDetail struct {
	AgentID       string                     `json:"agent_id"`
	ToolHandlers  map[string]json.RawMessage `json:"tool_handlers"`
	ToolRenderers map[string]json.RawMessage `json:"tool_renderers"`
	State         json.RawMessage            `json:"state,omitempty"`
	Messages      []json.RawMessage          `json:"messages"`
}

// handleStatus handles GET /api/status requests.
func (s *Scope) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, StatusResponse{
		RuntimeStatus: s.core.Status(),
		Properties:    s.core.Properties(),
		LastError:     s.core.LastError(),
	})
}

// handleContext handles GET /api/context requests.
func (s *Scope) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.core.Context())
}

// handleTools handles GET /api/tools requests. Descriptors are served as the
// runtime sent them; the mirror never interprets them.
func (s *Scope) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tools := s.core.Tools()
	if tools == nil {
		tools = []json.RawMessage{}
	}
	s.writeJSON(w, tools)
}

// handleListAgents handles GET /api/agents requests.
func (s *Scope) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents := s.core.Agents()
	response := make([]AgentSummary, 0, len(agents))
	for id, a := range agents {
		response = append(response, AgentSummary{
			AgentID:       id,
			ToolHandlers:  len(a.ToolHandlers()),
			ToolRenderers: len(a.ToolRenderers()),
			Messages:      len(a.Messages()),
			HasState:      a.State() != nil,
		})
	}
	s.writeJSON(w, response)
}

// handleAgentRoutes dispatches /api/agents/{id} and /api/agents/{id}/events.
func (s *Scope) handleAgentRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	parts := strings.Split(rest, "/")
	agentID := parts[0]
	if agentID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "agent id required")
		return
	}

	a, ok := s.core.Agent(agentID)
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "agent not found")
		return
	}

	switch {
	case len(parts) == 1:
		s.writeAgentDetail(w, a)
	case len(parts) == 2 && parts[1] == "events":
		s.streamAgentEvents(w, r, a)
	default:
		s.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

func (s *Scope) writeAgentDetail(w http.ResponseWriter, a *mirror.Agent) {
	messages := a.Messages()
	if messages == nil {
		messages = []json.RawMessage{}
	}
	s.writeJSON(w, AgentDetail{
		AgentID:       a.ID(),
		ToolHandlers:  a.ToolHandlers(),
		ToolRenderers: a.ToolRenderers(),
		State:         a.State(),
		Messages:      messages,
	})
}

// sseEvent is one queued server-sent event.
type sseEvent struct {
	name string
	data any
}

// handleWatch handles GET /api/watch: an SSE stream of coarse runtime
// notifications backed by a core subscription for the life of the request.
func (s *Scope) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch := make(chan sseEvent, 64)
	push := func(ev sseEvent) {
		// Non-blocking: a stalled SSE client must not stall mirror dispatch.
		select {
		case ch <- ev:
		default:
		}
	}

	sub := s.core.Subscribe(&mirror.CoreSubscriber{
		OnStatusChanged: func(status protocol.RuntimeStatus) {
			push(sseEvent{"status_changed", map[string]string{"runtime_status": string(status)}})
		},
		OnPropertiesChanged: func(properties map[string]json.RawMessage) {
			push(sseEvent{"properties_changed", properties})
		},
		OnError: func(err protocol.RuntimeError) {
			push(sseEvent{"error", err})
		},
		OnContextChanged: func(entries map[string]protocol.ContextEntry) {
			push(sseEvent{"context_changed", entries})
		},
		OnAgentsChanged: func(agents map[string]*mirror.Agent) {
			ids := make([]string, 0, len(agents))
			for id := range agents {
				ids = append(ids, id)
			}
			push(sseEvent{"agents_changed", map[string]any{"agent_ids": ids}})
		},
	})
	defer sub.Cancel()

	s.streamSSE(w, r, flusher, ch)
}

// streamAgentEvents serves GET /api/agents/{id}/events: every typed event the
// agent mirror dispatches, re-serialized as SSE.
func (s *Scope) streamAgentEvents(w http.ResponseWriter, r *http.Request, a *mirror.Agent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch := make(chan sseEvent, 64)
	push := func(name string, data any) {
		select {
		case ch <- sseEvent{name, data}:
		default:
		}
	}

	sub := a.Subscribe(eventStreamSubscriber(push))
	defer sub.Cancel()

	s.streamSSE(w, r, flusher, ch)
}

// eventStreamSubscriber maps every mirror callback onto an SSE push.
func eventStreamSubscriber(push func(name string, data any)) *mirror.AgentSubscriber {
	plain := func(name string) func(mirror.EventParams) {
		return func(p mirror.EventParams) { push(name, p.Event) }
	}
	text := func(name string) func(mirror.TextMessageParams) {
		return func(p mirror.TextMessageParams) { push(name, p.Event) }
	}

	return &mirror.AgentSubscriber{
		OnRunStarted:         plain("run_started"),
		OnRunFinished:        func(p mirror.RunFinishedParams) { push("run_finished", p.Event) },
		OnRunError:           plain("run_error"),
		OnStepStarted:        plain("step_started"),
		OnStepFinished:       plain("step_finished"),
		OnTextMessageStart:   plain("text_message_start"),
		OnTextMessageContent: text("text_message_content"),
		OnTextMessageEnd:     text("text_message_end"),
		OnToolCallStart:      plain("tool_call_start"),
		OnToolCallArgs:       func(p mirror.ToolCallArgsParams) { push("tool_call_args", p.Event) },
		OnToolCallEnd:        func(p mirror.ToolCallEndParams) { push("tool_call_end", p.Event) },
		OnToolCallResult:     plain("tool_call_result"),
		OnStateSnapshot:      plain("state_snapshot"),
		OnStateDelta:         plain("state_delta"),
		OnMessagesSnapshot:   plain("messages_snapshot"),
		OnRawEvent:           plain("raw_event"),
		OnCustomEvent:        plain("custom_event"),
		OnEvent:              plain("unknown_event"),
		OnStateChanged: func(state json.RawMessage) {
			push("state_changed", map[string]json.RawMessage{"state": state})
		},
		OnMessagesChanged: func(messages []json.RawMessage) {
			push("messages_changed", map[string]any{"messages": messages})
		},
	}
}

// streamSSE writes queued events to the client until it disconnects.
func (s *Scope) streamSSE(w http.ResponseWriter, r *http.Request, flusher http.Flusher, ch <-chan sseEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s.writeSSEEvent(w, "connected", map[string]string{"server_id": s.serverID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			s.writeSSEEvent(w, ev.name, ev.data)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Scope) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// writeJSON writes a JSON 200 response.
func (s *Scope) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Scope) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
