// ABOUTME: Ingest endpoints that feed transport payload frames into the mirror.
// ABOUTME: Accepts single frames over POST and a frame stream over WebSocket.

package scope

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/2389/coven-scope/internal/protocol"
)

// FrameType names the payload kind carried by an ingest frame.
type FrameType string

const (
	FrameInit    FrameType = "init"
	FrameStatus  FrameType = "status"
	FrameTools   FrameType = "tools"
	FrameContext FrameType = "context"
	FrameAgents  FrameType = "agents"
	FrameEvents  FrameType = "events"
)

// Frame is the envelope the transport wraps every payload in. The optional ID
// lets the transport redeliver a frame safely: duplicates are acknowledged
// without being reapplied.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// errUnknownFrameType indicates a frame whose type field matched no payload kind.
var errUnknownFrameType = errors.New("unknown frame type")

// applyFrame decodes and applies one frame to the mirror. Returns false
// without applying when the frame is a duplicate.
func (s *Scope) applyFrame(f Frame) (applied bool, err error) {
	if f.ID != "" && s.dedupe.Seen(f.ID) {
		s.logger.Debug("skipping duplicate frame", "frame_id", f.ID, "type", string(f.Type))
		return false, nil
	}

	switch f.Type {
	case FrameInit:
		var p protocol.InitPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return false, fmt.Errorf("decoding init payload: %w", err)
		}
		s.core.Reset(p)

	case FrameStatus:
		var p protocol.StatusPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return false, fmt.Errorf("decoding status payload: %w", err)
		}
		s.core.UpdateStatus(p)

	case FrameTools:
		var p protocol.ToolsPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return false, fmt.Errorf("decoding tools payload: %w", err)
		}
		s.core.UpdateTools(p)

	case FrameContext:
		var p protocol.ContextPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return false, fmt.Errorf("decoding context payload: %w", err)
		}
		s.core.UpdateContext(p)

	case FrameAgents:
		var p protocol.AgentsPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return false, fmt.Errorf("decoding agents payload: %w", err)
		}
		s.core.ApplyAgents(p)

	case FrameEvents:
		var p protocol.EventsPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return false, fmt.Errorf("decoding events payload: %w", err)
		}
		s.core.ApplyEvents(p)

	default:
		return false, fmt.Errorf("%w: %q", errUnknownFrameType, f.Type)
	}

	return true, nil
}

// handleIngest handles POST /ingest requests carrying a single frame.
func (s *Scope) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var frame Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	applied, err := s.applyFrame(frame)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := "applied"
	if !applied {
		status = "duplicate"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// upgrader accepts any origin: the scope daemon is a loopback debugging
// surface and the data source is unauthenticated by design.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleIngestWS handles GET /ingest/ws, upgrading to a WebSocket over which
// the transport streams frames. Frames that fail to decode or apply are
// reported back on the socket and skipped; the stream keeps going so one bad
// frame can't take the whole feed down.
func (s *Scope) handleIngestWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("ingest stream connected", "remote", conn.RemoteAddr().String())

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("ingest stream closed unexpectedly", "error", err)
			} else {
				s.logger.Info("ingest stream closed")
			}
			return
		}

		applied, err := s.applyFrame(frame)
		ack := map[string]string{"frame_id": frame.ID, "status": "applied"}
		switch {
		case err != nil:
			s.logger.Warn("rejected ingest frame", "frame_id", frame.ID, "error", err)
			ack["status"] = "rejected"
			ack["error"] = err.Error()
		case !applied:
			ack["status"] = "duplicate"
		}
		if err := conn.WriteJSON(ack); err != nil {
			s.logger.Warn("failed to ack ingest frame", "error", err)
			return
		}
	}
}
