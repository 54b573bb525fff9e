// ABOUTME: Runtime-wide mirror: status, properties, context, tools, agent registry.
// ABOUTME: Sole creator/destroyer of Agent mirrors; reconciles the agent set.

package mirror

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-scope/internal/protocol"
)

// CoreSubscriber is a bundle of callbacks for coarse-grained runtime changes.
// Every field is optional; nil callbacks are skipped.
type CoreSubscriber struct {
	OnStatusChanged     func(status protocol.RuntimeStatus)
	OnPropertiesChanged func(properties map[string]json.RawMessage)
	OnError             func(err protocol.RuntimeError)
	OnContextChanged    func(entries map[string]protocol.ContextEntry)

	// OnAgentsChanged fires with the full reconciled registry after agent-set
	// changes, and after tool catalog updates (consumers typically re-render
	// both together).
	OnAgentsChanged func(agents map[string]*Agent)
}

// Core is the single source of truth, inside the inspection surface, for the
// remote runtime's coarse state. It owns the agent registry and is the only
// component that creates or destroys Agent mirrors. All state is in-memory
// and ephemeral; a full Reset is the only recovery path after the process
// that fed it goes away.
type Core struct {
	logger *slog.Logger

	mu             sync.Mutex
	status         protocol.RuntimeStatus
	properties     map[string]json.RawMessage
	lastError      *protocol.RuntimeError
	contextEntries map[string]protocol.ContextEntry
	tools          []json.RawMessage
	agents         map[string]*Agent
	subs           map[string]*CoreSubscriber
}

// NewCore creates an empty mirror. Pass nil logger for the default.
func NewCore(logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		logger:         logger.With("component", "mirror"),
		status:         protocol.StatusDisconnected,
		properties:     make(map[string]json.RawMessage),
		contextEntries: make(map[string]protocol.ContextEntry),
		agents:         make(map[string]*Agent),
		subs:           make(map[string]*CoreSubscriber),
	}
}

// Reset applies a full-replace payload, used when the mirror (re)connects to
// its source after being empty or stale. Sub-fields present in the payload
// are applied; omitted sub-fields fall back to their empty defaults
// (status disconnected, empty properties/context, no agents). Events are
// applied only when the payload carries them.
func (c *Core) Reset(p protocol.InitPayload) {
	status := protocol.StatusPayload{RuntimeStatus: protocol.StatusDisconnected}
	if p.Status != nil {
		status = *p.Status
	}
	c.UpdateStatus(status)

	c.ApplyAgents(protocol.AgentsPayload{Agents: p.Agents})
	c.UpdateTools(protocol.ToolsPayload{Tools: p.Tools})
	c.UpdateContext(protocol.ContextPayload{Context: p.Context})

	if p.Events != nil {
		c.ApplyEvents(protocol.EventsPayload{Events: p.Events})
	}
}

// UpdateStatus replaces the connection status and properties wholesale and
// notifies, in order: status-changed, properties-changed, and error if the
// payload carries one. The first two always fire, even when nothing differs
// from the previous value; there is no diffing. An unrecognized error code is
// normalized to the fallback code rather than dropped.
func (c *Core) UpdateStatus(p protocol.StatusPayload) {
	c.mu.Lock()
	c.status = p.RuntimeStatus
	c.properties = p.Properties
	if c.properties == nil {
		c.properties = make(map[string]json.RawMessage)
	}
	c.lastError = nil
	if p.LastError != nil {
		normalized := *p.LastError
		if !normalized.Code.Known() {
			c.logger.Debug("normalizing unrecognized error code",
				"code", string(normalized.Code))
			normalized.Code = normalized.Code.Normalize()
		}
		c.lastError = &normalized
	}

	status := c.status
	properties := cloneRawMap(c.properties)
	lastError := c.lastError
	subs := c.subscriberSnapshot()
	c.mu.Unlock()

	for _, s := range subs {
		if s.OnStatusChanged != nil {
			s.OnStatusChanged(status)
		}
	}
	for _, s := range subs {
		if s.OnPropertiesChanged != nil {
			s.OnPropertiesChanged(properties)
		}
	}
	if lastError != nil {
		for _, s := range subs {
			if s.OnError != nil {
				s.OnError(*lastError)
			}
		}
	}
}

// UpdateTools replaces the tool catalog wholesale and fires the agents-changed
// notification.
func (c *Core) UpdateTools(p protocol.ToolsPayload) {
	c.mu.Lock()
	c.tools = cloneRawSlice(p.Tools)
	registry := c.registrySnapshot()
	subs := c.subscriberSnapshot()
	c.mu.Unlock()

	c.notifyAgentsChanged(subs, registry)
}

// UpdateContext replaces the shared context map wholesale (no partial merge)
// and fires context-changed with the new map.
func (c *Core) UpdateContext(p protocol.ContextPayload) {
	entries := p.Context
	if entries == nil {
		entries = make(map[string]protocol.ContextEntry)
	}

	c.mu.Lock()
	c.contextEntries = entries
	snapshot := cloneContext(entries)
	subs := c.subscriberSnapshot()
	c.mu.Unlock()

	for _, s := range subs {
		if s.OnContextChanged != nil {
			s.OnContextChanged(snapshot)
		}
	}
}

// ApplyAgents reconciles the registry against the authoritative agent set:
// snapshots upsert their agent (creating the mirror on first sight), and
// agents absent from the payload are removed outright, dropping their
// subscribers with them. Snapshots without an agent ID are skipped silently.
// Exactly one agents-changed notification fires, carrying the full new
// registry rather than a diff.
func (c *Core) ApplyAgents(p protocol.AgentsPayload) {
	type upsert struct {
		agent *Agent
		snap  protocol.AgentSnapshot
	}

	c.mu.Lock()
	incoming := make(map[string]struct{}, len(p.Agents))
	upserts := make([]upsert, 0, len(p.Agents))
	for _, snap := range p.Agents {
		if snap.AgentID == "" {
			c.logger.Debug("skipping agent snapshot without agent id")
			continue
		}
		a, ok := c.agents[snap.AgentID]
		if !ok {
			a = newAgent(snap.AgentID, c.logger)
			c.agents[snap.AgentID] = a
		}
		incoming[snap.AgentID] = struct{}{}
		upserts = append(upserts, upsert{agent: a, snap: snap})
	}

	for id := range c.agents {
		if _, ok := incoming[id]; !ok {
			delete(c.agents, id)
			c.logger.Debug("removed agent mirror", "agent_id", id)
		}
	}

	registry := c.registrySnapshot()
	subs := c.subscriberSnapshot()
	c.mu.Unlock()

	for _, u := range upserts {
		u.agent.UpdateSnapshot(u.snap)
	}

	c.notifyAgentsChanged(subs, registry)
}

// ApplyEvents groups the flat event batch into per-agent sublists, preserving
// each agent's relative order from the input, and forwards each sublist to
// its agent mirror. An event for an unknown agent creates the mirror on
// demand; that agent has empty tool maps and no state until a real snapshot
// arrives. Events without an agent ID are skipped silently. Cross-agent
// delivery order follows first appearance in the batch.
func (c *Core) ApplyEvents(p protocol.EventsPayload) {
	c.mu.Lock()
	var order []string
	grouped := make(map[string][]protocol.InspectorEvent)
	for _, ev := range p.Events {
		if ev.AgentID == "" {
			c.logger.Debug("skipping event without agent id", "event_id", ev.ID)
			continue
		}
		if _, ok := grouped[ev.AgentID]; !ok {
			order = append(order, ev.AgentID)
		}
		grouped[ev.AgentID] = append(grouped[ev.AgentID], ev)
	}

	targets := make([]*Agent, 0, len(order))
	for _, id := range order {
		a, ok := c.agents[id]
		if !ok {
			a = newAgent(id, c.logger)
			c.agents[id] = a
			c.logger.Debug("auto-created agent mirror for event batch", "agent_id", id)
		}
		targets = append(targets, a)
	}
	c.mu.Unlock()

	for i, id := range order {
		targets[i].EmitEvents(grouped[id])
	}
}

// Subscribe registers a callback bundle and returns its revocation handle.
func (c *Core) Subscribe(sub *CoreSubscriber) *Subscription {
	subID := uuid.New().String()

	c.mu.Lock()
	c.subs[subID] = sub
	c.mu.Unlock()

	c.logger.Debug("core subscriber added", "sub_id", subID)

	return &Subscription{cancel: func() {
		c.mu.Lock()
		delete(c.subs, subID)
		c.mu.Unlock()
	}}
}

// Status returns the mirrored connection status.
func (c *Core) Status() protocol.RuntimeStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Properties returns a copy of the mirrored runtime properties.
func (c *Core) Properties() map[string]json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneRawMap(c.properties)
}

// LastError returns the most recent runtime error, nil if none was reported
// by the latest status payload.
func (c *Core) LastError() *protocol.RuntimeError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastError == nil {
		return nil
	}
	e := *c.lastError
	return &e
}

// Context returns a copy of the mirrored context entries.
func (c *Core) Context() map[string]protocol.ContextEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneContext(c.contextEntries)
}

// Tools returns a copy of the mirrored tool catalog.
func (c *Core) Tools() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneRawSlice(c.tools)
}

// Agents returns a copy of the agent registry.
func (c *Core) Agents() map[string]*Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registrySnapshot()
}

// Agent returns the mirror for the given agent ID.
func (c *Core) Agent(id string) (*Agent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.agents[id]
	return a, ok
}

func (c *Core) notifyAgentsChanged(subs []*CoreSubscriber, registry map[string]*Agent) {
	for _, s := range subs {
		if s.OnAgentsChanged != nil {
			s.OnAgentsChanged(registry)
		}
	}
}

// registrySnapshot copies the agent registry. Must be called with mu held.
func (c *Core) registrySnapshot() map[string]*Agent {
	registry := make(map[string]*Agent, len(c.agents))
	for id, a := range c.agents {
		registry[id] = a
	}
	return registry
}

// subscriberSnapshot copies the subscriber set. Must be called with mu held.
func (c *Core) subscriberSnapshot() []*CoreSubscriber {
	subs := make([]*CoreSubscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	return subs
}

func cloneContext(in map[string]protocol.ContextEntry) map[string]protocol.ContextEntry {
	out := make(map[string]protocol.ContextEntry, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
