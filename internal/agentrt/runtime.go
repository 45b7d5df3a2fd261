package agentrt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/loomcore/loom/internal/broker"
	"github.com/loomcore/loom/internal/bus"
	"github.com/loomcore/loom/internal/envelope"
	"github.com/loomcore/loom/internal/observability"
	"github.com/loomcore/loom/pkg/loom"
)

// agentHandle is the runtime's private bookkeeping for one agent:
// its subscriptions, merged inbox, cancellation, and drop counter.
type agentHandle struct {
	id       string
	behavior Behavior
	state    *loom.AgentState
	subIDs   []string
	inbox    chan loom.Event

	mu     sync.Mutex
	status loom.AgentStatus

	cancel    context.CancelFunc
	stopFanIn context.CancelFunc
	done      chan struct{}
}

func (h *agentHandle) setStatus(s loom.AgentStatus) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

func (h *agentHandle) Status() loom.AgentStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Runtime owns every agent task in the process: it fans events from
// the bus into each agent's behavior and dispatches returned actions
// through the broker.
type Runtime struct {
	bus     *bus.Bus
	broker  *broker.Broker
	metrics *observability.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	agents map[string]*agentHandle
}

// NewRuntime constructs a Runtime. logger and metrics may be nil.
func NewRuntime(b *bus.Bus, brk *broker.Broker, logger *slog.Logger, metrics *observability.Metrics) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		bus:     b,
		broker:  brk,
		metrics: metrics,
		logger:  logger.With("component", "agentrt"),
		agents:  make(map[string]*agentHandle),
	}
}

// CreateAgent subscribes to every topic in cfg (fanning them into one
// merged inbox), starts the agent's task, and calls behavior.OnInit
// before the task begins draining events.
func (r *Runtime) CreateAgent(ctx context.Context, cfg Config, behavior Behavior) (string, error) {
	if cfg.AgentID == "" {
		cfg.AgentID = uuid.NewString()
	}

	r.mu.RLock()
	_, exists := r.agents[cfg.AgentID]
	r.mu.RUnlock()
	if exists {
		return "", fmt.Errorf("agentrt: agent %q already registered", cfg.AgentID)
	}

	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}

	handle := &agentHandle{
		id:       cfg.AgentID,
		behavior: behavior,
		state:    loom.NewAgentState(cfg.AgentID),
		inbox:    make(chan loom.Event, inboxSize),
		status:   loom.AgentCreated,
		done:     make(chan struct{}),
	}

	fanInCtx, stopFanIn := context.WithCancel(ctx)
	handle.stopFanIn = stopFanIn
	for _, topic := range cfg.Topics {
		subID, queue := r.bus.Subscribe(topic, cfg.EventTypeFilter, cfg.QoS)
		handle.subIDs = append(handle.subIDs, subID)
		go fanIn(fanInCtx, queue, handle.inbox)
	}

	if err := behavior.OnInit(ctx, handle.state); err != nil {
		for _, subID := range handle.subIDs {
			r.bus.Unsubscribe(subID)
		}
		return "", fmt.Errorf("agentrt: on_init failed for %q: %w", cfg.AgentID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle.cancel = cancel

	r.mu.Lock()
	r.agents[cfg.AgentID] = handle
	r.mu.Unlock()

	go r.run(runCtx, handle)

	return cfg.AgentID, nil
}

// fanIn forwards every event from src onto dst until src closes or ctx
// is cancelled, merging one bus subscription into an agent's single
// inbound queue. ctx cancellation unblocks a send stuck against a full
// inbox once the agent task has stopped draining it, avoiding a
// goroutine leak across DeleteAgent.
func fanIn(ctx context.Context, src <-chan loom.Event, dst chan<- loom.Event) {
	for {
		select {
		case event, ok := <-src:
			if !ok {
				return
			}
			select {
			case dst <- event:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// run is the agent task: it drains the merged inbox until cancelled, a
// panic in behavior code is caught and transitions the agent to
// Failed rather than crashing the runtime.
func (r *Runtime) run(ctx context.Context, h *agentHandle) {
	defer close(h.done)
	defer func() {
		if rec := recover(); rec != nil {
			h.setStatus(loom.AgentFailed)
			if r.metrics != nil {
				r.metrics.AgentFailedCounter.WithLabelValues(h.id).Inc()
			}
			r.logger.Error("agent task panicked", "agent", h.id, "panic", rec)
		}
	}()

	h.setStatus(loom.AgentRunning)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-h.inbox:
			if !ok {
				return
			}
			r.handleEvent(ctx, h, event)
		}
	}
}

// handleEvent applies the envelope's TTL/hop bookkeeping, dispatches
// to the agent's behavior, and forwards any returned actions to the
// broker. A behavior error is logged; the agent keeps running.
func (r *Runtime) handleEvent(ctx context.Context, h *agentHandle, event loom.Event) {
	env := envelope.FromEvent(event)
	if !env.NextHop() {
		if r.metrics != nil {
			r.metrics.AgentDropCounter.WithLabelValues(h.id).Inc()
		}
		r.logger.Debug("dropped event at ttl exhaustion", "agent", h.id, "event_id", event.ID)
		return
	}
	env.AttachToEvent(&event)

	actions, err := h.behavior.OnEvent(ctx, event, h.state)
	if err != nil {
		r.logger.Error("agent behavior error", "agent", h.id, "error", err)
		return
	}

	for _, action := range actions {
		r.dispatchAction(ctx, h, env, action)
	}
}

// dispatchAction invokes the broker using action.ActionType as the
// capability name, with QoS derived from the action's priority, then
// publishes the normalized result on the agent's reply topic.
func (r *Runtime) dispatchAction(ctx context.Context, h *agentHandle, env *envelope.Envelope, action loom.Action) {
	metadata := make(map[string]string, 8)
	env.AttachToMetadata(metadata)

	call := broker.ActionCall{
		ID:            uuid.NewString(),
		Name:          action.ActionType,
		ArgumentsJSON: action.ArgsJSON,
		Metadata:      metadata,
		QoS:           loom.QoSFromPriority(action.Priority),
	}
	result := r.broker.Invoke(ctx, call)

	payload, _ := json.Marshal(result)
	resultEvent := loom.NewEvent("action_result", h.id, payload)
	resultEvent.Metadata = map[string]string{
		"action_type": action.ActionType,
		"status":      string(result.Status),
	}
	env.AttachToEvent(&resultEvent)

	r.bus.Publish(ReplyTopic(h.id), resultEvent)
}

// ReplyTopic is the canonical topic an agent's action results are
// published on.
func ReplyTopic(agentID string) string {
	return "agent." + agentID
}

// AgentStatus returns the current status of agentID.
func (r *Runtime) AgentStatus(agentID string) (loom.AgentStatus, error) {
	r.mu.RLock()
	h, ok := r.agents[agentID]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("agentrt: %w: %s", errAgentNotFound, agentID)
	}
	return h.Status(), nil
}

// DeleteAgent cancels the agent's task at its next suspension point,
// calls OnShutdown on a best-effort basis, and unsubscribes all of its
// bus subscriptions.
func (r *Runtime) DeleteAgent(ctx context.Context, agentID string) error {
	r.mu.Lock()
	h, ok := r.agents[agentID]
	if ok {
		delete(r.agents, agentID)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("agentrt: %w: %s", errAgentNotFound, agentID)
	}

	h.cancel()
	<-h.done
	h.stopFanIn()

	func() {
		defer func() { recover() }()
		h.behavior.OnShutdown(ctx, h.state)
	}()

	for _, subID := range h.subIDs {
		r.bus.Unsubscribe(subID)
	}
	return nil
}

// Shutdown cancels every agent's task and unsubscribes all of their
// bus subscriptions.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.DeleteAgent(ctx, id)
	}
}
