// Package agentrt implements the agent runtime: per-agent supervised
// tasks fed by bus subscriptions, dispatching behavior-returned actions
// through the broker, and an optional CronTrigger helper that
// synthesizes events on a schedule.
package agentrt

import (
	"context"
	"errors"

	"github.com/loomcore/loom/pkg/loom"
)

// ErrorKind is the agent runtime's stable error taxonomy (spec.md §7).
type ErrorKind string

const KindAgentNotFound ErrorKind = "AgentNotFound"

var errAgentNotFound = errors.New(string(KindAgentNotFound))

// Is reports whether err wraps the agent-not-found sentinel.
func Is(err error, kind ErrorKind) bool {
	if kind != KindAgentNotFound {
		return false
	}
	return errors.Is(err, errAgentNotFound)
}

// Behavior is the per-agent logic invoked on init, each event, and
// shutdown. OnEvent may return zero or more Actions for the runtime to
// dispatch through the broker; returning an error logs it without
// stopping the agent.
type Behavior interface {
	OnInit(ctx context.Context, state *loom.AgentState) error
	OnEvent(ctx context.Context, event loom.Event, state *loom.AgentState) ([]loom.Action, error)
	OnShutdown(ctx context.Context, state *loom.AgentState)
}

// Config describes a single agent's subscriptions.
type Config struct {
	AgentID         string
	Topics          []string
	EventTypeFilter []string
	QoS             loom.QoS
	InboxSize       int
}

// DefaultInboxSize bounds the merged fan-in queue every agent drains,
// however many topics it subscribes to, when Config.InboxSize is unset.
const DefaultInboxSize = 256
