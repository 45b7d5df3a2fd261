package loom

// AgentState is the mutable state owned exclusively by an agent's task.
// Peers observe it only indirectly, via events the agent chooses to
// publish.
type AgentState struct {
	AgentID          string
	PersistentState  map[string]any
	EphemeralContext map[string]any
	LastUpdateMs     int64
	Metadata         map[string]string
}

// NewAgentState returns an AgentState with initialized maps.
func NewAgentState(agentID string) *AgentState {
	return &AgentState{
		AgentID:          agentID,
		PersistentState:  make(map[string]any),
		EphemeralContext: make(map[string]any),
		Metadata:         make(map[string]string),
	}
}

// AgentStatus is the lifecycle state of an agent task.
type AgentStatus string

const (
	AgentCreated  AgentStatus = "created"
	AgentRunning  AgentStatus = "running"
	AgentStopped  AgentStatus = "stopped"
	AgentFailed   AgentStatus = "failed"
)

// Action is a side effect an agent's Behavior asks the runtime to perform
// on its behalf: invoke a tool named ActionType through the broker.
type Action struct {
	ActionType string
	ArgsJSON   []byte
	Priority   int
}
