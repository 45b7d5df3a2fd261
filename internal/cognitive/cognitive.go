// Package cognitive implements the optional perceive/think/act agent
// behavior: a bounded memory buffer, a pluggable abstract Thinker
// (no concrete LLM provider SDK — that seam is deliberately left to
// the caller), and a Loop that wires the three phases together as an
// agentrt.Behavior.
package cognitive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/loomcore/loom/internal/registry"
	"github.com/loomcore/loom/pkg/loom"
)

// ThinkingStrategy selects how the Think phase produces a Plan.
type ThinkingStrategy string

const (
	// SingleShot produces one Plan from one Think call with no further
	// reasoning rounds.
	SingleShot ThinkingStrategy = "single_shot"
	// ChainOfThought is like SingleShot from the loop's perspective — one
	// Think call yields a (possibly multi-step) Plan — but the Thinker is
	// expected to reason over multiple steps internally before answering.
	ChainOfThought ThinkingStrategy = "chain_of_thought"
	// ReAct interleaves one reasoning step, one tool call, and one
	// observation per iteration, up to MaxIterations.
	ReAct ThinkingStrategy = "react"
)

// Defaults for Config, per spec.md §6.
const (
	DefaultMaxIterations    = 5
	DefaultMemoryWindowSize = 50
)

// Config holds the cognitive loop's tunables.
type Config struct {
	MaxIterations    int              `yaml:"max_iterations"`
	MemoryWindowSize int              `yaml:"memory_window_size"`
	ToolTimeoutMs    int64            `yaml:"tool_timeout_ms"`
	RefineAfterTools bool             `yaml:"refine_after_tools"`
	MaxToolsExposed  int              `yaml:"max_tools_exposed"`
	ThinkingStrategy ThinkingStrategy `yaml:"thinking_strategy"`
}

// DefaultConfig returns a Config populated with spec defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    DefaultMaxIterations,
		MemoryWindowSize: DefaultMemoryWindowSize,
		ToolTimeoutMs:    registry.DefaultToolTimeout.Milliseconds(),
		ThinkingStrategy: SingleShot,
	}
}

// Perception is what the Perceive phase hands to Think: the extracted
// goal, recent memory, and the tool names currently available.
type Perception struct {
	Goal           string
	MemoryItems    []MemoryItem
	AvailableTools []string
	Event          loom.Event
}

// PlanToolCall is one tool invocation a Plan asks Act to perform.
type PlanToolCall struct {
	ToolName      string
	ArgumentsJSON json.RawMessage
}

// Plan is the Think phase's output: either a final answer (Act skips
// straight to done) or a sequence of tool calls for Act to execute in
// order.
type Plan struct {
	FinalAnswer string
	ToolCalls   []PlanToolCall
}

// Thinker is the abstract reasoning seam: no concrete LLM provider SDK
// is imported here, by the cognitive package, or anywhere else in the
// kernel — callers supply their own implementation.
type Thinker interface {
	Think(ctx context.Context, perception Perception, strategy ThinkingStrategy, observations []MemoryItem) (Plan, error)
}

// Refiner is an optional capability a Thinker may also implement: one
// more call synthesizing a final answer from Act's observations, used
// when Config.RefineAfterTools is set and Think didn't already return
// a final answer.
type Refiner interface {
	Refine(ctx context.Context, perception Perception, observations []MemoryItem) (string, error)
}

// Reflector is an optional capability a Thinker may also implement: a
// short critique of the run. Reflection is never fed back into the
// plan — its result is recorded for callers to inspect and nothing
// else.
type Reflector interface {
	Reflect(ctx context.Context, perception Perception, observations []MemoryItem) (string, error)
}

// Publisher is the narrow interface Loop needs to announce a finished
// run; *bus.Bus satisfies it.
type Publisher interface {
	Publish(topic string, event loom.Event) int
}

// Loop implements agentrt.Behavior as a perceive/think/act cycle over
// a Thinker and the shared tool registry.
type Loop struct {
	cfg       Config
	thinker   Thinker
	registry  *registry.Registry
	memory    *MemoryBuffer
	stats     *CognitiveRunStats
	publisher Publisher
	logger    *slog.Logger
}

// NewLoop constructs a Loop. publisher and logger may be nil.
func NewLoop(cfg Config, thinker Thinker, reg *registry.Registry, publisher Publisher, logger *slog.Logger) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ThinkingStrategy == "" {
		cfg.ThinkingStrategy = SingleShot
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:       cfg,
		thinker:   thinker,
		registry:  reg,
		memory:    NewMemoryBuffer(cfg.MemoryWindowSize),
		stats:     NewCognitiveRunStats(),
		publisher: publisher,
		logger:    logger.With("component", "cognitive.loop"),
	}
}

// Stats returns the loop's run-level accumulator.
func (l *Loop) Stats() CognitiveRunStatsSnapshot { return l.stats.Snapshot() }

// OnInit satisfies agentrt.Behavior; the loop carries no per-agent
// setup beyond what NewLoop already did.
func (l *Loop) OnInit(ctx context.Context, state *loom.AgentState) error { return nil }

// OnShutdown satisfies agentrt.Behavior; nothing to release.
func (l *Loop) OnShutdown(ctx context.Context, state *loom.AgentState) {}

// OnEvent runs Perceive, Think/Act (per the configured strategy), an
// optional Refine pass, and an optional Reflect pass, recording the
// final answer onto state.EphemeralContext. It always executes tool
// calls itself via the registry rather than returning Actions for the
// runtime to dispatch, since Act needs each tool result immediately to
// continue reasoning.
func (l *Loop) OnEvent(ctx context.Context, event loom.Event, state *loom.AgentState) ([]loom.Action, error) {
	start := time.Now()
	perception := l.perceive(event)

	answer, observations, err := l.act(ctx, perception)
	if err != nil {
		return nil, fmt.Errorf("cognitive: %w", err)
	}

	if answer == "" && l.cfg.RefineAfterTools && len(observations) > 0 {
		if refiner, ok := l.thinker.(Refiner); ok {
			refined, rerr := refiner.Refine(ctx, perception, observations)
			if rerr != nil {
				l.logger.Warn("refine failed", "agent", state.AgentID, "error", rerr)
			} else {
				answer = refined
			}
		}
	}

	if reflector, ok := l.thinker.(Reflector); ok {
		if critique, rerr := reflector.Reflect(ctx, perception, observations); rerr == nil {
			state.EphemeralContext["last_reflection"] = critique
		}
	}

	state.EphemeralContext["last_answer"] = answer
	state.LastUpdateMs = time.Now().UnixMilli()
	l.stats.recordWallTime(time.Since(start))

	if l.publisher != nil {
		resultEvent := loom.NewEvent("cognitive_result", state.AgentID, []byte(answer))
		resultEvent.Metadata = map[string]string{"goal": perception.Goal}
		l.publisher.Publish("agent."+state.AgentID+".cognitive", resultEvent)
	}

	return nil, nil
}

// perceive extracts a goal (metadata "goal", then "instruction", then
// falling back to the raw payload) and snapshots memory/available
// tools.
func (l *Loop) perceive(event loom.Event) Perception {
	goal := event.Metadata["goal"]
	if goal == "" {
		goal = event.Metadata["instruction"]
	}
	if goal == "" {
		goal = string(event.Payload)
	}
	return Perception{
		Goal:           goal,
		MemoryItems:    l.memory.Items(),
		AvailableTools: l.toolNames(),
		Event:          event,
	}
}

func (l *Loop) toolNames() []string {
	tools := l.registry.List()
	limit := l.cfg.MaxToolsExposed
	names := make([]string, 0, len(tools))
	for i, tool := range tools {
		if limit > 0 && i >= limit {
			break
		}
		names = append(names, tool.Name())
	}
	return names
}

// act runs Think/execute according to the configured strategy,
// returning a final answer (if one was produced) and the observations
// accumulated along the way.
func (l *Loop) act(ctx context.Context, perception Perception) (string, []MemoryItem, error) {
	if l.cfg.ThinkingStrategy == ReAct {
		return l.actReAct(ctx, perception)
	}
	return l.actSingleRound(ctx, perception)
}

func (l *Loop) actSingleRound(ctx context.Context, perception Perception) (string, []MemoryItem, error) {
	l.stats.recordIteration()
	plan, err := l.thinker.Think(ctx, perception, l.cfg.ThinkingStrategy, nil)
	if err != nil {
		return "", nil, fmt.Errorf("think: %w", err)
	}
	if plan.FinalAnswer != "" {
		return plan.FinalAnswer, nil, nil
	}

	observations := make([]MemoryItem, 0, len(plan.ToolCalls))
	for _, call := range plan.ToolCalls {
		observations = append(observations, l.executeToolCall(ctx, call))
	}
	return "", observations, nil
}

func (l *Loop) actReAct(ctx context.Context, perception Perception) (string, []MemoryItem, error) {
	maxIterations := l.cfg.MaxIterations
	observations := make([]MemoryItem, 0, maxIterations)

	for i := 0; i < maxIterations; i++ {
		l.stats.recordIteration()
		plan, err := l.thinker.Think(ctx, perception, ReAct, observations)
		if err != nil {
			return "", observations, fmt.Errorf("think: %w", err)
		}
		if plan.FinalAnswer != "" {
			return plan.FinalAnswer, observations, nil
		}
		if len(plan.ToolCalls) == 0 {
			return "", observations, nil
		}
		observations = append(observations, l.executeToolCall(ctx, plan.ToolCalls[0]))
	}
	return "", observations, nil
}

func (l *Loop) executeToolCall(ctx context.Context, call PlanToolCall) MemoryItem {
	l.stats.recordToolCall()

	result := l.registry.Call(ctx, loom.ToolCall{
		ID:            uuid.NewString(),
		Name:          call.ToolName,
		ArgumentsJSON: call.ArgumentsJSON,
		TimeoutMs:     l.cfg.ToolTimeoutMs,
	})

	item := MemoryItem{Role: "observation", Content: observationText(call.ToolName, result), TS: time.Now()}
	l.memory.Add(item)
	return item
}

func observationText(toolName string, result *loom.ToolResult) string {
	if result.Status != loom.StatusOk {
		msg := "unknown error"
		if result.Error != nil {
			msg = result.Error.Message
		}
		return fmt.Sprintf("%s: %s (%s)", toolName, msg, result.Status)
	}
	return fmt.Sprintf("%s: %s", toolName, string(result.OutputBytes))
}
