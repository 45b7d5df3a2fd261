// Package registry implements the tool registry: name-keyed lookup
// over native and external-tool-protocol tools, with a default
// invocation timeout, structured error results, and Prometheus
// counters/latency histograms.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loomcore/loom/internal/observability"
	"github.com/loomcore/loom/pkg/loom"
)

// ErrorKind is the registry's stable error taxonomy (spec.md §7).
type ErrorKind string

const (
	KindNotFound         ErrorKind = "NotFound"
	KindTimeout          ErrorKind = "Timeout"
	KindInvalidArguments ErrorKind = "InvalidArguments"
	KindExecutionFailed  ErrorKind = "ExecutionFailed"
	KindPermissionDenied ErrorKind = "PermissionDenied"
	KindInternal         ErrorKind = "Internal"
)

// DefaultToolTimeout is applied to a Call when the caller doesn't
// override TimeoutMs.
const DefaultToolTimeout = 30 * time.Second

// Config holds the registry's tunables.
type Config struct {
	DefaultToolTimeoutMs int64 `yaml:"default_tool_timeout_ms"`
}

// DefaultConfig returns a Config populated with spec defaults.
func DefaultConfig() Config {
	return Config{DefaultToolTimeoutMs: DefaultToolTimeout.Milliseconds()}
}

// Registry is a concurrently readable, name-keyed map of tools.
// Registration may replace an existing tool under the same name
// (last-write-wins); listeners are not notified.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]loom.Tool
	cfg     Config
	metrics *observability.Metrics
}

// New constructs an empty Registry. metrics may be nil.
func New(cfg Config, metrics *observability.Metrics) *Registry {
	if cfg.DefaultToolTimeoutMs <= 0 {
		cfg.DefaultToolTimeoutMs = DefaultToolTimeout.Milliseconds()
	}
	return &Registry{
		tools:   make(map[string]loom.Tool),
		cfg:     cfg,
		metrics: metrics,
	}
}

// Register inserts tool keyed by tool.Name(), replacing any existing
// entry under that name.
func (r *Registry) Register(tool loom.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (loom.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List enumerates every registered tool.
func (r *Registry) List() []loom.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]loom.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// Call looks up name, applies a timeout (cfg default unless call
// overrides it), invokes the tool, and normalizes the outcome into a
// ToolResult that never lets a tool-level error escape as a Go error.
func (r *Registry) Call(ctx context.Context, call loom.ToolCall) *loom.ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		r.recordInvocation(call.Name, loom.StatusNotFound)
		return &loom.ToolResult{
			ID:     call.ID,
			Status: loom.StatusNotFound,
			Error:  &loom.ToolError{Code: string(KindNotFound), Message: fmt.Sprintf("tool not found: %s", call.Name)},
		}
	}

	timeout := time.Duration(call.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(r.cfg.DefaultToolTimeoutMs) * time.Millisecond
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	type outcome struct {
		out json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := tool.Call(callCtx, call.ArgumentsJSON)
		done <- outcome{out, err}
	}()

	select {
	case <-callCtx.Done():
		if r.metrics != nil {
			r.metrics.RegistryTimeoutCounter.WithLabelValues(call.Name).Inc()
		}
		r.recordInvocation(call.Name, loom.StatusTimeout)
		r.recordLatency(call.Name, start)
		return &loom.ToolResult{
			ID:     call.ID,
			Status: loom.StatusTimeout,
			Error:  &loom.ToolError{Code: string(KindTimeout), Message: "tool call timed out"},
		}
	case res := <-done:
		r.recordLatency(call.Name, start)
		if res.err != nil {
			if r.metrics != nil {
				r.metrics.RegistryErrorCounter.WithLabelValues(call.Name, string(KindExecutionFailed)).Inc()
			}
			r.recordInvocation(call.Name, loom.StatusError)
			return &loom.ToolResult{
				ID:     call.ID,
				Status: loom.StatusError,
				Error:  &loom.ToolError{Code: string(KindExecutionFailed), Message: res.err.Error()},
			}
		}
		r.recordInvocation(call.Name, loom.StatusOk)
		return &loom.ToolResult{ID: call.ID, Status: loom.StatusOk, OutputBytes: res.out}
	}
}

func (r *Registry) recordInvocation(name string, status loom.ToolCallStatus) {
	if r.metrics != nil {
		r.metrics.RegistryInvocationCounter.WithLabelValues(name, string(status)).Inc()
	}
}

func (r *Registry) recordLatency(name string, start time.Time) {
	if r.metrics != nil {
		r.metrics.RegistryInvokeDurationVec.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// Is reports whether err carries the given ErrorKind as its ToolError code.
func Is(err error, kind ErrorKind) bool {
	var te *loom.ToolError
	if errors.As(err, &te) {
		return te.Code == string(kind)
	}
	return false
}
