// Package broker implements the legacy ActionCall/ActionResult
// compatibility surface over the tool registry: version-qualified
// capability lookup, envelope population, and a bounded idempotency
// cache keyed by call id.
package broker

import (
	"context"
	"fmt"
	"strings"

	"encoding/json"

	"github.com/loomcore/loom/internal/cache"
	"github.com/loomcore/loom/internal/envelope"
	"github.com/loomcore/loom/internal/observability"
	"github.com/loomcore/loom/internal/registry"
	"github.com/loomcore/loom/pkg/loom"
)

// ErrorKind is the broker's stable error taxonomy (spec.md §7).
type ErrorKind string

const (
	KindCapabilityNotFound ErrorKind = "CapabilityNotFound"
	KindInvocationFailed   ErrorKind = "InvocationFailed"
	KindTimeout            ErrorKind = "Timeout"
	KindInvalidPayload     ErrorKind = "InvalidPayload"
)

// DefaultIdempotencyCacheSize is the default bound on cached results.
const DefaultIdempotencyCacheSize = 1024

// Config holds the broker's tunables.
type Config struct {
	IdempotencyCacheSize int `yaml:"idempotency_cache_size"`
}

// DefaultConfig returns a Config populated with spec defaults.
func DefaultConfig() Config {
	return Config{IdempotencyCacheSize: DefaultIdempotencyCacheSize}
}

// ActionStatus is the outcome of an ActionCall.
type ActionStatus string

const (
	StatusOk      ActionStatus = "ok"
	StatusError   ActionStatus = "error"
	StatusTimeout ActionStatus = "timeout"
)

// ActionError carries a structured failure from an ActionCall.
type ActionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ActionCall is the legacy capability-invocation request shape.
// Name may be bare ("echo") or version-qualified ("echo:v2"). When
// Version is set, it is appended to Name as "<Name>:<Version>"; a
// version suffix already present in Name is not stripped first.
type ActionCall struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Version       string            `json:"version,omitempty"`
	ArgumentsJSON json.RawMessage   `json:"arguments_json,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	TimeoutMs     int64             `json:"timeout_ms,omitempty"`
	QoS           loom.QoS          `json:"qos,omitempty"`
}

// ActionResult is the legacy capability-invocation response shape.
type ActionResult struct {
	ID          string          `json:"id"`
	Status      ActionStatus    `json:"status"`
	OutputBytes json.RawMessage `json:"output_bytes,omitempty"`
	Error       *ActionError    `json:"error,omitempty"`
}

// Broker wraps a registry.Registry with version-qualified lookup,
// envelope population, and a bounded idempotency cache.
type Broker struct {
	registry *registry.Registry
	cfg      Config
	metrics  *observability.Metrics
	cache    *cache.Cache
}

// New constructs a Broker over reg. metrics may be nil.
func New(cfg Config, reg *registry.Registry, metrics *observability.Metrics) *Broker {
	if cfg.IdempotencyCacheSize <= 0 {
		cfg.IdempotencyCacheSize = DefaultIdempotencyCacheSize
	}
	return &Broker{
		registry: reg,
		cfg:      cfg,
		metrics:  metrics,
		cache:    cache.New(cache.Options{MaxSize: cfg.IdempotencyCacheSize}),
	}
}

// Invoke resolves call's capability, populates its envelope if absent,
// checks the idempotency cache, and otherwise delegates to the
// registry, caching and normalizing the outcome.
func (b *Broker) Invoke(ctx context.Context, call ActionCall) *ActionResult {
	if call.ID != "" {
		if cached, ok := b.cache.Get(call.ID); ok {
			if b.metrics != nil {
				b.metrics.BrokerCacheHitCounter.Inc()
			}
			return cached.(*ActionResult)
		}
		if b.metrics != nil {
			b.metrics.BrokerCacheMissCounter.Inc()
		}
	}

	b.populateEnvelope(&call)

	toolName, err := b.resolve(call.Name, call.Version)
	if err != nil {
		result := &ActionResult{
			ID:     call.ID,
			Status: StatusError,
			Error:  &ActionError{Code: string(KindCapabilityNotFound), Message: err.Error()},
		}
		return result
	}

	toolCall := loom.ToolCall{
		ID:            call.ID,
		Name:          toolName,
		ArgumentsJSON: call.ArgumentsJSON,
		Headers:       call.Metadata,
		TimeoutMs:     call.TimeoutMs,
		CorrelationID: call.Metadata[loom.MetaCorrelationID],
		QoS:           call.QoS,
	}

	toolResult := b.registry.Call(ctx, toolCall)
	result := normalize(call.ID, toolResult)

	if call.ID != "" {
		b.cache.Put(call.ID, result)
		if b.metrics != nil {
			b.metrics.BrokerCacheSizeGauge.Set(float64(b.cache.Size()))
		}
	}
	return result
}

// resolve maps a capability name and optional version onto a
// registered tool name. With a version, lookup is exact on
// "<name>:<version>". Without one, a bare match on name is tried
// first, then any registered tool whose name has the "<name>:"
// prefix — per spec.md §4.6, order among multiple matches is
// undefined; callers should supply a version.
func (b *Broker) resolve(name, version string) (string, error) {
	if version != "" {
		key := name + ":" + version
		if _, ok := b.registry.Get(key); ok {
			return key, nil
		}
		return "", fmt.Errorf("capability not found: %s", key)
	}

	if _, ok := b.registry.Get(name); ok {
		return name, nil
	}

	prefix := name + ":"
	for _, tool := range b.registry.List() {
		if strings.HasPrefix(tool.Name(), prefix) {
			return tool.Name(), nil
		}
	}
	return "", fmt.Errorf("capability not found: %s", name)
}

// populateEnvelope mints a fresh envelope when call.Metadata has no
// thread_id, leaving an already-present envelope untouched.
func (b *Broker) populateEnvelope(call *ActionCall) {
	if call.Metadata == nil {
		call.Metadata = make(map[string]string, 7)
	}
	if call.Metadata[loom.MetaThreadID] != "" {
		return
	}
	env := envelope.NewThread("broker")
	env.AttachToMetadata(call.Metadata)
}

func normalize(id string, res *loom.ToolResult) *ActionResult {
	switch res.Status {
	case loom.StatusOk:
		return &ActionResult{ID: id, Status: StatusOk, OutputBytes: res.OutputBytes}
	case loom.StatusTimeout:
		return &ActionResult{
			ID:     id,
			Status: StatusTimeout,
			Error:  &ActionError{Code: string(KindTimeout), Message: "capability call timed out"},
		}
	default:
		code := string(KindInvocationFailed)
		message := "capability invocation failed"
		if res.Error != nil {
			code = res.Error.Code
			message = res.Error.Message
		}
		return &ActionResult{ID: id, Status: StatusError, Error: &ActionError{Code: code, Message: message}}
	}
}

// Is reports whether err's action error carries the given ErrorKind.
func Is(actionErr *ActionError, kind ErrorKind) bool {
	return actionErr != nil && actionErr.Code == string(kind)
}
