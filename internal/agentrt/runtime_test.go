package agentrt

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/loomcore/loom/internal/broker"
	"github.com/loomcore/loom/internal/bus"
	"github.com/loomcore/loom/internal/registry"
	"github.com/loomcore/loom/pkg/loom"
)

type recordingBehavior struct {
	mu     sync.Mutex
	events []loom.Event
	action *loom.Action

	onInitErr error
}

func (b *recordingBehavior) OnInit(ctx context.Context, state *loom.AgentState) error {
	return b.onInitErr
}

func (b *recordingBehavior) OnEvent(ctx context.Context, event loom.Event, state *loom.AgentState) ([]loom.Action, error) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	if b.action != nil {
		return []loom.Action{*b.action}, nil
	}
	return nil, nil
}

func (b *recordingBehavior) OnShutdown(ctx context.Context, state *loom.AgentState) {}

func (b *recordingBehavior) seen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func newTestRuntime() (*Runtime, *bus.Bus) {
	b := bus.New(bus.DefaultConfig(), nil, nil)
	reg := registry.New(registry.DefaultConfig(), nil)
	brk := broker.New(broker.DefaultConfig(), reg, nil)
	return NewRuntime(b, brk, nil, nil), b
}

func TestCreateAgentReceivesEvents(t *testing.T) {
	rt, b := newTestRuntime()
	behavior := &recordingBehavior{}

	agentID, err := rt.CreateAgent(context.Background(), Config{Topics: []string{"topic.a"}}, behavior)
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	defer rt.Shutdown(context.Background())

	env := loom.NewEvent("x", "test", nil)
	attachTTL(&env, 16)
	b.Publish("topic.a", env)

	waitFor(t, func() bool { return behavior.seen() == 1 })

	status, err := rt.AgentStatus(agentID)
	if err != nil || status != loom.AgentRunning {
		t.Errorf("AgentStatus() = %v, %v, want Running", status, err)
	}
}

func TestAgentDropsEventAtTTLExhaustion(t *testing.T) {
	rt, b := newTestRuntime()
	behavior := &recordingBehavior{}

	_, err := rt.CreateAgent(context.Background(), Config{Topics: []string{"topic.ttl"}}, behavior)
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	defer rt.Shutdown(context.Background())

	event := loom.NewEvent("x", "test", nil)
	attachTTL(&event, 1)
	b.Publish("topic.ttl", event)

	time.Sleep(50 * time.Millisecond)
	if behavior.seen() != 0 {
		t.Errorf("expected event with ttl=1 to be dropped, behavior observed %d events", behavior.seen())
	}
}

func TestAgentObservesHopAfterSecondTTL(t *testing.T) {
	rt, b := newTestRuntime()
	behavior := &recordingBehavior{}

	_, err := rt.CreateAgent(context.Background(), Config{Topics: []string{"topic.ttl2"}}, behavior)
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	defer rt.Shutdown(context.Background())

	event := loom.NewEvent("x", "test", nil)
	attachTTL(&event, 2)
	b.Publish("topic.ttl2", event)

	waitFor(t, func() bool { return behavior.seen() == 1 })

	behavior.mu.Lock()
	got := behavior.events[0]
	behavior.mu.Unlock()

	if got.Metadata[loom.MetaHop] != "1" || got.Metadata[loom.MetaTTL] != "1" {
		t.Errorf("metadata hop/ttl = %s/%s, want 1/1", got.Metadata[loom.MetaHop], got.Metadata[loom.MetaTTL])
	}
}

func TestDeleteAgentUnsubscribesAndStops(t *testing.T) {
	rt, b := newTestRuntime()
	behavior := &recordingBehavior{}

	agentID, err := rt.CreateAgent(context.Background(), Config{Topics: []string{"topic.del"}}, behavior)
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}

	if err := rt.DeleteAgent(context.Background(), agentID); err != nil {
		t.Fatalf("DeleteAgent() error = %v", err)
	}

	event := loom.NewEvent("x", "test", nil)
	attachTTL(&event, 16)
	b.Publish("topic.del", event)

	time.Sleep(50 * time.Millisecond)
	if behavior.seen() != 0 {
		t.Error("expected no events after DeleteAgent")
	}

	if _, err := rt.AgentStatus(agentID); !Is(err, KindAgentNotFound) {
		t.Error("expected AgentStatus to report AgentNotFound after delete")
	}
}

func TestAgentDispatchesActionAndPublishesResult(t *testing.T) {
	b := bus.New(bus.DefaultConfig(), nil, nil)
	reg := registry.New(registry.DefaultConfig(), nil)
	reg.Register(&echoTool{})
	brk := broker.New(broker.DefaultConfig(), reg, nil)
	rt := NewRuntime(b, brk, nil, nil)

	behavior := &recordingBehavior{action: &loom.Action{ActionType: "echo", ArgsJSON: json.RawMessage(`"hi"`)}}
	agentID, err := rt.CreateAgent(context.Background(), Config{Topics: []string{"topic.act"}}, behavior)
	if err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	defer rt.Shutdown(context.Background())

	_, resultCh := b.Subscribe(ReplyTopic(agentID), nil, loom.Realtime)

	event := loom.NewEvent("x", "test", nil)
	attachTTL(&event, 16)
	b.Publish("topic.act", event)

	select {
	case result := <-resultCh:
		if result.Metadata["action_type"] != "echo" {
			t.Errorf("action_type = %q, want echo", result.Metadata["action_type"])
		}
		if result.Metadata["status"] != "ok" {
			t.Errorf("status = %q, want ok", result.Metadata["status"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action_result event")
	}
}

type echoTool struct{}

func (e *echoTool) Name() string                { return "echo" }
func (e *echoTool) Description() string         { return "echoes its arguments" }
func (e *echoTool) Parameters() json.RawMessage { return json.RawMessage(`{}`) }
func (e *echoTool) Call(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	return arguments, nil
}

func attachTTL(e *loom.Event, ttl int) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[loom.MetaThreadID] = "thread-1"
	e.Metadata[loom.MetaTTL] = strconv.Itoa(ttl)
	e.Metadata[loom.MetaHop] = "0"
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
