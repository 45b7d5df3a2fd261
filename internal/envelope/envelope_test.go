package envelope

import (
	"testing"

	"github.com/loomcore/loom/pkg/loom"
)

func TestNewFillsDefaults(t *testing.T) {
	env := New("thread-1", "agent-a")

	if env.CorrelationID != "thread-1" {
		t.Errorf("CorrelationID = %q, want %q", env.CorrelationID, "thread-1")
	}
	if env.ReplyTo != ReplyTopic("thread-1") {
		t.Errorf("ReplyTo = %q, want %q", env.ReplyTo, ReplyTopic("thread-1"))
	}
	if env.TTL != loom.DefaultTTL {
		t.Errorf("TTL = %d, want %d", env.TTL, loom.DefaultTTL)
	}
	if env.Hop != 0 {
		t.Errorf("Hop = %d, want 0", env.Hop)
	}
}

func TestNewThreadMintsUniqueIDs(t *testing.T) {
	a := NewThread("agent-a")
	b := NewThread("agent-a")
	if a.ThreadID == b.ThreadID {
		t.Error("expected NewThread to mint distinct thread ids")
	}
}

func TestReplyTopicAndBroadcastTopicDiffer(t *testing.T) {
	if ReplyTopic("t1") == BroadcastTopic("t1") {
		t.Error("expected reply and broadcast topics to differ")
	}
}

func TestAttachToEventRoundTrip(t *testing.T) {
	env := New("thread-1", "agent-a")
	env.Hop = 3
	env.TTL = 10

	e := loom.NewEvent("test.event", "agent-a", nil)
	env.AttachToEvent(&e)

	got := FromEvent(e)
	if got.ThreadID != env.ThreadID || got.CorrelationID != env.CorrelationID {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, env)
	}
	if got.Hop != 3 || got.TTL != 10 {
		t.Errorf("round trip hop/ttl = %d/%d, want 3/10", got.Hop, got.TTL)
	}
	if got.Sender != "agent-a" {
		t.Errorf("Sender = %q, want %q", got.Sender, "agent-a")
	}
}

func TestAttachToEventPreservesExistingMetadata(t *testing.T) {
	env := New("thread-1", "agent-a")
	e := loom.NewEvent("test.event", "agent-a", nil)
	e.Metadata = map[string]string{"custom": "value"}

	env.AttachToEvent(&e)

	if e.Metadata["custom"] != "value" {
		t.Error("expected AttachToEvent to preserve existing metadata keys")
	}
}

func TestFromMetadataFallsBackThreadID(t *testing.T) {
	env := FromMetadata(map[string]string{}, "fallback-id")
	if env.ThreadID != "fallback-id" {
		t.Errorf("ThreadID = %q, want %q", env.ThreadID, "fallback-id")
	}
	if env.TTL != loom.DefaultTTL {
		t.Errorf("TTL = %d, want default %d", env.TTL, loom.DefaultTTL)
	}
}

func TestApplyToToolCallStampsCorrelationAndThread(t *testing.T) {
	env := New("thread-1", "agent-a")
	call := &loom.ToolCall{ID: "call-1", Name: "echo"}

	env.ApplyToToolCall(call)

	if call.CorrelationID != env.CorrelationID {
		t.Errorf("CorrelationID = %q, want %q", call.CorrelationID, env.CorrelationID)
	}
	if call.Headers[loom.MetaThreadID] != env.ThreadID {
		t.Errorf("Headers[thread_id] = %q, want %q", call.Headers[loom.MetaThreadID], env.ThreadID)
	}
}

func TestNextHopDecrementsTTLAndIncrementsHop(t *testing.T) {
	env := New("thread-1", "agent-a")
	env.TTL = 2

	if alive := env.NextHop(); !alive {
		t.Fatal("expected envelope to still be alive after first hop")
	}
	if env.Hop != 1 || env.TTL != 1 {
		t.Errorf("hop/ttl = %d/%d, want 1/1", env.Hop, env.TTL)
	}

	if alive := env.NextHop(); alive {
		t.Error("expected envelope to be dead once ttl drops below 1")
	}
	if env.TTL != 0 {
		t.Errorf("TTL = %d, want 0", env.TTL)
	}
}
