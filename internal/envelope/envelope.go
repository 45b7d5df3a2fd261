// Package envelope implements the stateless coordination operations
// described in the kernel spec: minting envelopes, parsing them back
// out of event metadata, attaching them to events/tool calls, and the
// hop/TTL bookkeeping that prevents collaboration loops.
package envelope

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/loomcore/loom/pkg/loom"
)

// Envelope carries the coordination fields spec'd in the kernel: a
// thread id, a correlation id for request/reply matching, a reply
// topic, the logical sender, and a decrementing TTL/hop pair used to
// prevent collaboration loops.
type Envelope struct {
	ThreadID      string
	CorrelationID string
	ReplyTo       string
	Sender        string
	TTL           int
	Hop           int
	TS            time.Time
}

// New fills in an envelope's defaults the way spec.md §4.1 prescribes:
// correlation_id defaults to thread_id, reply_to is derived from
// thread_id, ttl starts at loom.DefaultTTL, hop starts at zero.
func New(threadID, sender string) *Envelope {
	return &Envelope{
		ThreadID:      threadID,
		CorrelationID: threadID,
		ReplyTo:       ReplyTopic(threadID),
		Sender:        sender,
		TTL:           loom.DefaultTTL,
		Hop:           0,
		TS:            time.Now(),
	}
}

// NewThread mints a fresh thread id and returns an envelope for it,
// used by collaboration primitives that originate a new conversation.
func NewThread(sender string) *Envelope {
	return New(uuid.NewString(), sender)
}

// ReplyTopic derives the canonical reply topic for a thread id.
func ReplyTopic(threadID string) string {
	return "thread." + threadID + ".reply"
}

// BroadcastTopic derives the canonical broadcast topic for a thread id,
// used by contract-net's call-for-proposals step.
func BroadcastTopic(threadID string) string {
	return "thread." + threadID + ".broadcast"
}

// FromMetadata parses an envelope out of an event's metadata map,
// falling back thread_id to fallbackID when the key is absent. Unknown
// keys in metadata are not touched by this function; callers that round
// trip metadata are responsible for preserving them separately.
func FromMetadata(metadata map[string]string, fallbackID string) *Envelope {
	threadID := metadata[loom.MetaThreadID]
	if threadID == "" {
		threadID = fallbackID
	}

	correlationID := metadata[loom.MetaCorrelationID]
	if correlationID == "" {
		correlationID = threadID
	}

	replyTo := metadata[loom.MetaReplyTo]
	if replyTo == "" {
		replyTo = ReplyTopic(threadID)
	}

	ttl := loom.DefaultTTL
	if v, ok := metadata[loom.MetaTTL]; ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			ttl = parsed
		}
	}

	hop := 0
	if v, ok := metadata[loom.MetaHop]; ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			hop = parsed
		}
	}

	ts := time.Now()
	if v, ok := metadata[loom.MetaTS]; ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			ts = time.UnixMilli(parsed)
		}
	}

	return &Envelope{
		ThreadID:      threadID,
		CorrelationID: correlationID,
		ReplyTo:       replyTo,
		Sender:        metadata[loom.MetaSender],
		TTL:           ttl,
		Hop:           hop,
		TS:            ts,
	}
}

// FromEvent parses an envelope out of an event, falling back thread_id
// to the event's own id when the envelope was never attached.
func FromEvent(e loom.Event) *Envelope {
	return FromMetadata(e.Metadata, e.ID)
}

// AttachToEvent serializes the envelope into the event's reserved
// metadata keys, preserving every other key already present.
func (env *Envelope) AttachToEvent(e *loom.Event) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 7)
	}
	env.AttachToMetadata(e.Metadata)
}

// AttachToMetadata serializes the envelope into metadata's reserved
// keys in place, preserving every other key already present. Used
// anywhere an envelope rides on a plain string map rather than a
// loom.Event, such as the broker's ActionCall headers.
func (env *Envelope) AttachToMetadata(metadata map[string]string) {
	metadata[loom.MetaThreadID] = env.ThreadID
	metadata[loom.MetaCorrelationID] = env.CorrelationID
	metadata[loom.MetaReplyTo] = env.ReplyTo
	metadata[loom.MetaSender] = env.Sender
	metadata[loom.MetaTTL] = strconv.Itoa(env.TTL)
	metadata[loom.MetaHop] = strconv.Itoa(env.Hop)
	metadata[loom.MetaTS] = strconv.FormatInt(env.TS.UnixMilli(), 10)
}

// ApplyToToolCall stamps the envelope's correlation id onto a tool
// call, per spec.md's "correlation_id on a tool call is set equal to
// the envelope's correlation_id" rule.
func (env *Envelope) ApplyToToolCall(call *loom.ToolCall) {
	call.CorrelationID = env.CorrelationID
	if call.Headers == nil {
		call.Headers = make(map[string]string, 1)
	}
	call.Headers[loom.MetaThreadID] = env.ThreadID
}

// NextHop advances hop/ttl atomically from the caller's perspective
// (the envelope is owned by whichever task is currently processing the
// event, so no internal locking is needed) and reports whether the
// message is still alive. ttl+hop is preserved across the call.
func (env *Envelope) NextHop() bool {
	env.Hop++
	env.TTL--
	return env.TTL >= 1
}
