// Package collab implements the three collaboration primitives built
// directly on the bus and the coordination envelope: request/reply,
// fanout/fanin, and contract-net. None of these hold any state beyond
// a single call — each mints its own envelope, subscribes for the
// duration of the call, and unsubscribes before returning.
package collab

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/loomcore/loom/internal/bus"
	"github.com/loomcore/loom/internal/envelope"
	"github.com/loomcore/loom/pkg/loom"
)

// ErrorKind identifies a collaboration failure by stable string, in
// the pattern used across the other kernel packages.
type ErrorKind string

// KindTimeout marks a request/reply call that did not receive a
// matching reply within its deadline. FanoutFanin never returns it: a
// timeout there yields the partial result with a nil error.
const KindTimeout ErrorKind = "Timeout"

var errTimeout = errors.New(string(KindTimeout))

// Is reports whether err is the sentinel for kind.
func Is(err error, kind ErrorKind) bool {
	if kind != KindTimeout {
		return false
	}
	return errors.Is(err, errTimeout)
}

// Reserved event types for the collaboration primitives.
const (
	TypeRequest  = "collab.request"
	TypeReply    = "collab.reply"
	TypeCFP      = "collab.cfp"
	TypeProposal = "collab.proposal"
)

// Collaborator implements request/reply, fanout/fanin, and
// contract-net on top of a shared Bus.
type Collaborator struct {
	bus *bus.Bus
}

// New constructs a Collaborator over bus b.
func New(b *bus.Bus) *Collaborator {
	return &Collaborator{bus: b}
}

// RequestReply mints a fresh thread, publishes payload as a
// collab.request to topic, and waits for the first collab.reply
// carrying the matching correlation id. It unsubscribes before
// returning in every case, including timeout and context
// cancellation.
func (c *Collaborator) RequestReply(ctx context.Context, topic, sender string, payload []byte, timeout time.Duration) (*loom.Event, error) {
	env := envelope.NewThread(sender)

	subID, replies := c.bus.Subscribe(env.ReplyTo, []string{TypeReply}, loom.Realtime)
	defer c.bus.Unsubscribe(subID)

	request := loom.NewEvent(TypeRequest, sender, payload)
	env.AttachToEvent(&request)
	c.bus.Publish(topic, request)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case event, ok := <-replies:
			if !ok {
				return nil, errTimeout
			}
			if envelope.FromEvent(event).CorrelationID == env.CorrelationID {
				return &event, nil
			}
		case <-deadline.C:
			return nil, errTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// FanoutFanin publishes the same request to every topic in topics and
// collects replies on the shared reply topic, returning as soon as k
// have arrived or timeout elapses, whichever comes first. Fewer than k
// replies is not an error; it returns whatever arrived.
func (c *Collaborator) FanoutFanin(ctx context.Context, topics []string, sender string, payload []byte, k int, timeout time.Duration) ([]loom.Event, error) {
	env := envelope.NewThread(sender)

	subID, replies := c.bus.Subscribe(env.ReplyTo, []string{TypeReply}, loom.Realtime)
	defer c.bus.Unsubscribe(subID)

	request := loom.NewEvent(TypeRequest, sender, payload)
	env.AttachToEvent(&request)
	for _, topic := range topics {
		c.bus.Publish(topic, request)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	collected := make([]loom.Event, 0, k)
	for len(collected) < k {
		select {
		case event, ok := <-replies:
			if !ok {
				return collected, nil
			}
			if envelope.FromEvent(event).CorrelationID == env.CorrelationID {
				collected = append(collected, event)
			}
		case <-deadline.C:
			return collected, nil
		case <-ctx.Done():
			return collected, ctx.Err()
		}
	}
	return collected, nil
}

// proposal pairs a collected collab.proposal event with its parsed
// score, so sorting doesn't re-parse metadata on every comparison.
type proposal struct {
	event loom.Event
	score float64
}

// ContractNet publishes a call-for-proposals on the thread's broadcast
// topic, collects collab.proposal replies on the thread's reply topic
// for collectWindow, and returns the topN ranked by metadata["score"]
// descending (missing or unparseable scores sort last, as -Inf).
// Announcing the winner to the broadcast topic is the caller's
// responsibility.
func (c *Collaborator) ContractNet(ctx context.Context, threadID, sender string, payload []byte, collectWindow time.Duration, topN int) ([]loom.Event, error) {
	env := envelope.New(threadID, sender)

	subID, replies := c.bus.Subscribe(env.ReplyTo, []string{TypeProposal}, loom.Realtime)
	defer c.bus.Unsubscribe(subID)

	cfp := loom.NewEvent(TypeCFP, sender, payload)
	env.AttachToEvent(&cfp)
	c.bus.Publish(envelope.BroadcastTopic(threadID), cfp)

	deadline := time.NewTimer(collectWindow)
	defer deadline.Stop()

	proposals := make([]proposal, 0)
collect:
	for {
		select {
		case event, ok := <-replies:
			if !ok {
				break collect
			}
			proposals = append(proposals, proposal{event: event, score: parseScore(event.Metadata["score"])})
		case <-deadline.C:
			break collect
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sort.SliceStable(proposals, func(i, j int) bool { return proposals[i].score > proposals[j].score })
	if topN > len(proposals) {
		topN = len(proposals)
	}
	out := make([]loom.Event, topN)
	for i := 0; i < topN; i++ {
		out[i] = proposals[i].event
	}
	return out, nil
}

func parseScore(raw string) float64 {
	if raw == "" {
		return math.Inf(-1)
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.Inf(-1)
	}
	return score
}
