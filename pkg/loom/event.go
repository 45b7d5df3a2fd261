// Package loom holds the public wire types shared across the kernel:
// Event, Envelope constants, QoS, Tool, and tool call/result shapes.
// Nothing in this package touches I/O; it is the vocabulary every
// internal package builds on.
package loom

import (
	"time"

	"github.com/google/uuid"
)

// Event is an immutable message published on the bus. Callers should
// treat an Event as value-copied once handed to Publish; the Payload
// slice is shared read-only across subscribers and must not be mutated
// after publication.
type Event struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	TimestampMs int64             `json:"timestamp_ms"`
	Source      string            `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Payload     []byte            `json:"payload,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Priority    int               `json:"priority,omitempty"`
}

// NewEvent builds an Event with a fresh ID and the current wall clock,
// following the teacher's convention of stamping IDs and timestamps at
// construction rather than leaving them to the caller.
func NewEvent(eventType, source string, payload []byte) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		TimestampMs: time.Now().UnixMilli(),
		Source:      source,
		Payload:     payload,
		Metadata:    make(map[string]string),
	}
}

// Clone returns a deep-enough copy safe for a subscriber to mutate:
// Metadata and Tags get their own backing arrays; Payload is shared
// read-only, matching the spec's "reference-counted buffer" guidance.
func (e Event) Clone() Event {
	out := e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	if e.Tags != nil {
		out.Tags = append([]string(nil), e.Tags...)
	}
	return out
}
