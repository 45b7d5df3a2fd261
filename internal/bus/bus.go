// Package bus implements the in-process topic pub/sub substrate: QoS
// tiered backpressure, event-type filtering, and per-topic delivery
// stats. The bus exclusively owns subscription queues; subscribers
// drain them, nothing else writes to them.
package bus

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/loomcore/loom/internal/observability"
	"github.com/loomcore/loom/pkg/loom"
)

// ErrShutdown names the bus's shut-down state. No Bus method returns
// it: per spec.md §7 shutdown is non-fatal for callers, so Publish
// after Shutdown simply returns 0 delivered.
var ErrShutdown = errors.New("bus: shut down")

// DefaultBackpressureThreshold is the soft cap on aggregate pending
// events per topic before Realtime subscribers start dropping
// proactively.
const DefaultBackpressureThreshold = 10_000

// Config holds the bus's tunables.
type Config struct {
	BackpressureThreshold int `yaml:"backpressure_threshold"`
}

// DefaultConfig returns a Config populated with spec defaults.
func DefaultConfig() Config {
	return Config{BackpressureThreshold: DefaultBackpressureThreshold}
}

// Stats is a snapshot of a topic's delivery counters.
type Stats struct {
	TotalPublished      int64
	TotalDelivered       int64
	ActiveSubscriptions  int
	BacklogSize          int
	DroppedEvents        int64
}

type subscriber struct {
	id     string
	topic  string
	filter map[string]struct{}
	qos    loom.QoS
	queue  chan loom.Event

	dropped   atomic.Int64
	delivered atomic.Int64

	closeOnce sync.Once
}

func (s *subscriber) matches(eventType string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[eventType]
	return ok
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
}

type topicCounters struct {
	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// Bus is the kernel's topic pub/sub substrate.
type Bus struct {
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	topics   map[string]map[string]*subscriber // topic -> subID -> subscriber
	subs     map[string]*subscriber             // subID -> subscriber (any topic)
	counters map[string]*topicCounters          // topic -> counters

	closed atomic.Bool
	stopCh chan struct{}
}

// New constructs a Bus. logger and metrics may be nil; logger defaults
// to slog.Default(), metrics recording is skipped when nil.
func New(cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BackpressureThreshold <= 0 {
		cfg.BackpressureThreshold = DefaultBackpressureThreshold
	}
	return &Bus{
		cfg:      cfg,
		logger:   logger.With("component", "bus"),
		metrics:  metrics,
		topics:   make(map[string]map[string]*subscriber),
		subs:     make(map[string]*subscriber),
		counters: make(map[string]*topicCounters),
		stopCh:   make(chan struct{}),
	}
}

func (b *Bus) topicCounters(topic string) *topicCounters {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.counters[topic]
	if !ok {
		c = &topicCounters{}
		b.counters[topic] = c
	}
	return c
}

// Subscribe binds a new subscription to topic with the given type
// filter and QoS, returning the subscription id and the receive-only
// queue the caller should drain.
func (b *Bus) Subscribe(topic string, eventTypeFilter []string, qos loom.QoS) (string, <-chan loom.Event) {
	filter := make(map[string]struct{}, len(eventTypeFilter))
	for _, t := range eventTypeFilter {
		filter[t] = struct{}{}
	}

	sub := &subscriber{
		id:     uuid.NewString(),
		topic:  topic,
		filter: filter,
		qos:    qos,
		queue:  make(chan loom.Event, qos.QueueCapacity()),
	}

	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*subscriber)
	}
	b.topics[topic][sub.id] = sub
	b.subs[sub.id] = sub
	b.mu.Unlock()

	b.logger.Debug("subscribed", "sub_id", sub.id, "topic", topic, "qos", qos.String())
	return sub.id, sub.queue
}

// Unsubscribe removes a subscription from all topics and closes its
// queue.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subs[subID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, subID)
	if byID := b.topics[sub.topic]; byID != nil {
		delete(byID, subID)
		if len(byID) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	b.mu.Unlock()

	sub.close()
	b.logger.Debug("unsubscribed", "sub_id", subID, "topic", sub.topic)
}

// Publish delivers event to every subscriber of topic whose type
// filter matches, applying each subscriber's QoS backpressure policy,
// and returns the number of subscribers the event was actually
// delivered to.
func (b *Bus) Publish(topic string, event loom.Event) int {
	if b.closed.Load() {
		return 0
	}

	counters := b.topicCounters(topic)
	counters.published.Add(1)
	if b.metrics != nil {
		b.metrics.BusPublishedCounter.WithLabelValues(topic).Inc()
	}

	b.mu.RLock()
	byID := b.topics[topic]
	matching := make([]*subscriber, 0, len(byID))
	for _, sub := range byID {
		if sub.matches(event.Type) {
			matching = append(matching, sub)
		}
	}
	b.mu.RUnlock()

	if len(matching) == 0 {
		return 0
	}

	aggregatePending := 0
	for _, sub := range matching {
		aggregatePending += len(sub.queue)
	}
	overThreshold := aggregatePending > b.cfg.BackpressureThreshold

	delivered := 0
	for _, sub := range matching {
		ev := event.Clone()
		switch sub.qos {
		case loom.Realtime:
			if overThreshold {
				b.recordDrop(sub, counters, topic)
				continue
			}
			select {
			case sub.queue <- ev:
				delivered++
				sub.delivered.Add(1)
				counters.delivered.Add(1)
				if b.metrics != nil {
					b.metrics.BusDeliveredCounter.WithLabelValues(topic).Inc()
				}
			default:
				b.recordDrop(sub, counters, topic)
			}
		default: // Batched, Background: suspend the publisher if full,
			// but never block past shutdown.
			select {
			case sub.queue <- ev:
				delivered++
				sub.delivered.Add(1)
				counters.delivered.Add(1)
				if b.metrics != nil {
					b.metrics.BusDeliveredCounter.WithLabelValues(topic).Inc()
				}
			case <-b.stopCh:
			}
		}
	}

	return delivered
}

func (b *Bus) recordDrop(sub *subscriber, counters *topicCounters, topic string) {
	sub.dropped.Add(1)
	counters.dropped.Add(1)
	if b.metrics != nil {
		b.metrics.BusDroppedCounter.WithLabelValues(topic, sub.qos.String()).Inc()
	}
}

// Stats returns a snapshot of delivery counters for topic.
func (b *Bus) Stats(topic string) Stats {
	counters := b.topicCounters(topic)

	b.mu.RLock()
	byID := b.topics[topic]
	active := len(byID)
	backlog := 0
	for _, sub := range byID {
		backlog += len(sub.queue)
	}
	b.mu.RUnlock()

	return Stats{
		TotalPublished:      counters.published.Load(),
		TotalDelivered:      counters.delivered.Load(),
		ActiveSubscriptions: active,
		BacklogSize:         backlog,
		DroppedEvents:       counters.dropped.Load(),
	}
}

// Shutdown closes every subscription queue. In-flight Publish calls may
// observe 0 delivered afterward; Publish called after Shutdown always
// returns 0.
func (b *Bus) Shutdown() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	close(b.stopCh)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.close()
	}
	b.topics = make(map[string]map[string]*subscriber)
	b.subs = make(map[string]*subscriber)
}
