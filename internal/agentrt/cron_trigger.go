package agentrt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/loomcore/loom/internal/bus"
	"github.com/loomcore/loom/pkg/loom"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronTriggerConfig configures a scheduled synthetic event publisher.
// Exactly one of CronExpr or Every should be set; CronExpr takes
// precedence when both are present.
type CronTriggerConfig struct {
	Topic     string
	EventType string
	Source    string
	CronExpr  string
	Every     time.Duration
}

// CronTrigger publishes a synthetic event onto a topic on a schedule,
// driving demos like a heartbeat agent without any external clock
// dependency beyond the standard library and robfig/cron's expression
// parser.
type CronTrigger struct {
	cfg      CronTriggerConfig
	schedule cron.Schedule
	bus      *bus.Bus
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewCronTrigger validates cfg's schedule and constructs a trigger
// that hasn't started yet.
func NewCronTrigger(cfg CronTriggerConfig, b *bus.Bus, logger *slog.Logger) (*CronTrigger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("agentrt: cron trigger requires a topic")
	}

	var schedule cron.Schedule
	switch {
	case cfg.CronExpr != "":
		parsed, err := cronParser.Parse(cfg.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("agentrt: invalid cron expression %q: %w", cfg.CronExpr, err)
		}
		schedule = parsed
	case cfg.Every > 0:
		schedule = everySchedule{interval: cfg.Every}
	default:
		return nil, fmt.Errorf("agentrt: cron trigger requires cron_expr or every")
	}

	return &CronTrigger{
		cfg:      cfg,
		schedule: schedule,
		bus:      b,
		logger:   logger.With("component", "agentrt.cron_trigger", "topic", cfg.Topic),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the trigger loop until Stop is called or ctx is done.
func (t *CronTrigger) Start(ctx context.Context) {
	go t.run(ctx)
}

func (t *CronTrigger) run(ctx context.Context) {
	defer close(t.done)

	for {
		now := time.Now()
		next := t.schedule.Next(now)
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			event := loom.NewEvent(t.cfg.EventType, t.cfg.Source, nil)
			t.bus.Publish(t.cfg.Topic, event)
		case <-ctx.Done():
			timer.Stop()
			return
		case <-t.stop:
			timer.Stop()
			return
		}
	}
}

// Stop halts the trigger loop and blocks until it has exited.
func (t *CronTrigger) Stop() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	<-t.done
}

// everySchedule implements cron.Schedule for a fixed interval, letting
// CronTrigger share one run loop for both "every" and cron-expression
// schedules.
type everySchedule struct {
	interval time.Duration
}

func (e everySchedule) Next(t time.Time) time.Time {
	return t.Add(e.interval)
}
