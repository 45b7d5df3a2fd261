package agentrt

import (
	"context"
	"testing"
	"time"

	"github.com/loomcore/loom/internal/bus"
	"github.com/loomcore/loom/pkg/loom"
)

func TestCronTriggerRequiresTopic(t *testing.T) {
	b := bus.New(bus.DefaultConfig(), nil, nil)
	_, err := NewCronTrigger(CronTriggerConfig{Every: time.Second}, b, nil)
	if err == nil {
		t.Fatal("expected error for missing topic")
	}
}

func TestCronTriggerRequiresSchedule(t *testing.T) {
	b := bus.New(bus.DefaultConfig(), nil, nil)
	_, err := NewCronTrigger(CronTriggerConfig{Topic: "heartbeat"}, b, nil)
	if err == nil {
		t.Fatal("expected error for missing schedule")
	}
}

func TestCronTriggerRejectsInvalidCronExpr(t *testing.T) {
	b := bus.New(bus.DefaultConfig(), nil, nil)
	_, err := NewCronTrigger(CronTriggerConfig{Topic: "heartbeat", CronExpr: "not a cron expr"}, b, nil)
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestCronTriggerEveryPublishesOnSchedule(t *testing.T) {
	b := bus.New(bus.DefaultConfig(), nil, nil)
	_, events := b.Subscribe("heartbeat", nil, loom.Realtime)

	trigger, err := NewCronTrigger(CronTriggerConfig{
		Topic:     "heartbeat",
		EventType: "tick",
		Source:    "cron",
		Every:     20 * time.Millisecond,
	}, b, nil)
	if err != nil {
		t.Fatalf("NewCronTrigger() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger.Start(ctx)
	defer trigger.Stop()

	select {
	case event := <-events:
		if event.Type != "tick" {
			t.Errorf("event.Type = %q, want tick", event.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first scheduled tick")
	}
}
