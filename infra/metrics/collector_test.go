package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	coremetrics "github.com/kilianp07/sunledger/core/metrics"
	"github.com/kilianp07/sunledger/internal/eventbus"
)

type countingSink struct {
	coremetrics.NopSink
	mu       sync.Mutex
	readings int
	plans    int
}

func (c *countingSink) RecordReading(coremetrics.ReadingEvent) error {
	c.mu.Lock()
	c.readings++
	c.mu.Unlock()
	return nil
}

func (c *countingSink) RecordPlan(coremetrics.PlanEvent) error {
	c.mu.Lock()
	c.plans++
	c.mu.Unlock()
	return nil
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New[coremetrics.Event](16)
	sink := &countingSink{}
	done := StartEventCollector(context.Background(), bus, sink, nil)

	bus.Publish(coremetrics.ReadingEvent{Time: time.Now()})
	bus.Publish(coremetrics.PlanEvent{})
	bus.Publish(coremetrics.StateEvent{})
	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop after bus close")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.readings != 1 || sink.plans != 1 {
		t.Fatalf("unexpected counts readings=%d plans=%d", sink.readings, sink.plans)
	}
}

func TestStartEventCollectorStopsOnCancel(t *testing.T) {
	bus := eventbus.New[coremetrics.Event](0)
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, coremetrics.NopSink{}, nil)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop after cancel")
	}
	if nilDone := StartEventCollector(ctx, nil, nil, nil); nilDone == nil {
		t.Fatal("expected closed channel")
	}
}
