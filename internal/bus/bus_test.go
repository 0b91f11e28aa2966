package bus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return New(log.New(io.Discard))
}

func TestSubscribeExactMatch(t *testing.T) {
	b := newTestBus()

	var mu sync.Mutex
	var got []string
	b.Subscribe("workflow.started", func(evt Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt.Name)
		return nil
	})

	b.Publish("workflow.started", nil, "test")
	b.Publish("workflow.completed", nil, "test")
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"workflow.started"}, got)
}

func TestSubscribeGlobPatterns(t *testing.T) {
	b := newTestBus()

	counts := map[string]int{}
	var mu sync.Mutex
	count := func(key string) Handler {
		return func(Event) error {
			mu.Lock()
			defer mu.Unlock()
			counts[key]++
			return nil
		}
	}

	b.Subscribe("workflow.*", count("prefix"))
	b.Subscribe("*", count("all"))
	b.Subscribe("approval.requested", count("exact"))

	b.Publish("workflow.outreach.started", nil, "test")
	b.Publish("approval.requested", nil, "test")
	b.Publish("agent.elena.running", nil, "test")
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	// "workflow.*" matches any suffix, not a single dotted segment.
	assert.Equal(t, 1, counts["prefix"])
	assert.Equal(t, 3, counts["all"])
	assert.Equal(t, 1, counts["exact"])
}

func TestOverlappingSubscribersAllFire(t *testing.T) {
	b := newTestBus()

	var mu sync.Mutex
	fired := 0
	for i := 0; i < 3; i++ {
		b.Subscribe("workflow.*", func(Event) error {
			mu.Lock()
			defer mu.Unlock()
			fired++
			return nil
		})
	}

	b.Publish("workflow.started", nil, "test")
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, fired)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus()

	var mu sync.Mutex
	delivered := 0
	unsubscribe := b.Subscribe("*", func(Event) error {
		mu.Lock()
		defer mu.Unlock()
		delivered++
		return nil
	})

	b.Publish("workflow.started", nil, "test")
	b.Wait()
	unsubscribe()
	b.Publish("workflow.completed", nil, "test")
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered)
}

func TestFailingHandlerDoesNotStopOthers(t *testing.T) {
	b := newTestBus()

	var mu sync.Mutex
	delivered := 0
	b.Subscribe("*", func(Event) error {
		return errors.New("boom")
	})
	b.Subscribe("*", func(Event) error {
		panic("much worse")
	})
	b.Subscribe("*", func(Event) error {
		mu.Lock()
		defer mu.Unlock()
		delivered++
		return nil
	})

	b.Publish("workflow.started", nil, "test")
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered)
}

func TestHistoryBounded(t *testing.T) {
	b := NewWithHistory(log.New(io.Discard), 5)

	for i := 0; i < 8; i++ {
		b.Publish(fmt.Sprintf("event.%d", i), nil, "test")
	}

	history := b.History(0)
	require.Len(t, history, 5)
	// Oldest entries dropped, newest last.
	assert.Equal(t, "event.3", history[0].Name)
	assert.Equal(t, "event.7", history[4].Name)

	tail := b.History(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "event.6", tail[0].Name)
}

func TestHistoryRecordsDataAndSource(t *testing.T) {
	b := newTestBus()
	b.Publish("approval.requested", map[string]any{"approval_id": "abc"}, "gate")

	history := b.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, "approval.requested", history[0].Name)
	assert.Equal(t, "gate", history[0].Source)
	assert.Equal(t, "abc", history[0].Data["approval_id"])
}
