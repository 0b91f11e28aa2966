// Package bus provides the in-process publish/subscribe event bus that
// makes workflow state changes observable. Delivery is best-effort and
// fire-and-forget: a slow or failing subscriber can never stall a workflow.
package bus

import (
	"fmt"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
)

// DefaultHistorySize is how many published events the bus retains for
// inspection before dropping the oldest.
const DefaultHistorySize = 1000

// Event is one published message.
type Event struct {
	Name   string         `json:"event"`
	Data   map[string]any `json:"data,omitempty"`
	Source string         `json:"source"`
}

// Handler receives a published event. Returning an error (or panicking)
// is logged and isolated; it never affects other handlers or the
// publisher.
type Handler func(evt Event) error

type subscription struct {
	pattern string
	handler Handler
}

// Unsubscribe removes a subscription. Events already dispatched to the
// handler are unaffected.
type Unsubscribe func()

// Bus is an in-process broadcaster with glob-pattern subscriptions and a
// bounded history buffer.
//
// Patterns follow glob semantics: "workflow.started" matches only that
// event, "workflow.*" matches any event with that prefix, and "*" matches
// everything. `*` is not segment-bounded; event names use dots, which the
// matcher treats as ordinary characters.
type Bus struct {
	mu          sync.RWMutex
	subs        []*subscription
	history     []Event
	historySize int
	wg          sync.WaitGroup
	logger      *log.Logger
}

// New creates a bus with the default history capacity.
func New(logger *log.Logger) *Bus {
	return &Bus{historySize: DefaultHistorySize, logger: logger}
}

// NewWithHistory creates a bus retaining at most size events.
func NewWithHistory(logger *log.Logger, size int) *Bus {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Bus{historySize: size, logger: logger}
}

// Subscribe registers a handler for every event whose name matches the
// glob pattern. Multiple handlers may subscribe to overlapping patterns;
// all matching handlers fire on every publish. The returned Unsubscribe
// removes the handler; long-lived subscribers may discard it.
func (b *Bus) Subscribe(pattern string, handler Handler) Unsubscribe {
	sub := &subscription{pattern: pattern, handler: handler}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	b.logger.Debug("bus subscribe", "pattern", pattern)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish records the event in history and dispatches it to every
// matching handler. Handlers run concurrently with each other and with
// the publisher; Publish returns as soon as dispatch is scheduled.
func (b *Bus) Publish(name string, data map[string]any, source string) {
	evt := Event{Name: name, Data: data, Source: source}

	b.mu.Lock()
	b.history = append(b.history, evt)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
	matched := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		ok, err := doublestar.Match(sub.pattern, name)
		if err != nil {
			b.logger.Warn("bus pattern invalid", "pattern", sub.pattern, "error", err)
			continue
		}
		if ok {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.Unlock()

	b.logger.Info("bus publish", "event", name, "source", source, "handlers", len(matched))

	for _, handler := range matched {
		b.wg.Add(1)
		go b.dispatch(evt, handler)
	}
}

func (b *Bus) dispatch(evt Event, handler Handler) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus handler panicked", "event", evt.Name, "panic", fmt.Sprint(r))
		}
	}()
	if err := handler(evt); err != nil {
		b.logger.Warn("bus handler failed", "event", evt.Name, "error", err)
	}
}

// History returns the most recent events, newest last. A limit of 0
// returns the full retained buffer.
func (b *Bus) History(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := b.history
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]Event(nil), out...)
}

// Wait blocks until all in-flight handler goroutines have finished. Used
// during shutdown and in tests; publishers never call it.
func (b *Bus) Wait() {
	b.wg.Wait()
}
