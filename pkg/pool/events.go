package pool

import (
	"sync"
	"time"
)

// EventKind identifies a pool lifecycle event.
type EventKind string

const (
	EventClientConnected   EventKind = "clientConnected"
	EventClientAcquired    EventKind = "clientAcquired"
	EventClientRemoved     EventKind = "clientRemoved"
	EventPoolError         EventKind = "poolError"
	EventHealthCheckPassed EventKind = "healthCheckPassed"
	EventHealthCheckFailed EventKind = "healthCheckFailed"
	EventCircuitOpened     EventKind = "circuitBreakerOpened"
	EventCircuitClosed     EventKind = "circuitBreakerClosed"
	EventPoolClosed        EventKind = "poolClosed"
)

// Event is delivered synchronously to every subscriber, in subscription
// order. Err is set only for error-carrying kinds.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Err       error
}

type eventHub struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func (h *eventHub) subscribe(fn func(Event)) {
	h.mu.Lock()
	h.subs = append(h.subs, fn)
	h.mu.Unlock()
}

func (h *eventHub) notify(kind EventKind, err error) {
	h.mu.RLock()
	subs := make([]func(Event), len(h.subs))
	copy(subs, h.subs)
	h.mu.RUnlock()
	ev := Event{Kind: kind, Timestamp: time.Now(), Err: err}
	for _, fn := range subs {
		fn(ev)
	}
}
