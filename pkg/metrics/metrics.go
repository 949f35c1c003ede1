// Package metrics emits statsd gauges and counts. Emission is
// fire-and-forget: when no client is configured every call is a no-op,
// and send errors are dropped.
package metrics

import (
	"sync"

	"github.com/DataDog/datadog-go/v5/statsd"
)

var (
	mu     sync.RWMutex
	client statsd.ClientInterface
)

// Setup connects the package-level statsd client. Call once at startup;
// components emit through Gauge/Count without holding a reference.
func Setup(addr string, namespace string) error {
	c, err := statsd.New(addr, statsd.WithNamespace(namespace))
	if err != nil {
		return err
	}
	mu.Lock()
	client = c
	mu.Unlock()
	return nil
}

func Gauge(name string, value float64, tags ...string) {
	mu.RLock()
	c := client
	mu.RUnlock()
	if c == nil {
		return
	}
	_ = c.Gauge(name, value, tags, 1)
}

func Count(name string, value int64, tags ...string) {
	mu.RLock()
	c := client
	mu.RUnlock()
	if c == nil {
		return
	}
	_ = c.Count(name, value, tags, 1)
}

// Close flushes and shuts down the client. Safe when Setup was never
// called.
func Close() {
	mu.Lock()
	c := client
	client = nil
	mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}
