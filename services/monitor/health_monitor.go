// Package monitor runs the background health scheduler. Each tick probes
// every tracked connection and publishes a status event only when a
// connection's state changes.
package monitor

import (
	"context"
	"sync"
	"time"

	"dbmonitorapi/pkg/events"
	"dbmonitorapi/pkg/logger"
	"dbmonitorapi/services/adapter"
	"dbmonitorapi/services/registry"
)

// HealthMonitor periodically probes every connection the registry tracks.
// Probes for distinct keys run concurrently, each bounded by its own
// timeout; a tick waits for all of its probes, so ticks never overlap.
type HealthMonitor struct {
	reg          *registry.Registry
	bus          *events.Bus
	interval     time.Duration
	probeTimeout time.Duration

	mu        sync.RWMutex
	published map[string]bool // last published connected-state per key
	running   bool
	stopCh    chan struct{}
	done      chan struct{}
}

// New creates a stopped monitor.
func New(reg *registry.Registry, bus *events.Bus, interval, probeTimeout time.Duration) *HealthMonitor {
	return &HealthMonitor{
		reg:          reg,
		bus:          bus,
		interval:     interval,
		probeTimeout: probeTimeout,
		published:    make(map[string]bool),
	}
}

// Start launches the tick loop. Calling Start on a running monitor is a
// no-op.
func (m *HealthMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	logger.Infof("Health monitor started (interval %s)", m.interval)
	go m.loop()
}

// Stop interrupts the loop and waits for an in-flight tick to finish.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.mu.Unlock()

	<-done
	logger.Infof("Health monitor stopped")
}

func (m *HealthMonitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick probes every tracked key once and publishes the deltas. Exposed so
// tests can drive the monitor without the timer.
func (m *HealthMonitor) Tick() {
	keys := m.reg.TrackedKeys()
	if len(keys) == 0 {
		return
	}

	type result struct {
		key    string
		status adapter.Status
	}
	results := make(chan result, len(keys))
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
			defer cancel()
			results <- result{key: key, status: m.reg.Probe(ctx, key)}
		}(key)
	}
	wg.Wait()
	close(results)

	for r := range results {
		m.publishDelta(r.key, r.status)
	}
}

// publishDelta emits db_status_update only when the connected-state differs
// from the last published one for that key.
func (m *HealthMonitor) publishDelta(key string, st adapter.Status) {
	m.mu.Lock()
	last, seen := m.published[key]
	changed := !seen || last != st.Connected
	m.published[key] = st.Connected
	m.mu.Unlock()

	if !changed {
		return
	}
	logger.Infof("Connection %s is now %s", key, stateWord(st.Connected))
	m.bus.Publish(events.Event{
		Name: events.EventDBStatusUpdate,
		Payload: map[string]interface{}{
			"db_key": key,
			"status": st,
		},
	})
}

// Forget drops the published state for a deleted key so a re-created key
// publishes its first status again.
func (m *HealthMonitor) Forget(key string) {
	m.mu.Lock()
	delete(m.published, key)
	m.mu.Unlock()
}

func stateWord(connected bool) string {
	if connected {
		return "online"
	}
	return "offline"
}
