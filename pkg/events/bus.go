// Package events carries outbound status updates from the core to the
// presentation layer. The core publishes without blocking; a slow or absent
// consumer drops events rather than stalling a monitor tick.
package events

import (
	"sync"

	"dbmonitorapi/pkg/logger"
)

// Event names emitted by the core.
const (
	EventDBStatusUpdate    = "db_status_update"
	EventOnlineUsersUpdate = "online_users_update"
)

// Event is a named payload pushed to the presentation layer.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload"`
}

// Bus is a bounded single-channel publish queue.
type Bus struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewBus creates a bus with the given buffer size.
func NewBus(size int) *Bus {
	if size < 1 {
		size = 64
	}
	return &Bus{ch: make(chan Event, size)}
}

// Publish enqueues an event. Never blocks: when the buffer is full the event
// is dropped and a warning logged.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.ch <- e:
	default:
		logger.Warnf("event bus full, dropping %s event", e.Name)
	}
}

// Events returns the consumer side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close stops the bus. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// Presence tracks connected clients per user and republishes the online
// roster whenever it changes.
type Presence struct {
	mu    sync.Mutex
	bus   *Bus
	conns map[string]int
}

// NewPresence creates a presence tracker publishing to bus.
func NewPresence(bus *Bus) *Presence {
	return &Presence{bus: bus, conns: make(map[string]int)}
}

// Connect records one client connection for user and publishes the roster.
func (p *Presence) Connect(user string) {
	if user == "" {
		return
	}
	p.mu.Lock()
	p.conns[user]++
	roster := p.rosterLocked()
	p.mu.Unlock()
	p.bus.Publish(Event{Name: EventOnlineUsersUpdate, Payload: map[string]interface{}{"online_users": roster}})
}

// Disconnect records one client disconnect for user and publishes the roster.
func (p *Presence) Disconnect(user string) {
	if user == "" {
		return
	}
	p.mu.Lock()
	if n, ok := p.conns[user]; ok {
		if n <= 1 {
			delete(p.conns, user)
		} else {
			p.conns[user] = n - 1
		}
	}
	roster := p.rosterLocked()
	p.mu.Unlock()
	p.bus.Publish(Event{Name: EventOnlineUsersUpdate, Payload: map[string]interface{}{"online_users": roster}})
}

// Online returns the current roster.
func (p *Presence) Online() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rosterLocked()
}

func (p *Presence) rosterLocked() []string {
	users := make([]string, 0, len(p.conns))
	for u := range p.conns {
		users = append(users, u)
	}
	return users
}
