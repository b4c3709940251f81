package events

import (
	"sort"
	"testing"
)

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	// Publish past the buffer size; extra events are dropped, not blocked.
	for i := 0; i < 10; i++ {
		bus.Publish(Event{Name: EventDBStatusUpdate})
	}

	received := 0
	for {
		select {
		case <-bus.Events():
			received++
		default:
			if received != 2 {
				t.Errorf("Expected 2 buffered events, got %d", received)
			}
			return
		}
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus(2)
	bus.Close()
	bus.Publish(Event{Name: EventDBStatusUpdate}) // must not panic
	bus.Close()                                   // double close must not panic
}

func TestPresenceRoster(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()
	p := NewPresence(bus)

	p.Connect("alice")
	p.Connect("alice") // second tab
	p.Connect("bob")

	roster := p.Online()
	sort.Strings(roster)
	if len(roster) != 2 || roster[0] != "alice" || roster[1] != "bob" {
		t.Errorf("unexpected roster: %v", roster)
	}

	// One of alice's two connections drops; she stays online.
	p.Disconnect("alice")
	roster = p.Online()
	sort.Strings(roster)
	if len(roster) != 2 {
		t.Errorf("alice should remain online: %v", roster)
	}

	p.Disconnect("alice")
	roster = p.Online()
	if len(roster) != 1 || roster[0] != "bob" {
		t.Errorf("Expected only bob online, got %v", roster)
	}

	// Anonymous connects are ignored.
	p.Connect("")
	if len(p.Online()) != 1 {
		t.Error("empty username must not join the roster")
	}
}

func TestPresencePublishesRosterEvents(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()
	p := NewPresence(bus)

	p.Connect("alice")
	select {
	case e := <-bus.Events():
		if e.Name != EventOnlineUsersUpdate {
			t.Errorf("Expected %s, got %s", EventOnlineUsersUpdate, e.Name)
		}
	default:
		t.Fatal("Expected a roster event")
	}
}
