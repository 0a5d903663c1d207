// Package eventbus streams per-session interview events to subscribers.
package eventbus

import (
	"sync"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

// Bus provides pub/sub for session events.
type Bus interface {
	Subscribe(sessionID string) chan *model.Event
	Unsubscribe(sessionID string, ch chan *model.Event)
	Publish(sessionID string, event *model.Event)
	// Close drops every subscriber of a session and closes their channels.
	Close(sessionID string)
}

// InMemoryBus is the default in-memory Bus implementation. Events published
// for a session are numbered from 1 in publish order.
type InMemoryBus struct {
	mu   sync.Mutex
	subs map[string][]chan *model.Event
	seq  map[string]int64
}

// NewInMemoryBus creates a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subs: make(map[string][]chan *model.Event),
		seq:  make(map[string]int64),
	}
}

// Subscribe creates a channel that receives events for a session.
func (b *InMemoryBus) Subscribe(sessionID string) chan *model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *model.Event, 64)
	b.subs[sessionID] = append(b.subs[sessionID], ch)
	return ch
}

// Unsubscribe removes a channel from the session's subscribers.
func (b *InMemoryBus) Unsubscribe(sessionID string, ch chan *model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sessionID]
	for i, s := range subs {
		if s == ch {
			b.subs[sessionID] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
			return
		}
	}
}

// Publish stamps the event with the session's next sequence number and sends
// it to every subscriber. A subscriber whose buffer is full misses the event.
// Events for a session nobody is subscribed to are dropped unnumbered, so a
// closed session leaves nothing behind.
func (b *InMemoryBus) Publish(sessionID string, event *model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	event.SessionID = sessionID
	if len(b.subs[sessionID]) == 0 {
		return
	}

	b.seq[sessionID]++
	event.ID = b.seq[sessionID]

	for _, ch := range b.subs[sessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close drops all subscribers of a session.
func (b *InMemoryBus) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[sessionID] {
		close(ch)
	}
	delete(b.subs, sessionID)
	delete(b.seq, sessionID)
}
