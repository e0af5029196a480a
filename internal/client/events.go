package client

import (
	"sync"

	"github.com/staybridge/courier/internal/wire"
)

// Event names a client-side notification stream.
type Event string

const (
	// EventOpen fires when the socket opens (before authentication).
	EventOpen Event = "open"
	// EventClose fires when the socket closes for any reason.
	EventClose Event = "close"
	// EventMessage fires for every decoded server frame.
	EventMessage Event = "message"
	// EventNewMessage fires for an incoming chat message push.
	EventNewMessage Event = "new_message"
	// EventMessageSent fires for the server's ack of a sent message.
	EventMessageSent Event = "message_sent"
	// EventMessageRead fires for a read receipt on a sent message.
	EventMessageRead Event = "message_read"
)

// Handler receives the decoded frame that triggered the event. For
// EventOpen and EventClose the envelope is nil.
type Handler func(env *wire.Envelope)

// Subscription identifies a registered handler so it can be removed by
// identity.
type Subscription struct {
	event Event
	id    int
}

// listeners is a typed publish/subscribe registry keyed by event name.
// Removal is idempotent so UI teardown code can call Off unconditionally.
type listeners struct {
	mu      sync.Mutex
	nextID  int
	byEvent map[Event]map[int]Handler
}

func newListeners() *listeners {
	return &listeners{byEvent: make(map[Event]map[int]Handler)}
}

func (l *listeners) add(event Event, h Handler) Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	if l.byEvent[event] == nil {
		l.byEvent[event] = make(map[int]Handler)
	}
	l.byEvent[event][l.nextID] = h
	return Subscription{event: event, id: l.nextID}
}

func (l *listeners) remove(sub Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.byEvent[sub.event], sub.id)
}

// emit calls every handler registered for event. Handlers run outside the
// lock so they may subscribe or unsubscribe reentrantly.
func (l *listeners) emit(event Event, env *wire.Envelope) {
	l.mu.Lock()
	handlers := make([]Handler, 0, len(l.byEvent[event]))
	for _, h := range l.byEvent[event] {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(env)
	}
}
