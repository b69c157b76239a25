package events

import (
	"sync"

	"e2e_messaging/internal/model"
)

type Kind string

const (
	MessageSent         Kind = "message:sent"
	MessageRead         Kind = "message:read"
	ConversationCreated Kind = "conversation:created"
	ConversationUpdated Kind = "conversation:updated"
)

type (
	ReadReceipt struct {
		ConversationID string `json:"conversation_id"`
		MessageID      string `json:"message_id"`
	}

	// Event carries the entity matching its kind; the other payload fields are nil.
	Event struct {
		Kind         Kind                    `json:"event"`
		Message      *model.EncryptedMessage `json:"-"`
		Conversation *model.Conversation     `json:"-"`
		Receipt      *ReadReceipt            `json:"-"`
	}

	Handler func(Event)

	// Subscription identifies one registered handler for Off.
	Subscription struct {
		kind Kind
		id   uint64
	}

	// Bus delivers events synchronously, in registration order.
	Bus struct {
		mu       sync.Mutex
		nextID   uint64
		handlers map[Kind][]entry
	}

	entry struct {
		id uint64
		fn Handler
	}
)

func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]entry)}
}

// Payload returns the entity the event carries.
func (e Event) Payload() any {
	switch {
	case e.Message != nil:
		return e.Message
	case e.Conversation != nil:
		return e.Conversation
	case e.Receipt != nil:
		return e.Receipt
	}
	return nil
}

func (b *Bus) On(kind Kind, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], entry{id: b.nextID, fn: fn})
	return Subscription{kind: kind, id: b.nextID}
}

// Off removes a handler and reports whether it was registered.
func (b *Bus) Off(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.handlers[sub.kind]
	for i, h := range hs {
		if h.id == sub.id {
			b.handlers[sub.kind] = append(hs[:i:i], hs[i+1:]...)
			return true
		}
	}
	return false
}

// Emit calls the handlers registered at the time of the call. Handlers may
// subscribe or unsubscribe while being called.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	hs := append([]entry(nil), b.handlers[ev.Kind]...)
	b.mu.Unlock()

	for _, h := range hs {
		h.fn(ev)
	}
}
