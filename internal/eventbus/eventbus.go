// Package eventbus implements the typed multi-producer, multi-consumer
// broadcast described in spec.md §4.7: a bounded ring of pending messages
// per subscriber, best-effort delivery, never blocking a producer.
package eventbus

import (
	"sync"

	"github.com/mailfang/mailfang/internal/store"
)

// EventKind identifies the broadcast message's type.
type EventKind string

const (
	NewMail      EventKind = "new_mail"
	EmailRead    EventKind = "email_read"
	EmailDeleted EventKind = "email_deleted"
)

// Message is the wire shape broadcast to every subscriber.
type Message struct {
	Event      EventKind               `json:"event"`
	Email      *store.EmailListRecord  `json:"email,omitempty"`
	EmailID    *string                 `json:"email_id,omitempty"`
	Recipients []string                `json:"recipients,omitempty"`
}

const subscriberBuffer = 100

// Bus fans a single producer stream out to N subscriber channels, each with
// a bounded buffer. A subscriber that falls behind loses its oldest pending
// message rather than blocking the producer.
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan Message]struct{}
}

// New returns a ready-to-use Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[chan Message]struct{})}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function. The caller MUST call unsubscribe when done reading,
// typically on connection close.
func (b *Bus) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers msg to every current subscriber, best-effort. If a
// subscriber's buffer is full, its oldest pending message is dropped to make
// room rather than blocking this call.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			// Buffer full: drop the oldest pending message, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
				// Still full under concurrent drain; give up on this message
				// for this subscriber rather than block the producer.
			}
		}
	}
}

// PublishNewMail announces a freshly inserted email.
func (b *Bus) PublishNewMail(email store.EmailListRecord) {
	b.Publish(Message{Event: NewMail, Email: &email, Recipients: email.Recipients})
}

// PublishEmailRead announces a false->true read-flag transition.
func (b *Bus) PublishEmailRead(email store.EmailListRecord) {
	b.Publish(Message{Event: EmailRead, Email: &email})
}

// PublishEmailDeleted announces a deleted email id.
func (b *Bus) PublishEmailDeleted(id string) {
	b.Publish(Message{Event: EmailDeleted, EmailID: &id})
}
