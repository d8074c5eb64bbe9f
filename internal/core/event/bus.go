package event

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("event bus closed")

const DefaultBuffer = 256

// Bus delivers events to the subscribers of a topic. A topic is a job id.
type Bus interface {
	Subscribe(topic string) *Subscription
	Unsubscribe(sub *Subscription)
	// Publish hands e to every current subscriber of topic without blocking.
	// It fails only after Close.
	Publish(topic string, e Event) error
	Close()
}

// Subscription receives a topic's events in publish order. There is no
// replay: only events published after Subscribe are delivered.
type Subscription struct {
	id      uint64
	topic   string
	ch      chan Event
	evicted atomic.Bool
}

// C is closed when the subscription ends.
func (s *Subscription) C() <-chan Event { return s.ch }

// Evicted reports whether the subscription was dropped for falling behind.
func (s *Subscription) Evicted() bool { return s.evicted.Load() }

// NewBus creates an in-process bus. buffer bounds how many undelivered
// events a subscriber may hold before it is evicted.
func NewBus(buffer int) Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &inProcessBus{
		buffer: buffer,
		topics: make(map[string]map[uint64]*Subscription),
	}
}

type inProcessBus struct {
	// Sends happen under the read lock and channel closes under the write
	// lock, so a send never races a close.
	mu     sync.RWMutex
	buffer int
	topics map[string]map[uint64]*Subscription
	nextID uint64
	closed bool
}

func (b *inProcessBus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, topic: topic, ch: make(chan Event, b.buffer)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[uint64]*Subscription)
		b.topics[topic] = subs
	}
	subs[sub.id] = sub
	return sub
}

func (b *inProcessBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub)
}

func (b *inProcessBus) Publish(topic string, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var slow []*Subscription
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	for _, sub := range b.topics[topic] {
		select {
		case sub.ch <- e:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	if len(slow) == 0 {
		return nil
	}
	b.mu.Lock()
	for _, sub := range slow {
		if b.remove(sub) {
			sub.evicted.Store(true)
			log.Warn().Str("topic", topic).Uint64("subscriber", sub.id).
				Str("event", string(e.Type)).Msg("evicted slow subscriber")
		}
	}
	b.mu.Unlock()
	return nil
}

// Close ends every subscription and rejects further publishes.
func (b *inProcessBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.topics {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.topics = make(map[string]map[uint64]*Subscription)
}

// remove must be called with mu held for writing.
func (b *inProcessBus) remove(sub *Subscription) bool {
	subs, ok := b.topics[sub.topic]
	if !ok {
		return false
	}
	if _, ok := subs[sub.id]; !ok {
		return false
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
	close(sub.ch)
	return true
}
