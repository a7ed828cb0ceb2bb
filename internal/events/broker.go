// Package events fans login state changes out to in-process observers.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/buddyapp/buddy-client-go/internal/model"
)

const subscriberBuffer = 16

type Subscriber struct {
	Events chan model.Status
	Done   chan struct{}
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
	closed      bool
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[*Subscriber]bool),
	}
}

func (b *Broker) Subscribe() *Subscriber {
	sub := &Subscriber{
		Events: make(chan model.Status, subscriberBuffer),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.Done)
		return sub
	}
	b.subscribers[sub] = true
	count := len(b.subscribers)
	b.mu.Unlock()

	log.Debug().
		Int("subscriberCount", count).
		Msg("status subscriber added")

	return sub
}

func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.Done)

		log.Debug().
			Int("subscriberCount", len(b.subscribers)).
			Msg("status subscriber removed")
	}
}

// Publish delivers status to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
func (b *Broker) Publish(status model.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub.Events <- status:
		default:
			log.Warn().
				Str("phase", string(status.Phase)).
				Msg("subscriber buffer full, dropping status")
		}
	}
}

func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		close(sub.Done)
	}
	b.subscribers = make(map[*Subscriber]bool)
	b.closed = true
}

func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
