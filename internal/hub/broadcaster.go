package hub

import (
	"sync"

	"github.com/rs/zerolog"
)

// Broadcaster fans encoded frames out to stream subscribers. Each subscriber
// holds at most one undelivered frame; a newer frame replaces it, since every
// frame is a full snapshot.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan []byte
	nextID uint64
	log    zerolog.Logger
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[uint64]chan []byte),
		log:  log.With().Str("component", "hub_broadcaster").Logger(),
	}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() (uint64, <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan []byte, 1)
	b.subs[b.nextID] = ch
	return b.nextID, ch
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Broadcast queues frame for every subscriber without blocking.
func (b *Broadcaster) Broadcast(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- frame:
			continue
		default:
		}
		// drop the undelivered older snapshot
		select {
		case <-ch:
			b.log.Debug().Uint64("subscriber", id).Msg("Replaced undelivered frame")
		default:
		}
		ch <- frame
	}
}

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
