package changefeed

import (
	"sync"

	"github.com/hubp2p/exchange-service/internal/models"
)

// Bus is an in-process pub/sub fanout for transaction events. Delivery is
// at-least-once from the subscriber's perspective; clients de-duplicate by
// comparing the previous status they hold to the incoming one.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan models.TransactionEvent]struct{}
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan models.TransactionEvent]struct{}),
	}
}

func (b *Bus) Publish(event models.TransactionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber; it re-syncs from the server timestamp on
			// its next fetch, so dropping here is safe.
		}
	}
}

func (b *Bus) Subscribe() (<-chan models.TransactionEvent, func()) {
	ch := make(chan models.TransactionEvent, 32)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		close(ch)
		b.mu.Unlock()
	}
	return ch, unsubscribe
}
