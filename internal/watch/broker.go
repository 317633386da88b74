package watch

import (
	"sync"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// EventBroker fans danger episode events out to subscribers. Publish never
// blocks; a subscriber that falls behind misses events.
type EventBroker interface {
	Subscribe() chan domain.DangerEpisodeEvent
	Unsubscribe(ch chan domain.DangerEpisodeEvent)
	Publish(evt domain.DangerEpisodeEvent)
}

// Broker is the in-process EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[chan domain.DangerEpisodeEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan domain.DangerEpisodeEvent]struct{})}
}

func (b *Broker) Subscribe() chan domain.DangerEpisodeEvent {
	ch := make(chan domain.DangerEpisodeEvent, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it. Unknown channels are ignored.
func (b *Broker) Unsubscribe(ch chan domain.DangerEpisodeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

func (b *Broker) Publish(evt domain.DangerEpisodeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
