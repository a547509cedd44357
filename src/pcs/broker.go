package pcs

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// SubscriberQueue is the number of undelivered events a subscriber can hold.
// Further events are dropped for that subscriber.
const SubscriberQueue = 64

// broker fans events out to subscribers without ever blocking the producer.
type broker[T any] struct {
	sync.Mutex
	name    string
	subs    map[int]chan T
	next    int
	closed  bool
	dropped func(stream string)
	logger  *logrus.Entry
}

func newBroker[T any](name string, dropped func(string), logger *logrus.Entry) *broker[T] {
	return &broker[T]{
		name:    name,
		subs:    make(map[int]chan T),
		dropped: dropped,
		logger:  logger,
	}
}

// subscribe returns a channel of events published from now on, and a function
// that ends the subscription and closes the channel.
func (b *broker[T]) subscribe() (<-chan T, func()) {
	b.Lock()
	defer b.Unlock()

	ch := make(chan T, SubscriberQueue)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.Lock()
			defer b.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// publish delivers one event per subscriber. newEvent is called once per
// subscriber, so that each gets its own value.
func (b *broker[T]) publish(newEvent func() T) {
	b.Lock()
	defer b.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- newEvent():
		default:
			b.logger.WithFields(logrus.Fields{
				"stream":     b.name,
				"subscriber": id,
			}).Warn("Subscriber queue full, dropping event")
			if b.dropped != nil {
				b.dropped(b.name)
			}
		}
	}
}

func (b *broker[T]) close() {
	b.Lock()
	defer b.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
