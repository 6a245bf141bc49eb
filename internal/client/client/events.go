package client

import (
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/oklog/ulid/v2"
)

func newEvent(kind models.EventKind, s *models.Session) models.Event {
	return models.Event{ID: ulid.Make().String(), Kind: kind, Session: s}
}

// subscriber owns an unbounded FIFO drained by a single goroutine, so a slow
// callback never blocks the publisher and never sees events out of order.
type subscriber struct {
	fn func(models.Event)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []models.Event
	closed bool
}

func newSubscriber(fn func(models.Event)) *subscriber {
	s := &subscriber{fn: fn}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *subscriber) push(ev models.Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscriber) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue[0] = models.Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(ev)
	}
}

type eventBus struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*subscriber
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[uint64]*subscriber)}
}

// subscribe registers fn and queues initial as its first delivery.
func (b *eventBus) subscribe(fn func(models.Event), initial models.Event) func() {
	sub := newSubscriber(fn)
	sub.push(initial)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			sub.close()
		})
	}
}

func (b *eventBus) publish(ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.push(ev)
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		sub.close()
		delete(b.subs, id)
	}
}
