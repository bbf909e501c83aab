package app

import (
	"sync"
	"time"

	"proficiency-exam-service/internal/domain"
)

// EventType names a feed event.
type EventType string

const (
	EventResult      EventType = "result"
	EventCertificate EventType = "certificate"
)

// Event is broadcast to feed subscribers whenever a result or certificate is persisted.
type Event struct {
	Type        EventType           `json:"type"`
	Result      *domain.Result      `json:"result,omitempty"`
	Certificate *domain.Certificate `json:"certificate,omitempty"`
	At          time.Time           `json:"at"`
}

// ResultFeed fans out events to in-process subscribers. Slow subscribers lose their
// oldest buffered event instead of blocking publishers.
type ResultFeed struct {
	now         func() time.Time
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func NewResultFeed() *ResultFeed {
	return newResultFeedWithClock(time.Now)
}

func newResultFeedWithClock(now func() time.Time) *ResultFeed {
	return &ResultFeed{
		now:         now,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel of events. The caller must invoke cancel to avoid leaks.
func (f *ResultFeed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish broadcasts ev to every subscriber.
func (f *ResultFeed) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = f.now()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers reports how many subscribers are attached.
func (f *ResultFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
