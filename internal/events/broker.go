// Package events fans out order and schedule changes per delivery date.
package events

import (
	"sync"
	"time"
)

// Event types.
const (
	OrderCreated       = "order.created"
	OrderUpdated       = "order.updated"
	OrderRescheduled   = "order.rescheduled"
	OrderDeleted       = "order.deleted"
	PartitionScheduled = "schedule.partition_programmed"
	PartitionFailed    = "schedule.partition_failed"
)

type Event struct {
	Type string         `json:"type"`
	Date string         `json:"date"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data,omitempty"`
}

// Broker delivers events to subscribers of a date. Delivery is best
// effort: a subscriber that does not keep up misses events.
type Broker interface {
	Subscribe(date string) chan Event
	Unsubscribe(date string, ch chan Event)
	Publish(date string, evt Event)
}

// Memory is the in-process broker.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // date -> set of channels
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(date string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[date] == nil {
		b.subs[date] = map[chan Event]struct{}{}
	}
	b.subs[date][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(date string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[date]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, date)
	}
	close(ch)
}

func (b *Memory) Publish(date string, evt Event) {
	evt = stamp(date, evt)
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[date] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func stamp(date string, evt Event) Event {
	evt.Date = date
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	return evt
}
