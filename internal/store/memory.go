package store

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"hiberry/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu     sync.Mutex
	orders map[model.Date]map[string]model.Order // date -> id -> order
}

func NewMemory() *Memory {
	return &Memory{orders: map[model.Date]map[string]model.Order{}}
}

func (m *Memory) FetchByDate(ctx context.Context, date model.Date) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	part := m.orders[date]
	out := make([]model.Order, 0, len(part))
	for _, o := range part {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Get(ctx context.Context, date model.Date, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[date][id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *Memory) Put(ctx context.Context, o model.Order) error {
	if err := checkPut(o); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	part := m.orders[o.DeliveryDate]
	if part == nil {
		part = map[string]model.Order{}
		m.orders[o.DeliveryDate] = part
	}
	part[o.ID] = cloneOrder(o)
	return nil
}

// BulkUpdate applies all updates or none: a missing order fails the batch
// before anything is written.
func (m *Memory) BulkUpdate(ctx context.Context, orders []model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		if _, ok := m.orders[o.DeliveryDate][o.ID]; !ok {
			return fail(http.StatusNotFound, ErrNotFound, "bulk update: order %s on %s", o.ID, o.DeliveryDate)
		}
	}
	for _, o := range orders {
		cur := m.orders[o.DeliveryDate][o.ID]
		cur.Driver = o.Driver
		cur.Status = o.Status
		cur.Sequence = nil
		if o.Sequence != nil {
			seq := *o.Sequence
			cur.Sequence = &seq
		}
		m.orders[o.DeliveryDate][o.ID] = cur
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, date model.Date, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	part := m.orders[date]
	if _, ok := part[id]; !ok {
		return ErrNotFound
	}
	delete(part, id)
	if len(part) == 0 {
		delete(m.orders, date)
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
