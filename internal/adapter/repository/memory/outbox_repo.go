package memory

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Create appends an event.
func (r *OutboxRepository) Create(_ context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	t, err := r.store.tx(tx)
	if err != nil {
		return err
	}

	s := r.store
	if _, exists := s.outboxIndex[event.ID]; exists {
		return fmt.Errorf("outbox event %s already exists", event.ID)
	}

	idx := len(s.outbox)
	s.outbox = append(s.outbox, cloneEvent(event))
	s.outboxIndex[event.ID] = idx
	t.record(func() {
		s.outbox = s.outbox[:idx]
		delete(s.outboxIndex, event.ID)
	})
	return nil
}

// GetUnpublished returns the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.OutboxEvent
	for _, e := range r.store.outbox {
		if len(out) >= limit {
			break
		}
		if !e.Published {
			out = append(out, cloneEvent(e))
		}
	}
	return out, nil
}

// MarkPublished flags an event as published.
func (r *OutboxRepository) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	idx, ok := r.store.outboxIndex[id]
	if !ok {
		return fmt.Errorf("outbox event %s not found", id)
	}
	e := r.store.outbox[idx]
	e.Published = true
	e.PublishedAt = &publishedAt
	return nil
}

// GetByAggregate lists events of one aggregate in creation order.
func (r *OutboxRepository) GetByAggregate(_ context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var matched []*domain.OutboxEvent
	for _, e := range r.store.outbox {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			matched = append(matched, e)
		}
	}

	selected := page(matched, limit, offset)
	out := make([]*domain.OutboxEvent, len(selected))
	for i, e := range selected {
		out[i] = cloneEvent(e)
	}
	return out, nil
}

// DeletePublished drops events published before the cutoff.
func (r *OutboxRepository) DeletePublished(_ context.Context, before time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	s := r.store
	kept := s.outbox[:0]
	for _, e := range s.outbox {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	s.outbox = kept

	clear(s.outboxIndex)
	for i, e := range s.outbox {
		s.outboxIndex[e.ID] = i
	}
	return nil
}

func cloneEvent(e *domain.OutboxEvent) *domain.OutboxEvent {
	c := *e
	c.Payload = maps.Clone(e.Payload)
	if e.PublishedAt != nil {
		at := *e.PublishedAt
		c.PublishedAt = &at
	}
	return &c
}
