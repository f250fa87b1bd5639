package eventpublisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/golend/internal/adapter/repository/memory"
	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase/mocks"
)

// outboxFixture is an in-memory outbox preloaded with events.
type outboxFixture struct {
	repo *memory.OutboxRepository
}

func newOutbox(t *testing.T, events ...*domain.OutboxEvent) outboxFixture {
	t.Helper()
	store := memory.NewStore()
	repo := memory.NewOutboxRepository(store)

	ctx := context.Background()
	tx, err := memory.NewTxManager(store).Begin(ctx)
	require.NoError(t, err)
	for _, e := range events {
		require.NoError(t, repo.Create(ctx, tx, e))
	}
	require.NoError(t, tx.Commit(ctx))
	return outboxFixture{repo: repo}
}

func (f outboxFixture) pendingIDs(t *testing.T) []string {
	t.Helper()
	events, err := f.repo.GetUnpublished(context.Background(), 100)
	require.NoError(t, err)
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

func poolEvent(id string, loanID, eventType string) *domain.OutboxEvent {
	return domain.NewOutboxEvent(id, domain.AggregateTypePool, loanID, eventType, map[string]any{"loan_id": loanID}, time.Now())
}

type recordingPublisher struct {
	mu        sync.Mutex
	delivered []string
	failOnce  map[string]bool
}

func (p *recordingPublisher) Publish(_ context.Context, event *domain.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOnce[event.ID] {
		delete(p.failOnce, event.ID)
		return errors.New("stream unavailable")
	}
	p.delivered = append(p.delivered, event.ID)
	return nil
}

type countingObserver struct {
	published []string
	failures  int
}

func (o *countingObserver) EventPublished(eventType string) { o.published = append(o.published, eventType) }
func (o *countingObserver) PublishFailed()                  { o.failures++ }

func newTestPublisher(cfg Config) *EventPublisher {
	cfg.Logger = zerolog.Nop()
	return NewEventPublisher(cfg)
}

func TestProcessEventsDeliversAndMarks(t *testing.T) {
	outbox := newOutbox(t,
		poolEvent("evt-1", "0", domain.EventTypePoolFunded),
		poolEvent("evt-2", "1", domain.EventTypePoolFunded),
	)
	pub := &recordingPublisher{}
	obs := &countingObserver{}
	ep := newTestPublisher(Config{OutboxRepo: outbox.repo, Publisher: pub, Observer: obs})

	n, err := ep.processEvents(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"evt-1", "evt-2"}, pub.delivered)
	assert.Equal(t, []string{domain.EventTypePoolFunded, domain.EventTypePoolFunded}, obs.published)
	assert.Empty(t, outbox.pendingIDs(t))
}

func TestProcessEventsHoldsFailedAggregate(t *testing.T) {
	outbox := newOutbox(t,
		poolEvent("evt-1", "7", domain.EventTypePoolFunded),
		poolEvent("evt-2", "8", domain.EventTypePoolFunded),
		poolEvent("evt-3", "7", domain.EventTypePoolFinalized),
	)
	pub := &recordingPublisher{failOnce: map[string]bool{"evt-1": true}}
	obs := &countingObserver{}
	ep := newTestPublisher(Config{OutboxRepo: outbox.repo, Publisher: pub, Observer: obs})

	n, err := ep.processEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"evt-2"}, pub.delivered, "loan 7 must not skip ahead of its failed event")
	assert.Equal(t, 1, obs.failures)
	assert.Equal(t, []string{"evt-1", "evt-3"}, outbox.pendingIDs(t))

	n, err = ep.processEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"evt-2", "evt-1", "evt-3"}, pub.delivered)
	assert.Empty(t, outbox.pendingIDs(t))
}

func TestProcessEventsRespectsBatchSize(t *testing.T) {
	outbox := newOutbox(t,
		poolEvent("evt-1", "1", domain.EventTypePoolFunded),
		poolEvent("evt-2", "2", domain.EventTypePoolFunded),
		poolEvent("evt-3", "3", domain.EventTypePoolFunded),
	)
	ep := newTestPublisher(Config{OutboxRepo: outbox.repo, Publisher: &recordingPublisher{}, BatchSize: 2})

	n, err := ep.processEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"evt-3"}, outbox.pendingIDs(t))
}

func TestProcessEventsSurfacesRepositoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockOutboxRepository(ctrl)
	repo.EXPECT().GetUnpublished(gomock.Any(), defaultBatchSize).Return(nil, errors.New("db down"))

	ep := newTestPublisher(Config{OutboxRepo: repo, Publisher: &recordingPublisher{}})
	_, err := ep.processEvents(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestProcessEventsKeepsGoingWhenMarkFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockOutboxRepository(ctrl)
	events := []*domain.OutboxEvent{poolEvent("evt-1", "1", domain.EventTypePoolFunded), poolEvent("evt-2", "2", domain.EventTypePoolFunded)}
	repo.EXPECT().GetUnpublished(gomock.Any(), gomock.Any()).Return(events, nil)
	repo.EXPECT().MarkPublished(gomock.Any(), "evt-1", gomock.Any()).Return(errors.New("conn reset"))
	repo.EXPECT().MarkPublished(gomock.Any(), "evt-2", gomock.Any()).Return(nil)

	pub := &recordingPublisher{}
	ep := newTestPublisher(Config{OutboxRepo: repo, Publisher: pub})
	n, err := ep.processEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"evt-1", "evt-2"}, pub.delivered)
}

func TestProcessEventsHoldsAggregateWhenMarkFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockOutboxRepository(ctrl)
	events := []*domain.OutboxEvent{
		poolEvent("evt-1", "7", domain.EventTypePoolFunded),
		poolEvent("evt-2", "7", domain.EventTypePoolFinalized),
		poolEvent("evt-3", "8", domain.EventTypePoolFunded),
	}
	gomock.InOrder(
		repo.EXPECT().GetUnpublished(gomock.Any(), gomock.Any()).Return(events, nil),
		repo.EXPECT().MarkPublished(gomock.Any(), "evt-1", gomock.Any()).Return(errors.New("conn reset")),
		repo.EXPECT().MarkPublished(gomock.Any(), "evt-3", gomock.Any()).Return(nil),
		repo.EXPECT().GetUnpublished(gomock.Any(), gomock.Any()).Return(events[:2], nil),
		repo.EXPECT().MarkPublished(gomock.Any(), "evt-1", gomock.Any()).Return(nil),
		repo.EXPECT().MarkPublished(gomock.Any(), "evt-2", gomock.Any()).Return(nil),
	)

	pub := &recordingPublisher{}
	ep := newTestPublisher(Config{OutboxRepo: repo, Publisher: pub})

	n, err := ep.processEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"evt-1", "evt-3"}, pub.delivered, "loan 7 must not run ahead of its unmarked event")

	n, err = ep.processEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"evt-1", "evt-3", "evt-1", "evt-2"}, pub.delivered)
}

func TestCleanupHonoursRetentionAndInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockOutboxRepository(ctrl)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gomock.InOrder(
		repo.EXPECT().DeletePublished(gomock.Any(), now.Add(-24*time.Hour)).Return(nil),
		repo.EXPECT().DeletePublished(gomock.Any(), now.Add(2*time.Hour).Add(-24*time.Hour)).Return(nil),
	)

	ep := newTestPublisher(Config{OutboxRepo: repo, Publisher: &recordingPublisher{}, Retention: 24 * time.Hour})
	require.NoError(t, ep.cleanup(context.Background(), now))
	require.NoError(t, ep.cleanup(context.Background(), now.Add(time.Minute)))
	require.NoError(t, ep.cleanup(context.Background(), now.Add(2*time.Hour)))
}

func TestCleanupDisabledWithoutRetention(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockOutboxRepository(ctrl)

	ep := newTestPublisher(Config{OutboxRepo: repo, Publisher: &recordingPublisher{}})
	require.NoError(t, ep.cleanup(context.Background(), time.Now()))
}

func TestStartDrainsThenStopsOnCancel(t *testing.T) {
	outbox := newOutbox(t, poolEvent("evt-1", "1", domain.EventTypeLoanCreated))
	pub := &recordingPublisher{}
	ep := newTestPublisher(Config{OutboxRepo: outbox.repo, Publisher: pub, Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ep.Start(ctx) }()

	require.Eventually(t, func() bool {
		pending, err := outbox.repo.GetUnpublished(context.Background(), 10)
		return err == nil && len(pending) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func TestLogPublisher(t *testing.T) {
	err := NewLogPublisher(zerolog.Nop()).Publish(context.Background(), poolEvent("evt-1", "3", domain.EventTypePoolRepaid))
	assert.NoError(t, err)
}
