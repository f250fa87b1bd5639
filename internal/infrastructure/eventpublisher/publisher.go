package eventpublisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

const (
	defaultBatchSize       = 100
	defaultInterval        = 5 * time.Second
	defaultCleanupInterval = time.Hour
)

// Publisher delivers one outbox event to an external system.
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// Observer is told about publish outcomes.
type Observer interface {
	EventPublished(eventType string)
	PublishFailed()
}

type Config struct {
	OutboxRepo usecase.OutboxRepository
	Publisher  Publisher
	Observer   Observer // optional
	Logger     zerolog.Logger
	BatchSize  int           // events fetched per poll, default 100
	Interval   time.Duration // poll period, default 5s
	Retention  time.Duration // age after which published events are deleted; 0 keeps them
}

// EventPublisher relays committed outbox rows to a Publisher. Delivery is
// at least once. Events of one aggregate, such as a single loan pool, are
// delivered in creation order: after a failure the remaining events of that
// aggregate wait for the next poll.
type EventPublisher struct {
	outbox    usecase.OutboxRepository
	publisher Publisher
	observer  Observer
	logger    zerolog.Logger
	now       func() time.Time

	batchSize       int
	interval        time.Duration
	retention       time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
}

func NewEventPublisher(cfg Config) *EventPublisher {
	ep := &EventPublisher{
		outbox:          cfg.OutboxRepo,
		publisher:       cfg.Publisher,
		observer:        cfg.Observer,
		logger:          cfg.Logger.With().Str("component", "event_publisher").Logger(),
		now:             func() time.Time { return time.Now().UTC() },
		batchSize:       cfg.BatchSize,
		interval:        cfg.Interval,
		retention:       cfg.Retention,
		cleanupInterval: defaultCleanupInterval,
	}
	if ep.batchSize <= 0 {
		ep.batchSize = defaultBatchSize
	}
	if ep.interval <= 0 {
		ep.interval = defaultInterval
	}
	return ep
}

// Start polls the outbox until ctx is cancelled and returns ctx.Err().
func (ep *EventPublisher) Start(ctx context.Context) error {
	ep.logger.Info().
		Int("batch_size", ep.batchSize).
		Dur("interval", ep.interval).
		Dur("retention", ep.retention).
		Msg("event publisher started")

	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	for {
		ep.tick(ctx)

		select {
		case <-ctx.Done():
			ep.logger.Info().Msg("event publisher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (ep *EventPublisher) tick(ctx context.Context) {
	if _, err := ep.processEvents(ctx); err != nil && ctx.Err() == nil {
		ep.logger.Error().Err(err).Msg("outbox poll failed")
	}
	if err := ep.cleanup(ctx, ep.now()); err != nil && ctx.Err() == nil {
		ep.logger.Error().Err(err).Msg("outbox cleanup failed")
	}
}

// processEvents publishes one batch and returns how many events were
// delivered.
func (ep *EventPublisher) processEvents(ctx context.Context) (int, error) {
	events, err := ep.outbox.GetUnpublished(ctx, ep.batchSize)
	if err != nil {
		return 0, err
	}

	held := make(map[string]struct{})
	delivered := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		aggregate := event.AggregateType + "/" + event.AggregateID
		if _, blocked := held[aggregate]; blocked {
			continue
		}

		log := ep.logger.With().
			Str("event_id", event.ID).
			Str("event_type", event.EventType).
			Str("aggregate", aggregate).
			Logger()

		if err := ep.publisher.Publish(ctx, event); err != nil {
			held[aggregate] = struct{}{}
			log.Error().Err(err).Msg("publish failed, holding aggregate until next poll")
			if ep.observer != nil {
				ep.observer.PublishFailed()
			}
			continue
		}
		if ep.observer != nil {
			ep.observer.EventPublished(event.EventType)
		}

		// An unmarked event goes out again on the next poll, so the rest of
		// its aggregate waits behind it. Consumers dedupe by event id.
		if err := ep.outbox.MarkPublished(ctx, event.ID, ep.now()); err != nil {
			held[aggregate] = struct{}{}
			log.Error().Err(err).Msg("mark published failed, holding aggregate until next poll")
			continue
		}
		delivered++
		log.Debug().Msg("event published")
	}
	return delivered, nil
}

// cleanup deletes events published before the retention window, at most
// once per cleanupInterval.
func (ep *EventPublisher) cleanup(ctx context.Context, now time.Time) error {
	if ep.retention <= 0 || now.Sub(ep.lastCleanup) < ep.cleanupInterval {
		return nil
	}
	if err := ep.outbox.DeletePublished(ctx, now.Add(-ep.retention)); err != nil {
		return err
	}
	ep.lastCleanup = now
	return nil
}

// LogPublisher writes events to the service log. It is used when no Redis
// stream is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	p.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.EventType).
		Str("aggregate_type", event.AggregateType).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", payload).
		Msg("outbox event")
	return nil
}
