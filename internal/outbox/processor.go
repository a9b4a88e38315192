package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/litscreen/relevance-service/internal/config"
	"github.com/litscreen/relevance-service/internal/observability"
)

// processorLockKey is the advisory lock key shared by all processor
// instances; it spells "outbox" in ASCII.
const processorLockKey int64 = 0x6f75_7462_6f78

// AdvisoryLocker acquires and releases Postgres advisory locks.
// *database.DB satisfies it.
type AdvisoryLocker interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) error
}

// Processor polls the outbox for pending events and publishes them. An
// advisory lock keeps concurrent instances from draining the same events;
// the loser of the lock simply waits for the next tick.
type Processor struct {
	repo      Repository
	publisher Publisher
	locks     AdvisoryLocker
	cfg       config.OutboxConfig
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewProcessor creates a Processor. The metrics parameter may be nil.
func NewProcessor(repo Repository, publisher Publisher, locks AdvisoryLocker, cfg config.OutboxConfig, metrics *observability.Metrics, logger zerolog.Logger) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		locks:     locks,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With().Str("component", "outbox_processor").Logger(),
	}
}

// Run polls until the context is cancelled. Poll failures are logged and
// retried on the next tick; only context cancellation ends the loop.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info().
		Dur("poll_interval", p.cfg.PollInterval).
		Int("batch_size", p.cfg.BatchSize).
		Msg("starting outbox processor")

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox processor stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error().Err(err).Msg("outbox poll failed")
			}
		}
	}
}

// ProcessOnce drains one batch of pending events. Returns the number of
// events published. A zero count with nil error means there was nothing to
// do or another instance holds the lock.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	acquired, err := p.locks.AcquireAdvisoryLock(ctx, processorLockKey)
	if err != nil {
		return 0, err
	}
	if !acquired {
		p.logger.Debug().Msg("outbox lock held elsewhere, skipping poll")
		return 0, nil
	}
	defer func() {
		if err := p.locks.ReleaseAdvisoryLock(ctx, processorLockKey); err != nil {
			p.logger.Warn().Err(err).Msg("failed to release outbox lock")
		}
	}()

	events, err := p.repo.ListPending(ctx, p.cfg.BatchSize, p.cfg.MaxRetries)
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range events {
		ev := &events[i]

		if err := p.publisher.Publish(ctx, ev); err != nil {
			p.logger.Error().Err(err).
				Str("event_id", ev.EventID.String()).
				Str("event_type", ev.EventType).
				Int("attempts", ev.Attempts+1).
				Msg("outbox publish failed")
			if markErr := p.repo.MarkFailed(ctx, ev.EventID); markErr != nil {
				p.logger.Error().Err(markErr).
					Str("event_id", ev.EventID.String()).
					Msg("failed to record outbox publish failure")
			}
			if p.metrics != nil {
				p.metrics.RecordOutboxFailed(ev.EventType)
			}
			continue
		}

		if err := p.repo.MarkPublished(ctx, ev.EventID); err != nil {
			// The event was published; it will be published again next
			// poll and consumers deduplicate on event id.
			p.logger.Error().Err(err).
				Str("event_id", ev.EventID.String()).
				Msg("failed to mark outbox event published")
			continue
		}

		published++
		if p.metrics != nil {
			p.metrics.RecordOutboxPublished(ev.EventType, time.Since(ev.CreatedAt).Seconds())
		}
	}

	if published > 0 {
		p.logger.Info().
			Int("published", published).
			Int("pending", len(events)).
			Msg("outbox batch drained")
	}
	return published, nil
}
