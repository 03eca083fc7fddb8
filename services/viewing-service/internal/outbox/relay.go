package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/viewings/libs/db"
)

// Counter observes delivered events; metrics.Metrics satisfies it.
type Counter interface {
	EventPublished(transport string)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type Relay struct {
	pool      txRunner
	repo      *Repository
	sink      Sink
	logger    *slog.Logger
	counter   Counter
	pollEvery time.Duration
	batchSize int
}

type RelayConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewRelay(pool *db.Pool, repo *Repository, sink Sink, logger *slog.Logger, counter Counter, cfg RelayConfig) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Relay{
		pool:      pool,
		repo:      repo,
		sink:      sink,
		logger:    logger,
		counter:   counter,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run polls until ctx is done. Batch failures are logged and retried on the
// next tick. The sink stays open; whoever opened it closes it.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started", "transport", r.sink.Name(), "poll_every", r.pollEvery.String())

	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.PublishBatch(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishBatch relays one batch in a single transaction. Rows that were sent
// are marked published; a failed send stops the batch so per-agent order is
// kept, and the failure is recorded on the row.
func (r *Relay) PublishBatch(ctx context.Context) (int, error) {
	sent := 0
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		records, err := r.repo.FetchUnpublished(ctx, tx, r.batchSize)
		if err != nil {
			return err
		}

		var ids []int64
		for _, rec := range records {
			if err := r.sink.Send(ctx, rec); err != nil {
				r.logger.Warn("outbox send failed",
					"event_id", rec.EventID,
					"event_type", rec.EventType,
					"attempts", rec.Attempts+1,
					"err", err,
				)
				if markErr := r.repo.MarkFailed(ctx, tx, rec.ID, err); markErr != nil {
					return markErr
				}
				break
			}
			ids = append(ids, rec.ID)
			if r.counter != nil {
				r.counter.EventPublished(r.sink.Name())
			}
		}
		sent = len(ids)
		return r.repo.MarkPublished(ctx, tx, ids)
	})
	return sent, err
}
