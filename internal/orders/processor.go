package orders

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor removes expired idempotency records in the background
type Processor struct {
	db       *Database
	interval time.Duration
	now      func() time.Time
}

func NewProcessor(db *Database, interval time.Duration) *Processor {
	return &Processor{
		db:       db,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs the cleanup loop until ctx is cancelled
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "idempotency_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting idempotency processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down idempotency processor")
			return
		case <-ticker.C:
			if _, err := p.purgeExpired(); err != nil {
				logger.Error().Err(err).Msg("failed to purge expired idempotency records")
			}
		}
	}
}

func (p *Processor) purgeExpired() (int64, error) {
	removed, err := p.db.DeleteExpiredIdempotencyRecords(p.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Debug().
			Str("component", "idempotency_processor").
			Int64("removed", removed).
			Msg("purged expired idempotency records")
	}
	return removed, nil
}
