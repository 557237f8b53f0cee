package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/durable"
	"github.com/dreamware/flashbid/internal/hotstore"
)

const (
	// upsertRetries bounds the retry budget for one session's batch
	// within a single cycle; exhaustion re-marks the session dirty.
	upsertRetries = 3

	// retryInitialInterval seeds the exponential backoff between
	// retries of a failed upsert.
	retryInitialInterval = 100 * time.Millisecond
)

// Persister is the background reconciliation worker between the hot
// store and the durable store. Thread-safe: Start, Stop, Cycle and
// ForcePersist may be called from different goroutines.
type Persister struct {
	hot      hotstore.Store
	db       durable.Store
	interval time.Duration
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPersister creates a persister that drains dirty sessions every
// interval once started.
func NewPersister(hot hotstore.Store, db durable.Store, interval time.Duration, log zerolog.Logger) *Persister {
	ctx, cancel := context.WithCancel(context.Background())
	return &Persister{
		hot:      hot,
		db:       db,
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the persist loop in the current goroutine until Stop is
// called. Callers typically invoke it as `go persister.Start()`.
func (p *Persister) Start() {
	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.interval).Msg("batch persister started")

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.Cycle(p.ctx); err != nil {
				p.log.Error().Err(err).Msg("persist cycle finished with errors")
			}
		}
	}
}

// Stop cancels the loop and waits for an in-flight cycle to finish.
func (p *Persister) Stop() {
	p.cancel()
	p.wg.Wait()
	p.log.Info().Msg("batch persister stopped")
}

// Cycle performs one reconciliation pass: snapshot the dirty set, then
// drain each dirty session. A session whose batch cannot be written is
// re-marked dirty and reported in the joined error; the cycle continues
// with the remaining sessions.
func (p *Persister) Cycle(ctx context.Context) error {
	dirty, err := p.hot.DirtySnapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot dirty sessions: %w", err)
	}
	if len(dirty) == 0 {
		return nil
	}

	var errs []error
	for i, sessionID := range dirty {
		if ctx.Err() != nil {
			// Shutting down mid-cycle: put the rest back for next time.
			for _, rest := range dirty[i:] {
				_ = p.hot.MarkDirty(context.WithoutCancel(ctx), rest)
			}
			errs = append(errs, ctx.Err())
			break
		}

		if err := p.drainSession(ctx, sessionID); err != nil {
			// Metadata keys are untouched on failure; re-mark so the
			// next cycle retries the whole session.
			if markErr := p.hot.MarkDirty(context.WithoutCancel(ctx), sessionID); markErr != nil {
				p.log.Error().Err(markErr).Stringer("session_id", sessionID).Msg("failed to re-mark dirty session")
			}
			errs = append(errs, fmt.Errorf("session %s: %w", sessionID, err))
		}
	}
	return errors.Join(errs...)
}

// ForcePersist synchronously drains one session and removes it from the
// dirty set. The session monitor calls this before freezing a final
// ranking.
func (p *Persister) ForcePersist(ctx context.Context, sessionID uuid.UUID) error {
	if err := p.drainSession(ctx, sessionID); err != nil {
		return err
	}
	return p.hot.MarkClean(ctx, sessionID)
}

// drainSession scans one session's bid metadata, upserts it durably
// with bounded retries, then deletes the drained keys.
func (p *Persister) drainSession(ctx context.Context, sessionID uuid.UUID) error {
	metadata, keys, err := p.hot.ScanBidMetadata(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("scan bid metadata: %w", err)
	}
	if len(metadata) == 0 {
		return nil
	}

	records := make([]auction.BidRecord, len(metadata))
	for i, m := range metadata {
		records[i] = auction.BidRecord{
			SessionID: sessionID,
			UserID:    m.UserID,
			Price:     m.Price,
			Score:     m.Score,
			UpdatedAt: m.UpdatedAt,
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	err = backoff.Retry(func() error {
		return p.db.UpsertBids(ctx, records)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, upsertRetries), ctx))
	if err != nil {
		return fmt.Errorf("upsert %d bids: %w", len(records), err)
	}

	// The batch is durable; key deletion is cleanup. If it fails the
	// records are replayed next cycle and the upsert absorbs them.
	if err := p.hot.DeleteKeys(ctx, keys); err != nil {
		p.log.Warn().Err(err).Stringer("session_id", sessionID).Int("keys", len(keys)).Msg("failed to delete drained metadata keys")
		return nil
	}

	p.log.Debug().Stringer("session_id", sessionID).Int("bids", len(records)).Msg("session persisted")
	return nil
}
