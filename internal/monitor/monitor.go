package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/durable"
	"github.com/dreamware/flashbid/internal/hotstore"
)

// endedStatusTTL mirrors the session cache's long TTL for definitively
// ended sessions, cutting write-path durable reads right after the end.
const endedStatusTTL = 5 * time.Minute

// Flusher force-drains one session's pending bids into the durable
// store. The batch persister implements it.
type Flusher interface {
	ForcePersist(ctx context.Context, sessionID uuid.UUID) error
}

// Announcer pushes finalization events to connected clients. The
// broadcaster implements it; both calls are fire-and-forget.
type Announcer interface {
	Notify(sessionID uuid.UUID)
	Announce(ev auction.SessionEvent)
}

// Monitor finalizes expired sessions on a fixed interval. Thread-safe:
// Start, Stop and FinalizeSession may be called from different
// goroutines.
type Monitor struct {
	db        durable.Store
	hot       hotstore.Store
	flusher   Flusher
	announcer Announcer
	interval  time.Duration
	clock     func() time.Time
	log       zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMonitor creates a session monitor that sweeps for expired sessions
// every interval once started. announcer may be nil when no push layer
// is attached.
func NewMonitor(db durable.Store, hot hotstore.Store, flusher Flusher, announcer Announcer, interval time.Duration, log zerolog.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		db:        db,
		hot:       hot,
		flusher:   flusher,
		announcer: announcer,
		interval:  interval,
		clock:     time.Now,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetClock overrides the wall clock. Tests only.
func (m *Monitor) SetClock(fn func() time.Time) {
	m.clock = fn
}

// Start runs the sweep loop in the current goroutine until Stop is
// called. Callers typically invoke it as `go monitor.Start()`.
func (m *Monitor) Start() {
	m.wg.Add(1)
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", m.interval).Msg("session monitor started")

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.ctx)
		}
	}
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
	m.log.Info().Msg("session monitor stopped")
}

// Sweep finalizes every session whose end time has passed. Failures are
// logged per session and retried on the next sweep.
func (m *Monitor) Sweep(ctx context.Context) {
	expired, err := m.db.ExpiredActiveSessions(ctx, m.clock().UTC())
	if err != nil {
		m.log.Error().Err(err).Msg("failed to list expired sessions")
		return
	}

	for _, s := range expired {
		if ctx.Err() != nil {
			return
		}
		if err := m.FinalizeSession(ctx, s.ID); err != nil {
			m.log.Error().Err(err).Stringer("session_id", s.ID).Msg("failed to finalize session")
		}
	}
}

// FinalizeSession freezes one session: flush pending bids, rank the
// scoreboard, derive the clearing price, and commit the result. Calling
// it on an already-finalized session is a no-op.
func (m *Monitor) FinalizeSession(ctx context.Context, sessionID uuid.UUID) error {
	s, err := m.db.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !s.IsActive {
		return nil
	}

	// Everything still sitting in the hot store must be durable before
	// the ranking is frozen.
	if err := m.flusher.ForcePersist(ctx, sessionID); err != nil {
		return fmt.Errorf("flush pending bids: %w", err)
	}

	entries, err := m.hot.ScoreboardRange(ctx, sessionID, 0, -1)
	if err != nil {
		return fmt.Errorf("read scoreboard: %w", err)
	}

	ranks, finalPrice, err := m.buildRanking(ctx, s, entries)
	if err != nil {
		return err
	}

	committed, err := m.db.FinalizeSession(ctx, sessionID, finalPrice, ranks)
	if err != nil {
		return fmt.Errorf("commit finalization: %w", err)
	}
	if !committed {
		// Another finalizer won the race; nothing was written.
		return nil
	}

	if err := m.hot.PutSessionStatus(ctx, sessionID, hotstore.StatusInactive, endedStatusTTL); err != nil {
		m.log.Warn().Err(err).Stringer("session_id", sessionID).Msg("failed to cache ended status")
	}

	if m.announcer != nil {
		m.announcer.Notify(sessionID)
		m.announcer.Announce(auction.SessionEvent{SessionID: sessionID, Status: auction.StatusEnded})
	}

	m.log.Info().
		Stringer("session_id", sessionID).
		Int("bidders", len(ranks)).
		Float64("final_price", finalPrice).
		Msg("session finalized")
	return nil
}

// buildRanking converts the descending scoreboard into frozen final
// ranks and the clearing price. With at least K bidders the price is
// the K-th winner's bid; otherwise the reserve.
func (m *Monitor) buildRanking(ctx context.Context, s *auction.Session, entries []hotstore.ScoreEntry) ([]auction.FinalRank, float64, error) {
	if len(entries) == 0 {
		return nil, s.ReservePrice, nil
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	records, err := m.hot.BidRecords(ctx, s.ID, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("read bid records: %w", err)
	}

	ranks := make([]auction.FinalRank, len(entries))
	for i, e := range entries {
		ranks[i] = auction.FinalRank{
			SessionID: s.ID,
			UserID:    e.UserID,
			Rank:      i + 1,
			Price:     records[e.UserID].Price,
			Score:     e.Score,
			IsWinner:  i < s.Inventory,
		}
	}

	finalPrice := s.ReservePrice
	if len(ranks) >= s.Inventory && s.Inventory > 0 {
		finalPrice = ranks[s.Inventory-1].Price
	}
	return ranks, finalPrice, nil
}
