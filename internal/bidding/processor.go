package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/hotstore"
	"github.com/dreamware/flashbid/internal/session"
)

// bidKeyMargin is added on top of twice the session duration when
// computing bid-key TTLs, so keys comfortably outlive both the session
// and the persister cycles that drain them.
const bidKeyMargin = time.Hour

// Notifier receives change signals for a session's leaderboard. The
// broadcaster implements it; notification is fire-and-forget and must
// never block the write path.
type Notifier interface {
	Notify(sessionID uuid.UUID)
}

// Processor is the bid write path. It validates against cached session
// state, scores, and applies the whole mutation to the hot store in one
// pipelined call. The durable store is reconciled later by the batch
// persister.
type Processor struct {
	params   *session.ParamCache
	hot      hotstore.Store
	notifier Notifier
	clock    func() time.Time
	log      zerolog.Logger
}

// NewProcessor wires the write path. notifier may be nil when no push
// layer is attached (tests, offline tools).
func NewProcessor(params *session.ParamCache, hot hotstore.Store, notifier Notifier, log zerolog.Logger) *Processor {
	return &Processor{
		params:   params,
		hot:      hot,
		notifier: notifier,
		clock:    time.Now,
		log:      log,
	}
}

// SetClock overrides the wall clock. Tests only.
func (p *Processor) SetClock(fn func() time.Time) {
	p.clock = fn
}

// SubmitBid validates, scores and records one bid, returning its score
// and 1-based rank. Resubmission by the same bidder replaces the
// previous bid unconditionally, even at a lower price.
//
// Validation failures surface as the auction sentinel errors
// (ErrSessionNotFound, ErrSessionNotStarted, ErrSessionEnded,
// ErrSessionInactive, ErrPriceBelowReserve); a rejected bid leaves no
// trace in the hot store.
func (p *Processor) SubmitBid(ctx context.Context, principal *auction.Principal, sessionID uuid.UUID, price float64) (*auction.BidResult, error) {
	params, err := p.params.Params(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := p.clock().UTC()
	if err := p.params.EnsureBiddable(ctx, sessionID, params, now); err != nil {
		return nil, err
	}
	if price < params.Reserve {
		return nil, fmt.Errorf("bid %.2f below reserve %.2f: %w", price, params.Reserve, auction.ErrPriceBelowReserve)
	}

	responseTime := auction.ResponseSeconds(now, params.Start)
	score := auction.Score(params.Alpha, params.Beta, params.Gamma, price, responseTime, principal.Weight)

	bid := hotstore.Bid{
		SessionID: sessionID,
		UserID:    principal.ID,
		Price:     price,
		Score:     score,
		UpdatedAt: now,
		TTL:       bidTTL(params),
	}
	if err := p.hot.ApplyBid(ctx, bid); err != nil {
		return nil, err
	}

	rank, ok, err := p.hot.Rank(ctx, sessionID, principal.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The entry was just written; absence means the key expired or
		// was evicted between the two calls.
		return nil, fmt.Errorf("bid for user %s not ranked after write: %w", principal.ID, auction.ErrHotStoreUnavailable)
	}

	if p.notifier != nil {
		p.notifier.Notify(sessionID)
	}

	p.log.Debug().
		Stringer("session_id", sessionID).
		Stringer("user_id", principal.ID).
		Float64("price", price).
		Float64("score", score).
		Int("rank", rank).
		Msg("bid accepted")

	return &auction.BidResult{Score: score, Rank: rank}, nil
}

// bidTTL sizes the hot-store key lifetime off the session duration so
// the scoreboard survives the whole session plus the finalization tail.
func bidTTL(params *auction.Params) time.Duration {
	d := params.End.Sub(params.Start)
	if d < 0 {
		d = 0
	}
	return 2*d + bidKeyMargin
}
