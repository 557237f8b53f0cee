package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
)

const (
	// liveStatusTTL bounds staleness while a session may still change
	// state (active, or paused and possibly resumed).
	liveStatusTTL = 10 * time.Second

	// endedStatusTTL applies once a session has definitively ended.
	endedStatusTTL = 5 * time.Minute

	statusActive   = "1"
	statusInactive = "0"
)

// paramStore is the slice of the hot store this cache needs.
type paramStore interface {
	SessionParams(ctx context.Context, sessionID uuid.UUID) (*auction.Params, bool, error)
	PutSessionParams(ctx context.Context, sessionID uuid.UUID, p auction.Params, ttl time.Duration) error
	SessionStatus(ctx context.Context, sessionID uuid.UUID) (string, bool, error)
	PutSessionStatus(ctx context.Context, sessionID uuid.UUID, status string, ttl time.Duration) error
}

// sessionSource reads session rows from the system of record.
type sessionSource interface {
	SessionByID(ctx context.Context, id uuid.UUID) (*auction.Session, error)
}

// ParamCache is the read-through cache for immutable session parameters
// and the short-TTL activity status.
type ParamCache struct {
	hot       paramStore
	db        sessionSource
	paramsTTL time.Duration
	log       zerolog.Logger
}

// NewParamCache wires the cache over the hot store and the durable
// store. paramsTTL bounds how long cached parameters live; since they
// are immutable once the session starts, hours are fine.
func NewParamCache(hot paramStore, db sessionSource, paramsTTL time.Duration, log zerolog.Logger) *ParamCache {
	return &ParamCache{
		hot:       hot,
		db:        db,
		paramsTTL: paramsTTL,
		log:       log,
	}
}

// Params returns the session's immutable parameters, reading through to
// the durable store on a cache miss. Returns
// auction.ErrSessionNotFound when the session does not exist.
func (c *ParamCache) Params(ctx context.Context, sessionID uuid.UUID) (*auction.Params, error) {
	p, ok, err := c.hot.SessionParams(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ok {
		return p, nil
	}

	s, err := c.db.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	params := auction.Params{
		Alpha:     s.Alpha,
		Beta:      s.Beta,
		Gamma:     s.Gamma,
		Reserve:   s.ReservePrice,
		Inventory: s.Inventory,
		Start:     s.StartTime,
		End:       s.EndTime,
	}
	if err := c.hot.PutSessionParams(ctx, sessionID, params, c.paramsTTL); err != nil {
		// Cache population is best-effort; the caller has its answer.
		c.log.Warn().Err(err).Stringer("session_id", sessionID).Msg("failed to cache session params")
	}
	return &params, nil
}

// EnsureBiddable validates that a bid at time now is admissible for the
// session: inside the time window and not administratively paused. The
// caller supplies params from a prior Params call so the common case
// costs at most one status lookup.
func (c *ParamCache) EnsureBiddable(ctx context.Context, sessionID uuid.UUID, p *auction.Params, now time.Time) error {
	if now.Before(p.Start) {
		return auction.ErrSessionNotStarted
	}
	if !now.Before(p.End) {
		// Definitively over; remember that with the long status TTL.
		if err := c.hot.PutSessionStatus(ctx, sessionID, statusInactive, endedStatusTTL); err != nil {
			c.log.Warn().Err(err).Stringer("session_id", sessionID).Msg("failed to cache ended status")
		}
		return auction.ErrSessionEnded
	}

	status, ok, err := c.hot.SessionStatus(ctx, sessionID)
	if err != nil {
		return err
	}
	if ok {
		if status == statusInactive {
			return auction.ErrSessionInactive
		}
		return nil
	}

	// Status cache miss: consult the durable store once and repopulate.
	s, err := c.db.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	status = statusActive
	if !s.IsActive {
		status = statusInactive
	}
	if err := c.hot.PutSessionStatus(ctx, sessionID, status, liveStatusTTL); err != nil {
		c.log.Warn().Err(err).Stringer("session_id", sessionID).Msg("failed to cache activity status")
	}
	if status == statusInactive {
		return auction.ErrSessionInactive
	}
	return nil
}
