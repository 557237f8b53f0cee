// Package core composes the pipeline's components behind the single
// in-process API the transport layer consumes: authenticate, submit a
// bid, read a leaderboard, subscribe to pushes, finalize a session.
// Transport code decodes requests, calls Core, and encodes responses;
// everything else lives behind this boundary.
package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/auth"
	"github.com/dreamware/flashbid/internal/bidding"
	"github.com/dreamware/flashbid/internal/broadcast"
	"github.com/dreamware/flashbid/internal/durable"
	"github.com/dreamware/flashbid/internal/hotstore"
	"github.com/dreamware/flashbid/internal/monitor"
)

// identityTTL is the hot-store lifetime of identity snapshots written
// at token issuance. Long, since weight changes are rare and the
// authenticator tolerates staleness.
const identityTTL = 24 * time.Hour

// Core is the facade over the bid pipeline.
type Core struct {
	authn     *auth.Authenticator
	tokens    *auth.TokenManager
	processor *bidding.Processor
	reader    *bidding.Reader
	bcast     *broadcast.Broadcaster
	mon       *monitor.Monitor
	db        durable.Store
	hot       hotstore.Store
	log       zerolog.Logger
}

// New wires the facade from fully constructed components.
func New(
	authn *auth.Authenticator,
	tokens *auth.TokenManager,
	processor *bidding.Processor,
	reader *bidding.Reader,
	bcast *broadcast.Broadcaster,
	mon *monitor.Monitor,
	db durable.Store,
	hot hotstore.Store,
	log zerolog.Logger,
) *Core {
	return &Core{
		authn:     authn,
		tokens:    tokens,
		processor: processor,
		reader:    reader,
		bcast:     bcast,
		mon:       mon,
		db:        db,
		hot:       hot,
		log:       log,
	}
}

// IssueToken signs a bearer token for an existing user and warms the
// hot-store identity snapshot so later authentications skip the durable
// store.
func (c *Core) IssueToken(ctx context.Context, userID uuid.UUID) (string, *auction.Principal, error) {
	p, err := c.db.UserByID(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	token, err := c.tokens.Issue(*p)
	if err != nil {
		return "", nil, err
	}

	if err := c.hot.PutIdentity(ctx, *p, identityTTL); err != nil {
		// Snapshot warming is best-effort; the token is already valid.
		c.log.Warn().Err(err).Stringer("user_id", userID).Msg("failed to cache identity snapshot")
	}
	return token, p, nil
}

// Authenticate resolves an opaque token to a principal.
func (c *Core) Authenticate(ctx context.Context, token string) (*auction.Principal, error) {
	return c.authn.Authenticate(ctx, token)
}

// SubmitBid runs the write path.
func (c *Core) SubmitBid(ctx context.Context, principal *auction.Principal, sessionID uuid.UUID, price float64) (*auction.BidResult, error) {
	return c.processor.SubmitBid(ctx, principal, sessionID, price)
}

// Leaderboard runs the read path.
func (c *Core) Leaderboard(ctx context.Context, sessionID uuid.UUID, page, pageSize int) (*auction.LeaderboardSnapshot, error) {
	return c.reader.Leaderboard(ctx, sessionID, page, pageSize)
}

// Subscribe attaches a live leaderboard feed for the session.
func (c *Core) Subscribe(sessionID uuid.UUID) *broadcast.Subscription {
	return c.bcast.Subscribe(sessionID)
}

// SubscribeEvents attaches a feed of session lifecycle events.
func (c *Core) SubscribeEvents() *broadcast.EventSubscription {
	return c.bcast.SubscribeEvents()
}

// FinalizeSession finalizes the session (a no-op when already done) and
// returns its frozen state.
func (c *Core) FinalizeSession(ctx context.Context, sessionID uuid.UUID) (*auction.SessionResults, error) {
	if err := c.mon.FinalizeSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.db.SessionResults(ctx, sessionID)
}

// Results returns the frozen state of a session.
func (c *Core) Results(ctx context.Context, sessionID uuid.UUID) (*auction.SessionResults, error) {
	return c.db.SessionResults(ctx, sessionID)
}

// Sessions lists all sessions, newest first.
func (c *Core) Sessions(ctx context.Context) ([]auction.Session, error) {
	return c.db.ListSessions(ctx)
}

// Health probes both stores.
func (c *Core) Health(ctx context.Context) error {
	if err := c.hot.Ping(ctx); err != nil {
		return err
	}
	return c.db.Ping(ctx)
}
