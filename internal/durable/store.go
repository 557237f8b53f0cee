package durable

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/flashbid/internal/auction"
)

// Store is the system-of-record contract. All implementations must be
// safe for concurrent use.
type Store interface {
	// SessionByID returns the full session row, or
	// auction.ErrSessionNotFound.
	SessionByID(ctx context.Context, id uuid.UUID) (*auction.Session, error)

	// ListSessions returns all sessions, newest start time first.
	ListSessions(ctx context.Context) ([]auction.Session, error)

	// ExpiredActiveSessions returns sessions still marked active whose
	// end time is at or before now.
	ExpiredActiveSessions(ctx context.Context, now time.Time) ([]auction.Session, error)

	// UpsertBids writes the records in one transactional batch with
	// conflict resolution on (session_id, user_id). Idempotent.
	UpsertBids(ctx context.Context, records []auction.BidRecord) error

	// BidsBySession returns the reconciled bids for one session.
	BidsBySession(ctx context.Context, sessionID uuid.UUID) ([]auction.BidRecord, error)

	// UserByID returns the full identity row, or auction.ErrUserNotFound.
	UserByID(ctx context.Context, id uuid.UUID) (*auction.Principal, error)

	// UsernamesByID resolves display names in a single bulk lookup.
	// Unknown ids are absent from the result.
	UsernamesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)

	// FinalizeSession writes the final ranking rows, sets final_price
	// and flips is_active, all in one transaction. It reports false
	// without writing anything when the session is already finalized.
	FinalizeSession(ctx context.Context, sessionID uuid.UUID, finalPrice float64, ranks []auction.FinalRank) (bool, error)

	// SessionResults returns the session and its frozen ranking.
	SessionResults(ctx context.Context, sessionID uuid.UUID) (*auction.SessionResults, error)

	// Ping probes connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close()
}
