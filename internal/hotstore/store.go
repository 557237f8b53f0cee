package hotstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/flashbid/internal/auction"
)

// Session activity status values stored under session:active:{id}.
const (
	StatusActive   = "1"
	StatusInactive = "0"
)

// Bid is the full set of hot-store mutations for one accepted bid,
// applied in a single pipelined operation.
type Bid struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Price     float64
	Score     float64
	UpdatedAt time.Time
	TTL       time.Duration // refresh applied to every touched key
}

// ScoreEntry is one (user, score) pair from a scoreboard range query.
type ScoreEntry struct {
	UserID uuid.UUID
	Score  float64
}

// BidFields is the decoded per-bid hash (bid:{session}:{user}).
type BidFields struct {
	Price     float64
	Score     float64
	UpdatedAt time.Time
}

// Metadata is one decoded persister-facing bid metadata hash.
type Metadata struct {
	UserID    uuid.UUID
	Price     float64
	Score     float64
	UpdatedAt time.Time
}

// Store is the typed hot-store contract shared by the request paths and
// the background jobs. All implementations must be safe for concurrent
// use.
type Store interface {
	// ApplyBid upserts the scoreboard entry, the per-bid hash and the
	// persister metadata, refreshes TTLs and marks the session dirty,
	// all in one pipelined round-trip applied in issue order.
	ApplyBid(ctx context.Context, b Bid) error

	// Rank returns the 1-based descending rank of userID in the
	// session's scoreboard. ok is false when the user has no bid.
	Rank(ctx context.Context, sessionID, userID uuid.UUID) (rank int, ok bool, err error)

	// ScoreboardPage returns entries [offset, offset+count) of the
	// descending scoreboard together with the scoreboard's total size,
	// fetched in one pipelined call.
	ScoreboardPage(ctx context.Context, sessionID uuid.UUID, offset, count int64) ([]ScoreEntry, int64, error)

	// ScoreboardRange returns entries [start, stop] of the descending
	// scoreboard; stop = -1 means through the end.
	ScoreboardRange(ctx context.Context, sessionID uuid.UUID, start, stop int64) ([]ScoreEntry, error)

	// BidRecords bulk-fetches the per-bid hashes for the given users in
	// one pipelined call. Users without a bid hash are absent from the
	// result.
	BidRecords(ctx context.Context, sessionID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]BidFields, error)

	// SessionParams returns the cached immutable session parameters.
	// ok is false on a cache miss.
	SessionParams(ctx context.Context, sessionID uuid.UUID) (p *auction.Params, ok bool, err error)

	// PutSessionParams caches the immutable session parameters.
	PutSessionParams(ctx context.Context, sessionID uuid.UUID, p auction.Params, ttl time.Duration) error

	// SessionStatus returns the cached activity status ("1" or "0").
	// ok is false on a cache miss.
	SessionStatus(ctx context.Context, sessionID uuid.UUID) (status string, ok bool, err error)

	// PutSessionStatus caches the activity status with its own short TTL.
	PutSessionStatus(ctx context.Context, sessionID uuid.UUID, status string, ttl time.Duration) error

	// Identity returns the cached identity snapshot for one user.
	// ok is false on a cache miss.
	Identity(ctx context.Context, userID uuid.UUID) (p *auction.Principal, ok bool, err error)

	// Identities bulk-fetches identity snapshots in one pipelined call.
	// Users without a snapshot are absent from the result.
	Identities(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]auction.Principal, error)

	// PutIdentity caches an identity snapshot.
	PutIdentity(ctx context.Context, p auction.Principal, ttl time.Duration) error

	// MarkDirty adds the session to the dirty-session set.
	MarkDirty(ctx context.Context, sessionID uuid.UUID) error

	// MarkClean removes the session from the dirty-session set.
	MarkClean(ctx context.Context, sessionID uuid.UUID) error

	// DirtySnapshot atomically reads and clears the dirty-session set.
	// A bid arriving mid-snapshot re-adds its session afterwards.
	DirtySnapshot(ctx context.Context) ([]uuid.UUID, error)

	// ScanBidMetadata collects every bid metadata hash for the session
	// using a cursor-based scan, decoding records defensively. It also
	// returns the raw keys so the caller can delete them after a
	// successful persist.
	ScanBidMetadata(ctx context.Context, sessionID uuid.UUID) ([]Metadata, []string, error)

	// DeleteKeys removes the given raw keys.
	DeleteKeys(ctx context.Context, keys []string) error

	// Ping probes connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}
