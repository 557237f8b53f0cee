package auction

import (
	"time"

	"github.com/google/uuid"
)

// Principal is the resolved identity behind an authentication token.
// It is immutable for the lifetime of the token; Weight is the positive
// reputation multiplier used by the scoring formula.
type Principal struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Weight   float64   `json:"weight"`
	IsAdmin  bool      `json:"is_admin"`
}

// Session is a time-bounded auction for a fixed inventory of K winning
// slots. Alpha, Beta, Gamma and the timing fields are immutable once the
// session starts. FinalPrice is nil until finalization sets it, exactly
// once.
type Session struct {
	ID           uuid.UUID `json:"id"`
	ProductID    uuid.UUID `json:"product_id"`
	ReservePrice float64   `json:"reserve_price"`
	FinalPrice   *float64  `json:"final_price,omitempty"`
	Inventory    int       `json:"inventory"`
	Alpha        float64   `json:"alpha"`
	Beta         float64   `json:"beta"`
	Gamma        float64   `json:"gamma"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	IsActive     bool      `json:"is_active"`
}

// Params is the immutable per-session parameter subset cached on the hot
// path so that bid validation and scoring never touch the durable store.
type Params struct {
	Alpha     float64   `json:"alpha"`
	Beta      float64   `json:"beta"`
	Gamma     float64   `json:"gamma"`
	Reserve   float64   `json:"reserve_price"`
	Inventory int       `json:"inventory"`
	Start     time.Time `json:"start_time"`
	End       time.Time `json:"end_time"`
}

// BidRecord is the durable projection of one bidder's current bid in one
// session. Exactly one record exists per (SessionID, UserID) pair;
// resubmission updates it in place.
type BidRecord struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Price     float64   `json:"price"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BidResult is the write path's answer to an accepted bid.
type BidResult struct {
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// LeaderboardEntry is one row of a paged leaderboard snapshot. Rank is
// 1-based across the whole scoreboard, not within the page.
type LeaderboardEntry struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Price    float64   `json:"price"`
	Score    float64   `json:"score"`
	Rank     int       `json:"rank"`
	IsWinner bool      `json:"is_winner"`
}

// LeaderboardSnapshot is the paged read-path response shape, also emitted
// by the push broadcaster on change.
//
// HighestBid is the bid price of the current top-ranked entry (not the
// maximum price across all bidders; the two differ when a lower-priced
// but earlier bid outranks a higher one). ThresholdScore is the score of
// the K-th ranked entry when at least K bidders exist, nil otherwise.
type LeaderboardSnapshot struct {
	SessionID      uuid.UUID          `json:"session_id"`
	Entries        []LeaderboardEntry `json:"entries"`
	Page           int                `json:"page"`
	PageSize       int                `json:"page_size"`
	TotalCount     int                `json:"total_count"`
	TotalPages     int                `json:"total_pages"`
	HighestBid     *float64           `json:"highest_bid,omitempty"`
	ThresholdScore *float64           `json:"threshold_score,omitempty"`
}

// FinalRank is one row of a session's frozen final ranking, written
// exactly once at finalization. Rows with Rank <= K carry IsWinner.
type FinalRank struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Rank      int       `json:"rank"`
	Price     float64   `json:"price"`
	Score     float64   `json:"score"`
	IsWinner  bool      `json:"is_winner"`
}

// SessionResults is the durable read model for a finalized session.
type SessionResults struct {
	Session  Session     `json:"session"`
	Rankings []FinalRank `json:"rankings"`
}

// SessionStatus labels a session's lifecycle state on the global
// session-list topic.
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"
)

// SessionEvent is published on the broadcaster's global topic when a
// session is created or changes state.
type SessionEvent struct {
	SessionID uuid.UUID     `json:"session_id"`
	Status    SessionStatus `json:"status"`
}
