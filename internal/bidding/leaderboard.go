package bidding

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/hotstore"
	"github.com/dreamware/flashbid/internal/session"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// identitySource resolves display names from the system of record for
// users missing from the hot identity cache.
type identitySource interface {
	UsernamesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// Reader is the leaderboard read path. It serves entirely from the hot
// store except for a single bulk username lookup covering identity-cache
// misses.
type Reader struct {
	params *session.ParamCache
	hot    hotstore.Store
	db     identitySource
	log    zerolog.Logger
}

// NewReader wires the read path.
func NewReader(params *session.ParamCache, hot hotstore.Store, db identitySource, log zerolog.Logger) *Reader {
	return &Reader{
		params: params,
		hot:    hot,
		db:     db,
		log:    log,
	}
}

// Leaderboard returns one page of the session's live leaderboard in
// descending score order. page is 1-based and clamped to >= 1; pageSize
// is clamped to [1, 200] with 50 as the default for non-positive input.
//
// A session with no bids yields an empty snapshot, not an error. Unknown
// sessions return auction.ErrSessionNotFound.
func (r *Reader) Leaderboard(ctx context.Context, sessionID uuid.UUID, page, pageSize int) (*auction.LeaderboardSnapshot, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	params, err := r.params.Params(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	offset := int64(page-1) * int64(pageSize)
	entries, total, err := r.hot.ScoreboardPage(ctx, sessionID, offset, int64(pageSize))
	if err != nil {
		return nil, err
	}

	snap := &auction.LeaderboardSnapshot{
		SessionID:  sessionID,
		Entries:    []auction.LeaderboardEntry{},
		Page:       page,
		PageSize:   pageSize,
		TotalCount: int(total),
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
	if total == 0 {
		return snap, nil
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	records, err := r.hot.BidRecords(ctx, sessionID, ids)
	if err != nil {
		return nil, err
	}
	names := r.resolveUsernames(ctx, ids)

	k := params.Inventory
	for i, e := range entries {
		rank := int(offset) + i + 1
		snap.Entries = append(snap.Entries, auction.LeaderboardEntry{
			UserID:   e.UserID,
			Username: names[e.UserID],
			Price:    records[e.UserID].Price,
			Score:    e.Score,
			Rank:     rank,
			IsWinner: rank <= k,
		})
	}

	if hb, err := r.highestBid(ctx, sessionID, snap.Entries); err == nil {
		snap.HighestBid = hb
	} else {
		r.log.Warn().Err(err).Stringer("session_id", sessionID).Msg("failed to resolve highest bid")
	}

	if total >= int64(k) {
		kth, err := r.hot.ScoreboardRange(ctx, sessionID, int64(k-1), int64(k-1))
		if err != nil {
			return nil, err
		}
		if len(kth) == 1 {
			ts := kth[0].Score
			snap.ThresholdScore = &ts
		}
	}

	return snap, nil
}

// resolveUsernames maps user ids to display names, preferring the hot
// identity cache and falling back to one bulk durable lookup for the
// rest. Unresolvable users get a deterministic placeholder so a slow or
// failing durable store never breaks the read path.
func (r *Reader) resolveUsernames(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]string {
	names := make(map[uuid.UUID]string, len(ids))

	cached, err := r.hot.Identities(ctx, ids)
	if err != nil {
		r.log.Warn().Err(err).Msg("identity cache lookup failed")
		cached = nil
	}

	var missing []uuid.UUID
	for _, id := range ids {
		if p, ok := cached[id]; ok {
			names[id] = p.Username
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		resolved, err := r.db.UsernamesByID(ctx, missing)
		if err != nil {
			r.log.Warn().Err(err).Int("count", len(missing)).Msg("bulk username lookup failed")
		} else {
			for id, name := range resolved {
				names[id] = name
			}
		}
	}

	for _, id := range ids {
		if _, ok := names[id]; !ok {
			names[id] = "User " + id.String()
		}
	}
	return names
}

// highestBid returns the bid price of the current top-ranked entry, or
// nil when the scoreboard is empty. When the served page already starts
// at rank 1 it reuses the page data instead of re-querying.
func (r *Reader) highestBid(ctx context.Context, sessionID uuid.UUID, pageEntries []auction.LeaderboardEntry) (*float64, error) {
	if len(pageEntries) > 0 && pageEntries[0].Rank == 1 {
		price := pageEntries[0].Price
		return &price, nil
	}

	top, err := r.hot.ScoreboardRange(ctx, sessionID, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, nil
	}
	records, err := r.hot.BidRecords(ctx, sessionID, []uuid.UUID{top[0].UserID})
	if err != nil {
		return nil, err
	}
	rec, ok := records[top[0].UserID]
	if !ok {
		return nil, nil
	}
	price := rec.Price
	return &price, nil
}
