package hotstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/flashbid/internal/auction"
)

func testBid(sessionID, userID uuid.UUID, price, score float64, at time.Time) Bid {
	return Bid{
		SessionID: sessionID,
		UserID:    userID,
		Price:     price,
		Score:     score,
		UpdatedAt: at,
		TTL:       time.Hour,
	}
}

func TestApplyBidCreatesAllStructures(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sid := uuid.New()
	uid := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, store.ApplyBid(ctx, testBid(sid, uid, 250, 627, now)))

	rank, ok, err := store.Rank(ctx, sid, uid)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, rank)

	records, err := store.BidRecords(ctx, sid, []uuid.UUID{uid})
	require.NoError(t, err)
	require.Contains(t, records, uid)
	assert.Equal(t, 250.0, records[uid].Price)
	assert.Equal(t, 627.0, records[uid].Score)
	assert.True(t, records[uid].UpdatedAt.Equal(now))

	dirty, err := store.DirtySnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sid}, dirty)

	metadata, keys, err := store.ScanBidMetadata(ctx, sid)
	require.NoError(t, err)
	require.Len(t, metadata, 1)
	require.Len(t, keys, 1)
	assert.Equal(t, uid, metadata[0].UserID)
	assert.Equal(t, 250.0, metadata[0].Price)
}

func TestRebidUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sid := uuid.New()
	uid := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, store.ApplyBid(ctx, testBid(sid, uid, 250, 627, now)))
	require.NoError(t, store.ApplyBid(ctx, testBid(sid, uid, 300, 402, now.Add(2*time.Second))))

	entries, total, err := store.ScoreboardPage(ctx, sid, 0, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "resubmission must not create a second entry")
	require.Len(t, entries, 1)
	assert.Equal(t, 402.0, entries[0].Score)

	metadata, _, err := store.ScanBidMetadata(ctx, sid)
	require.NoError(t, err)
	require.Len(t, metadata, 1)
	assert.Equal(t, 300.0, metadata[0].Price)
}

func TestDescendingOrderAndTieBreak(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sid := uuid.New()
	now := time.Now().UTC()

	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000001")
	top := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")

	require.NoError(t, store.ApplyBid(ctx, testBid(sid, low, 200, 602, now)))
	require.NoError(t, store.ApplyBid(ctx, testBid(sid, high, 200, 602, now)))
	require.NoError(t, store.ApplyBid(ctx, testBid(sid, top, 500, 900, now)))

	entries, err := store.ScoreboardRange(ctx, sid, 0, -1)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Highest score first; equal scores in reverse-lexicographic member
	// order, matching Redis ZREVRANGE.
	assert.Equal(t, top, entries[0].UserID)
	assert.Equal(t, high, entries[1].UserID)
	assert.Equal(t, low, entries[2].UserID)

	rank, ok, err := store.Rank(ctx, sid, low)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, rank)
}

func TestRankMissingUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, ok, err := store.Rank(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScoreboardPageBounds(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sid := uuid.New()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		uid := uuid.New()
		require.NoError(t, store.ApplyBid(ctx, testBid(sid, uid, 200, float64(100+i), now)))
	}

	tests := []struct {
		name      string
		offset    int64
		count     int64
		wantLen   int
		wantTotal int64
	}{
		{"first page", 0, 3, 3, 5},
		{"second page", 3, 3, 2, 5},
		{"past the end", 10, 3, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, total, err := store.ScoreboardPage(ctx, sid, tt.offset, tt.count)
			require.NoError(t, err)
			assert.Len(t, entries, tt.wantLen)
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestDirtySnapshotClears(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sid := uuid.New()

	require.NoError(t, store.MarkDirty(ctx, sid))

	first, err := store.DirtySnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sid}, first)

	second, err := store.DirtySnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, second, "snapshot must clear the set")
}

func TestMarkCleanRemovesSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sid := uuid.New()

	require.NoError(t, store.MarkDirty(ctx, sid))
	require.NoError(t, store.MarkClean(ctx, sid))

	dirty, err := store.DirtySnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestDeleteKeysRemovesMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sid := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, store.ApplyBid(ctx, testBid(sid, uuid.New(), 250, 627, now)))

	_, keys, err := store.ScanBidMetadata(ctx, sid)
	require.NoError(t, err)
	require.NotEmpty(t, keys)

	require.NoError(t, store.DeleteKeys(ctx, keys))

	records, keys, err := store.ScanBidMetadata(ctx, sid)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, keys)
}

func TestSessionParamsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sid := uuid.New()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	params := auction.Params{
		Alpha:     0.5,
		Beta:      1000,
		Gamma:     2,
		Reserve:   200,
		Inventory: 5,
		Start:     start,
		End:       start.Add(time.Minute),
	}

	_, ok, err := store.SessionParams(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok, "empty cache must miss")

	require.NoError(t, store.PutSessionParams(ctx, sid, params, time.Hour))

	got, ok, err := store.SessionParams(ctx, sid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, params, *got)
}

func TestSessionStatusTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sid := uuid.New()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.PutSessionStatus(ctx, sid, StatusActive, 10*time.Second))

	status, ok, err := store.SessionStatus(ctx, sid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusActive, status)

	// Advance past the TTL; the entry must be gone.
	now = now.Add(11 * time.Second)
	_, ok, err = store.SessionStatus(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdentityRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	p := auction.Principal{ID: uuid.New(), Username: "alice", Weight: 1.5, IsAdmin: true}
	require.NoError(t, store.PutIdentity(ctx, p, time.Hour))

	got, ok, err := store.Identity(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p, *got)

	other := uuid.New()
	m, err := store.Identities(ctx, []uuid.UUID{p.ID, other})
	require.NoError(t, err)
	assert.Contains(t, m, p.ID)
	assert.NotContains(t, m, other)
}
