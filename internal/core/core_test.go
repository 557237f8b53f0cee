package core

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/auth"
	"github.com/dreamware/flashbid/internal/bidding"
	"github.com/dreamware/flashbid/internal/broadcast"
	"github.com/dreamware/flashbid/internal/durable"
	"github.com/dreamware/flashbid/internal/hotstore"
	"github.com/dreamware/flashbid/internal/monitor"
	"github.com/dreamware/flashbid/internal/persist"
	"github.com/dreamware/flashbid/internal/session"
)

type coreFixture struct {
	core    *Core
	hot     *hotstore.Memory
	db      *durable.Memory
	session auction.Session
	user    auction.Principal
}

func newCoreFixture(t *testing.T) *coreFixture {
	t.Helper()
	log := zerolog.Nop()

	hot := hotstore.NewMemory()
	db := durable.NewMemory()

	user := auction.Principal{ID: uuid.New(), Username: "alice", Weight: 1.5}
	db.PutUser(user)

	now := time.Now().UTC()
	s := auction.Session{
		ID:           uuid.New(),
		ProductID:    uuid.New(),
		ReservePrice: 100,
		Inventory:    2,
		Alpha:        0.5,
		Beta:         1000,
		Gamma:        2,
		StartTime:    now.Add(-time.Minute),
		EndTime:      now.Add(time.Hour),
		IsActive:     true,
	}
	db.PutSession(s)

	params := session.NewParamCache(hot, db, time.Hour, log)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	authn := auth.NewAuthenticator(tokens, auth.NewCache(100, 5*time.Second), hot, log)

	reader := bidding.NewReader(params, hot, db, log)
	bcast := broadcast.NewBroadcaster(func(ctx context.Context, sessionID uuid.UUID) (*auction.LeaderboardSnapshot, error) {
		return reader.Leaderboard(ctx, sessionID, 1, 50)
	}, log)
	t.Cleanup(bcast.Close)

	processor := bidding.NewProcessor(params, hot, bcast, log)
	persister := persist.NewPersister(hot, db, time.Second, log)
	mon := monitor.NewMonitor(db, hot, persister, bcast, time.Second, log)

	return &coreFixture{
		core:    New(authn, tokens, processor, reader, bcast, mon, db, hot, log),
		hot:     hot,
		db:      db,
		session: s,
		user:    user,
	}
}

func TestIssueTokenWarmsIdentity(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	token, p, err := f.core.IssueToken(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, f.user, *p)

	cached, ok, err := f.hot.Identity(ctx, f.user.ID)
	require.NoError(t, err)
	require.True(t, ok, "issuance must warm the identity snapshot")
	assert.Equal(t, f.user, *cached)

	// The snapshot carries the real weight through authentication.
	resolved, err := f.core.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 1.5, resolved.Weight)
}

func TestIssueTokenUnknownUser(t *testing.T) {
	f := newCoreFixture(t)

	_, _, err := f.core.IssueToken(context.Background(), uuid.New())
	assert.ErrorIs(t, err, auction.ErrUserNotFound)
}

func TestBidThroughFacade(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	token, _, err := f.core.IssueToken(ctx, f.user.ID)
	require.NoError(t, err)
	principal, err := f.core.Authenticate(ctx, token)
	require.NoError(t, err)

	result, err := f.core.SubmitBid(ctx, principal, f.session.ID, 250)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rank)

	snap, err := f.core.Leaderboard(ctx, f.session.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, f.user.ID, snap.Entries[0].UserID)
	assert.Equal(t, "alice", snap.Entries[0].Username)
}

func TestSubscribeReceivesBidUpdates(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	sub := f.core.Subscribe(f.session.ID)
	require.NotNil(t, sub)
	defer sub.Close()

	principal := &auction.Principal{ID: f.user.ID, Username: f.user.Username, Weight: 1}
	_, err := f.core.SubmitBid(ctx, principal, f.session.ID, 250)
	require.NoError(t, err)

	select {
	case snap := <-sub.C:
		assert.Equal(t, 1, snap.TotalCount)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed snapshot")
	}
}

func TestFinalizeReturnsFrozenState(t *testing.T) {
	ctx := context.Background()
	f := newCoreFixture(t)

	principal := &auction.Principal{ID: f.user.ID, Username: f.user.Username, Weight: 1}
	_, err := f.core.SubmitBid(ctx, principal, f.session.ID, 250)
	require.NoError(t, err)

	res, err := f.core.FinalizeSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.False(t, res.Session.IsActive)
	require.Len(t, res.Rankings, 1)
	assert.True(t, res.Rankings[0].IsWinner)

	// Idempotent: a second call returns the same frozen state.
	again, err := f.core.FinalizeSession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestHealth(t *testing.T) {
	f := newCoreFixture(t)
	assert.NoError(t, f.core.Health(context.Background()))
}
