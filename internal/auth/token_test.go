package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/hotstore"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	p := auction.Principal{ID: uuid.New(), Username: "alice", Weight: 1.5}
	token, err := tm.Issue(p)
	require.NoError(t, err)

	userID, username, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, userID)
	assert.Equal(t, "alice", username)
}

func TestTokenBadSignature(t *testing.T) {
	issuer := NewTokenManager("secret-one", time.Hour)
	verifier := NewTokenManager("secret-two", time.Hour)

	token, err := issuer.Issue(auction.Principal{ID: uuid.New(), Username: "alice"})
	require.NoError(t, err)

	_, _, err = verifier.Verify(token)
	assert.ErrorIs(t, err, auction.ErrAuthFailed)
}

func TestTokenExpired(t *testing.T) {
	tm := NewTokenManager("test-secret", -time.Minute)

	token, err := tm.Issue(auction.Principal{ID: uuid.New(), Username: "alice"})
	require.NoError(t, err)

	_, _, err = tm.Verify(token)
	assert.ErrorIs(t, err, auction.ErrAuthFailed)
}

func TestTokenGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	_, _, err := tm.Verify("not.a.token")
	assert.ErrorIs(t, err, auction.ErrAuthFailed)
}

func newTestAuthenticator(t *testing.T, hot *hotstore.Memory) (*Authenticator, *TokenManager) {
	t.Helper()
	tm := NewTokenManager("test-secret", time.Hour)
	cache := NewCache(100, 5*time.Second)
	return NewAuthenticator(tm, cache, hot, zerolog.Nop()), tm
}

func TestAuthenticateResolvesSnapshot(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	a, tm := newTestAuthenticator(t, hot)

	p := auction.Principal{ID: uuid.New(), Username: "alice", Weight: 1.7, IsAdmin: true}
	require.NoError(t, hot.PutIdentity(ctx, p, time.Hour))

	token, err := tm.Issue(p)
	require.NoError(t, err)

	got, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p, *got)
}

func TestAuthenticateClaimsOnlyFallback(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	a, tm := newTestAuthenticator(t, hot)

	// No identity snapshot cached: the principal is rebuilt from claims
	// with the default weight.
	p := auction.Principal{ID: uuid.New(), Username: "bob", Weight: 1.9}
	token, err := tm.Issue(p)
	require.NoError(t, err)

	got, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "bob", got.Username)
	assert.Equal(t, 1.0, got.Weight)
	assert.False(t, got.IsAdmin)
}

func TestAuthenticateCachesPrincipal(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	a, tm := newTestAuthenticator(t, hot)

	p := auction.Principal{ID: uuid.New(), Username: "carol", Weight: 1.2}
	require.NoError(t, hot.PutIdentity(ctx, p, time.Hour))

	token, err := tm.Issue(p)
	require.NoError(t, err)

	first, err := a.Authenticate(ctx, token)
	require.NoError(t, err)

	// Remove the snapshot; the cached principal must still be served.
	require.NoError(t, hot.DeleteKeys(ctx, []string{"user:" + p.ID.String()}))

	second, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, *first, *second)
}

func TestAuthenticateRejectsInvalidToken(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAuthenticator(t, hotstore.NewMemory())

	_, err := a.Authenticate(ctx, "bogus")
	assert.True(t, errors.Is(err, auction.ErrAuthFailed))
}
