package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dreamware/flashbid/internal/auction"
)

// defaultWeight is the reputation weight assumed when the identity
// snapshot is unavailable.
const defaultWeight = 1.0

// IdentitySource reads identity snapshots; the hot store implements it.
type IdentitySource interface {
	Identity(ctx context.Context, userID uuid.UUID) (*auction.Principal, bool, error)
}

// Authenticator resolves bearer tokens to principals: token cache, then
// signature verification plus the hot store identity snapshot, then a
// claims-only fallback.
type Authenticator struct {
	tokens     *TokenManager
	cache      *Cache
	identities IdentitySource
	log        zerolog.Logger
}

// NewAuthenticator wires the token manager, the token cache and the
// identity source.
func NewAuthenticator(tokens *TokenManager, cache *Cache, identities IdentitySource, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		tokens:     tokens,
		cache:      cache,
		identities: identities,
		log:        log,
	}
}

// Authenticate resolves the token to a principal or returns
// auction.ErrAuthFailed.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*auction.Principal, error) {
	if p, ok := a.cache.Get(token); ok {
		return &p, nil
	}

	userID, username, err := a.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	principal := auction.Principal{
		ID:       userID,
		Username: username,
		Weight:   defaultWeight,
	}
	snapshot, ok, err := a.identities.Identity(ctx, userID)
	switch {
	case err != nil:
		// The token is valid; a hot-store hiccup must not fail
		// authentication. Proceed with the claims-only principal.
		a.log.Warn().Err(err).Stringer("user_id", userID).Msg("identity snapshot unavailable, using claims-only principal")
	case ok:
		principal = *snapshot
	}

	a.cache.Set(token, principal)
	return &principal, nil
}
