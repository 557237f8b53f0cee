package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/dreamware/flashbid/internal/auction"
)

// Claims is the token payload: the principal's id and username plus the
// registered expiry and issued-at fields.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256-signed bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a token manager signing with the given secret;
// issued tokens expire after ttl.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the principal.
func (tm *TokenManager) Issue(p auction.Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   p.ID.String(),
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks the token's signature and expiry and returns the
// embedded identity. Any failure maps to auction.ErrAuthFailed.
func (tm *TokenManager) Verify(token string) (uuid.UUID, string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return tm.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, "", fmt.Errorf("verify token: %w", auction.ErrAuthFailed)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil || claims.Username == "" {
		return uuid.Nil, "", fmt.Errorf("token claims: %w", auction.ErrAuthFailed)
	}
	return userID, claims.Username, nil
}
