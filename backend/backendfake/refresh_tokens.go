package backendfake

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	refreshTokenLength = 32 // bytes, hex encoded on the wire

	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// storedRefreshToken is the server side record of an opaque refresh token.
type storedRefreshToken struct {
	Token     string
	AccountID string
	Iat       time.Time
}

// refreshTokens issues and checks opaque refresh tokens. An account may hold
// several at once, one per signed-in browser.
type refreshTokens struct {
	mu        sync.Mutex
	tokens    map[string]*storedRefreshToken
	ttl       time.Duration
	singleUse bool
}

func newRefreshTokens(ttl time.Duration, singleUse bool) *refreshTokens {
	return &refreshTokens{tokens: make(map[string]*storedRefreshToken), ttl: ttl, singleUse: singleUse}
}

// Create generates a new refresh token for accountID and stores it
func (r *refreshTokens) Create(accountID string) (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	tokenStr := hex.EncodeToString(tokenBytes)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tokenStr] = &storedRefreshToken{Token: tokenStr, AccountID: accountID, Iat: NowTimeFunc()}
	return tokenStr, nil
}

// Redeem returns the account owning token. Expired tokens are dropped, and
// single use tokens are dropped on their first redemption.
func (r *refreshTokens) Redeem(token string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.tokens[token]
	if !ok {
		return "", false
	}
	if r.isExpired(rt) {
		delete(r.tokens, token)
		return "", false
	}
	if r.singleUse {
		delete(r.tokens, token)
	}
	return rt.AccountID, true
}

// Delete removes a refresh token from storage
func (r *refreshTokens) Delete(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
}

func (r *refreshTokens) isExpired(rt *storedRefreshToken) bool {
	return r.ttl > 0 && NowTimeFunc().Sub(rt.Iat) > r.ttl
}
