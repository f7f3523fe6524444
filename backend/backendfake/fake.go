// Package backendfake is an in-memory authentication backend for tests and local development.
package backendfake

import (
	"context"
	"crypto"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-role-sessions/backend"
	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/storage"
	tokenjwt "github.com/jrsteele09/go-role-sessions/token/jwt"
	"github.com/jrsteele09/go-role-sessions/token/keys"
	"golang.org/x/crypto/bcrypt"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	// Issuer is the iss claim of every token the fake signs.
	Issuer = "backendfake"

	// KeyID is the kid of the fake's signing key.
	KeyID = "backendfake-1"

	DefaultAccessTTL = 15 * time.Minute
)

// Endpoint names one backend call, for counters and injected failures.
type Endpoint string

const (
	EndpointLogin     Endpoint = "login"
	EndpointRefresh   Endpoint = "refresh"
	EndpointMe        Endpoint = "me"
	EndpointHierarchy Endpoint = "hierarchy"
)

// Account is a registered identity.
type Account struct {
	Username      string
	Password      string // plain text on input, only the bcrypt hash is kept
	Role          string
	RoleEffective string
	Category      string
	IsStaff       bool
	IsSuperuser   bool
	FullName      string
	Email         string
	Phone         string
	Pincode       string
}

type account struct {
	Account
	id           string
	passwordHash string
}

// FakeBackend implements backend.Client in memory and signs RS256 tokens.
type FakeBackend struct {
	mu       sync.Mutex
	signer   *keys.Signer
	accounts []*account
	refresh  *refreshTokens

	keyPair          *keys.KeyPair
	accessTTL        time.Duration
	refreshTTL       time.Duration
	singleUseRefresh bool

	calls  map[Endpoint]int
	errs   map[Endpoint]error
	delays map[Endpoint]time.Duration
}

var _ backend.Client = (*FakeBackend)(nil)

// Option configures a FakeBackend.
type Option func(*FakeBackend)

// WithAccessTTL sets the lifetime of issued access tokens. A negative TTL issues already expired tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(f *FakeBackend) {
		f.accessTTL = d
	}
}

// WithSingleUseRefresh makes every refresh token valid for one exchange only.
func WithSingleUseRefresh() Option {
	return func(f *FakeBackend) {
		f.singleUseRefresh = true
	}
}

// WithRefreshTTL sets how long refresh tokens stay redeemable. Zero never expires them.
func WithRefreshTTL(d time.Duration) Option {
	return func(f *FakeBackend) {
		f.refreshTTL = d
	}
}

// WithKeyPair signs with kp instead of a freshly generated key.
func WithKeyPair(kp *keys.KeyPair) Option {
	return func(f *FakeBackend) {
		f.keyPair = kp
	}
}

// New creates an empty fake backend. Without WithKeyPair it signs with a fresh RSA key.
func New(opts ...Option) (*FakeBackend, error) {
	f := &FakeBackend{
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		calls:      make(map[Endpoint]int),
		errs:       make(map[Endpoint]error),
		delays:     make(map[Endpoint]time.Duration),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.keyPair == nil {
		kp, err := keys.GenerateRSAKeyPair(KeyID, 2048)
		if err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
		f.keyPair = kp
	}
	f.signer = keys.NewSigner(f.keyPair)
	f.refresh = newRefreshTokens(f.refreshTTL, f.singleUseRefresh)
	return f, nil
}

// PublicKey returns the key that verifies the fake's tokens.
func (f *FakeBackend) PublicKey() crypto.PublicKey {
	return f.signer.PublicKey()
}

// KeySet verifies the fake's tokens without fetching its JWKS document.
func (f *FakeBackend) KeySet() oidc.KeySet {
	return f.signer.KeySet()
}

// JWKS is the key set document served at backend.JWKSPath.
func (f *FakeBackend) JWKS() keys.JWKS {
	return f.signer.GetJWKS()
}

// Register adds an account. Several accounts may share an email or phone,
// which makes a login with that identifier ambiguous.
func (f *FakeBackend) Register(a Account) error {
	if a.Username == "" || a.Password == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.Username == a.Username {
			return fmt.Errorf("username %q already registered", a.Username)
		}
	}
	a.Password = ""
	f.accounts = append(f.accounts, &account{Account: a, id: uuid.NewString(), passwordHash: string(hash)})
	return nil
}

// SetError makes every following call to e fail with err. A nil err clears it.
func (f *FakeBackend) SetError(e Endpoint, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, e)
		return
	}
	f.errs[e] = err
}

// SetDelay makes every following call to e wait d before answering.
func (f *FakeBackend) SetDelay(e Endpoint, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[e] = d
}

// Calls returns how many times e has been called.
func (f *FakeBackend) Calls(e Endpoint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[e]
}

// ResetCalls zeroes all call counters.
func (f *FakeBackend) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[Endpoint]int)
}

// enter counts the call, applies the injected delay and returns the injected error.
func (f *FakeBackend) enter(ctx context.Context, e Endpoint) error {
	f.mu.Lock()
	f.calls[e]++
	delay, err := f.delays[e], f.errs[e]
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// Login checks the password of the account matching username, email or phone.
func (f *FakeBackend) Login(ctx context.Context, creds backend.Credentials) (backend.TokenPair, error) {
	if err := f.enter(ctx, EndpointLogin); err != nil {
		return backend.TokenPair{}, err
	}

	f.mu.Lock()
	matches := f.match(creds.Username)
	f.mu.Unlock()

	switch {
	case len(matches) == 0:
		return backend.TokenPair{}, errors.Wrapf(errors.ErrInvalidCredentials, "no active account found with the given credentials")
	case len(matches) > 1:
		candidates := make([]string, 0, len(matches))
		for _, m := range matches {
			candidates = append(candidates, m.Username)
		}
		sort.Strings(candidates)
		return backend.TokenPair{}, &errors.AmbiguousIdentityError{Candidates: candidates}
	}

	acc := matches[0]
	if bcrypt.CompareHashAndPassword([]byte(acc.passwordHash), []byte(creds.Password)) != nil {
		return backend.TokenPair{}, errors.Wrapf(errors.ErrInvalidCredentials, "no active account found with the given credentials")
	}
	return f.issue(acc)
}

func (f *FakeBackend) match(identifier string) []*account {
	identifier = strings.TrimSpace(identifier)
	for _, a := range f.accounts {
		if a.Username == identifier {
			return []*account{a}
		}
	}
	var matches []*account
	for _, a := range f.accounts {
		if identifier != "" && (strings.EqualFold(a.Email, identifier) || a.Phone == identifier) {
			matches = append(matches, a)
		}
	}
	return matches
}

// Issue returns a token pair for username without checking a password.
func (f *FakeBackend) Issue(username string) (backend.TokenPair, error) {
	f.mu.Lock()
	acc := f.byUsername(username)
	f.mu.Unlock()
	if acc == nil {
		return backend.TokenPair{}, errors.Wrapf(errors.ErrNotFound, "account %q", username)
	}
	return f.issue(acc)
}

func (f *FakeBackend) issue(acc *account) (backend.TokenPair, error) {
	access, err := f.sign(acc)
	if err != nil {
		return backend.TokenPair{}, err
	}
	refresh, err := f.refresh.Create(acc.id)
	if err != nil {
		return backend.TokenPair{}, err
	}
	return backend.TokenPair{Access: access, Refresh: refresh}, nil
}

// AccessToken signs an access token for username that expires after ttl.
func (f *FakeBackend) AccessToken(username string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	acc := f.byUsername(username)
	f.mu.Unlock()
	if acc == nil {
		return "", errors.Wrapf(errors.ErrNotFound, "account %q", username)
	}
	return f.signWithTTL(acc, ttl)
}

func (f *FakeBackend) sign(acc *account) (string, error) {
	return f.signWithTTL(acc, f.accessTTL)
}

func (f *FakeBackend) signWithTTL(acc *account, ttl time.Duration) (string, error) {
	now := NowTimeFunc()
	claims := tokenjwt.Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   acc.id,
			ID:        uuid.NewString(),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
		Role:          acc.Role,
		RoleEffective: acc.RoleEffective,
		Category:      acc.Category,
		IsStaff:       acc.IsStaff,
		IsSuperuser:   acc.IsSuperuser,
		Username:      acc.Username,
		FullName:      acc.FullName,
	}
	signed, err := f.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Refresh exchanges a refresh token for a new access token.
func (f *FakeBackend) Refresh(ctx context.Context, refresh string) (string, error) {
	if err := f.enter(ctx, EndpointRefresh); err != nil {
		return "", errors.Wrapf(errors.ErrRefreshFailed, "%v", err)
	}

	id, ok := f.refresh.Redeem(refresh)
	f.mu.Lock()
	acc := f.byID(id)
	f.mu.Unlock()

	if !ok || acc == nil {
		return "", errors.Wrapf(errors.ErrRefreshFailed, "token is invalid or expired")
	}
	access, err := f.sign(acc)
	if err != nil {
		return "", errors.Wrapf(errors.ErrRefreshFailed, "%v", err)
	}
	return access, nil
}

// Revoke invalidates a refresh token.
func (f *FakeBackend) Revoke(refresh string) {
	f.refresh.Delete(refresh)
}

// Me returns the profile of the account that access was issued to. The token must verify and be unexpired.
func (f *FakeBackend) Me(ctx context.Context, access string) (*storage.Profile, error) {
	if err := f.enter(ctx, EndpointMe); err != nil {
		return nil, errors.Wrapf(errors.ErrProfilePrefetchFailed, "%v", err)
	}

	acc, err := f.authenticate(access)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrProfilePrefetchFailed, "%v", err)
	}
	return &storage.Profile{
		Username: acc.Username,
		FullName: acc.FullName,
		Email:    acc.Email,
		Phone:    acc.Phone,
		Pincode:  acc.Pincode,
		Role:     acc.Role,
		Category: acc.Category,
	}, nil
}

func (f *FakeBackend) authenticate(access string) (*account, error) {
	var claims tokenjwt.Claims
	_, err := jwtlib.ParseWithClaims(access, &claims, f.signer.GetVerificationKey,
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodRS256.Alg()}),
		jwtlib.WithIssuer(Issuer),
		jwtlib.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid bearer token: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	acc := f.byID(claims.Subject)
	if acc == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "account %s", claims.Subject)
	}
	return acc, nil
}

// Hierarchy returns the registered role of username.
func (f *FakeBackend) Hierarchy(ctx context.Context, username string) (*backend.Registration, error) {
	if err := f.enter(ctx, EndpointHierarchy); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	acc := f.byUsername(username)
	if acc == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "account %q", username)
	}
	return &backend.Registration{
		Username: acc.Username,
		Role:     acc.Role,
		Category: acc.Category,
		IsStaff:  acc.IsStaff || acc.IsSuperuser,
	}, nil
}

func (f *FakeBackend) byUsername(username string) *account {
	for _, a := range f.accounts {
		if a.Username == username {
			return a
		}
	}
	return nil
}

func (f *FakeBackend) byID(id string) *account {
	for _, a := range f.accounts {
		if a.id == id {
			return a
		}
	}
	return nil
}
