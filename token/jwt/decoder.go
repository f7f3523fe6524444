package jwt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/namespace"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims is the decoded payload of a bearer token issued by the backend.
// It is never verified here unless the Decoder was given a key set; the values
// are trusted because the token arrived from the issuer over TLS.
type Claims struct {
	jwtlib.RegisteredClaims

	Role          string `json:"role"`
	RoleEffective string `json:"role_effective,omitempty"`
	Category      string `json:"category,omitempty"`
	IsStaff       bool   `json:"is_staff"`
	IsSuperuser   bool   `json:"is_superuser"`
	Username      string `json:"username"`
	FullName      string `json:"full_name,omitempty"`
}

// EffectiveRole is the role used for routing: role_effective when present,
// then category, then the raw role.
func (c *Claims) EffectiveRole() string {
	for _, r := range []string{c.RoleEffective, c.Category, c.Role} {
		if s := strings.TrimSpace(r); s != "" {
			return s
		}
	}
	return ""
}

// IsAdmin reports whether the token grants access to the admin namespace.
func (c *Claims) IsAdmin() bool {
	return c.IsStaff || c.IsSuperuser
}

// Namespace is the namespace a session with these claims belongs to.
func (c *Claims) Namespace() namespace.Namespace {
	if c.IsAdmin() {
		return namespace.Admin
	}
	return namespace.FromAlias(c.EffectiveRole())
}

// UsableAt reports whether the token has not yet expired at t. A token without exp is never usable.
func (c *Claims) UsableAt(t time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Time.After(t)
}

// Usable is UsableAt(NowTimeFunc()).
func (c *Claims) Usable() bool {
	return c.UsableAt(NowTimeFunc())
}

var (
	segmentParser = jwtlib.NewParser(jwtlib.WithPaddingAllowed())
	toURLAlphabet = strings.NewReplacer("+", "-", "/", "_")
)

// Decode reads the claims out of the payload segment of raw. It performs no
// I/O and no signature check. Every failure wraps errors.ErrMalformedToken.
func Decode(raw string) (*Claims, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) < 2 || parts[1] == "" {
		return nil, fmt.Errorf("%w: expected header.payload[.signature], got %d segment(s)", errors.ErrMalformedToken, len(parts))
	}

	payload, err := segmentParser.DecodeSegment(toURLAlphabet.Replace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %w", errors.ErrMalformedToken, err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{")) {
		return nil, fmt.Errorf("%w: payload is not a JSON object", errors.ErrMalformedToken)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: parsing payload: %w", errors.ErrMalformedToken, err)
	}
	return &claims, nil
}

// Decoder decodes claims, optionally verifying the signature first.
type Decoder struct {
	keySet oidc.KeySet
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithKeySet makes the Decoder verify token signatures against ks before
// trusting the claims. Use it wherever tokens are held outside the browser
// that received them from the issuer.
func WithKeySet(ks oidc.KeySet) DecoderOption {
	return func(d *Decoder) {
		d.keySet = ks
	}
}

// NewDecoder creates a new claim decoder
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Verifies reports whether the decoder checks signatures.
func (d *Decoder) Verifies() bool {
	return d != nil && d.keySet != nil
}

// Decode verifies raw when a key set is configured and then decodes it.
func (d *Decoder) Decode(ctx context.Context, raw string) (*Claims, error) {
	if d.Verifies() {
		if _, err := d.keySet.VerifySignature(ctx, raw); err != nil {
			return nil, fmt.Errorf("%w: signature: %w", errors.ErrMalformedToken, err)
		}
	}
	return Decode(raw)
}
