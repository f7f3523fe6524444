package keys

import (
	"crypto"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Signer signs access tokens and publishes the key that verifies them.
type Signer struct {
	keyPair *KeyPair
}

// NewSigner creates a new signer for keyPair
func NewSigner(keyPair *KeyPair) *Signer {
	return &Signer{keyPair: keyPair}
}

// Sign creates a signed JWT carrying the key id in its header.
func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(s.keyPair.GetSigningMethod(), claims)
	token.Header["kid"] = s.keyPair.KeyID

	signedToken, err := token.SignedString(s.keyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}

// GetVerificationKey is a jwt.Keyfunc accepting only tokens signed with this key.
func (s *Signer) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if kid, ok := token.Header["kid"].(string); ok && kid != s.keyPair.KeyID {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return s.keyPair.PublicKey(), nil
}

// PublicKey returns the verification key.
func (s *Signer) PublicKey() crypto.PublicKey {
	return s.keyPair.PublicKey()
}

// GetJWKS returns the JSON Web Key Set publishing the verification key.
func (s *Signer) GetJWKS() JWKS {
	return JWKS{Keys: []JWK{s.keyPair.ToJWK()}}
}

// KeySet verifies signatures locally, without fetching the JWKS document.
func (s *Signer) KeySet() oidc.KeySet {
	return &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{s.keyPair.PublicKey()}}
}
