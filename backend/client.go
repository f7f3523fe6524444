// Package backend describes the authentication backend the session subsystem talks to.
package backend

import (
	"context"

	"github.com/jrsteele09/go-role-sessions/storage"
)

// Credentials is the body of a login request.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// TokenPair is a freshly issued access/refresh token pair.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Registration is the role a username is actually registered under.
type Registration struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Category string `json:"category,omitempty"`
	IsStaff  bool   `json:"is_staff,omitempty"`
}

// Client is the set of backend calls the session subsystem makes.
type Client interface {
	// Login exchanges credentials for a token pair.
	Login(ctx context.Context, creds Credentials) (TokenPair, error)

	// Refresh exchanges a refresh token for a new access token.
	Refresh(ctx context.Context, refresh string) (string, error)

	// Me returns the profile of the account owning access.
	Me(ctx context.Context, access string) (*storage.Profile, error)

	// Hierarchy looks up the registered role of username.
	Hierarchy(ctx context.Context, username string) (*Registration, error)
}
