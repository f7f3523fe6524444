package storage

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-role-sessions/namespace"
)

// Backend is one browser-style storage area. Implementations must be safe for
// concurrent use within a process. They are NOT required to coordinate with
// writers in other processes (other tabs): writes are last-write-wins and only
// single-key operations are atomic.
type Backend interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Provider hands out Backends partitioned by scope (a browser or a tab id).
type Provider interface {
	Backend(scope string) Backend
}

// Kind distinguishes the two storage areas.
type Kind int

const (
	// Durable storage outlives the tab (browser "local" storage).
	Durable Kind = iota
	// TabScoped storage is discarded with the tab (browser "session" storage).
	TabScoped
)

func (k Kind) String() string {
	switch k {
	case Durable:
		return "durable"
	case TabScoped:
		return "tab-scoped"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Field is one of the per-namespace session fields.
type Field string

const (
	FieldAccess  Field = "token"
	FieldRefresh Field = "refresh"
	FieldRole    Field = "role"
	FieldProfile Field = "user"
)

// SessionFields lists every field of a session record.
var SessionFields = []Field{FieldAccess, FieldRefresh, FieldRole, FieldProfile}

// LegacyKeys are the non-namespaced keys written by older builds. They are only ever purged.
var LegacyKeys = []string{"token", "refresh", "role", "user"}

// Key is the storage key of field for namespace ns, e.g. "token_agency".
func Key(ns namespace.Namespace, field Field) string {
	return string(field) + "_" + string(ns)
}
