// Package secrets loads tenant credentials from a secrets backend.
package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Provider is a key/value secrets backend.
type Provider interface {
	// GetSecret returns the JSON object stored under name as a flat map.
	GetSecret(ctx context.Context, name string) (map[string]string, error)

	// ListSecrets returns the names of all secrets starting with prefix.
	ListSecrets(ctx context.Context, prefix string) ([]string, error)
}
