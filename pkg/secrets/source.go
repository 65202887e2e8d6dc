package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Source that does not hold the named secret.
var ErrNotFound = errors.New("secret not found")

// Source looks up secrets by name.
type Source interface {
	// Get returns the secret value, or an error wrapping ErrNotFound when the
	// source does not hold it.
	Get(ctx context.Context, name string) (string, error)

	// Name identifies the source in logs ("env", "file").
	Name() string
}

// Refreshable is implemented by sources that cache values and can drop them.
type Refreshable interface {
	Source
	Refresh()
}
