package port

import (
	"context"
	"errors"
)

// ErrPreferenceNotSet is returned by PreferenceStore.Get for unknown keys.
var ErrPreferenceNotSet = errors.New("preference not set")

// PreferenceStore is a small string key-value store scoped per user.
type PreferenceStore interface {
	Get(ctx context.Context, user, key string) (string, error)
	Set(ctx context.Context, user, key, value string) error
	Delete(ctx context.Context, user, key string) error
}
