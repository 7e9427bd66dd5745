package sessionstore

import (
	"context"
	"errors"

	"github.com/parley-dev/parley/libdbexec"
)

const activeKeyKV = "active_session_key"

// ActiveKeyStore adapts the kv table to the registry's persistence
// interface for the active-session pointer.
type ActiveKeyStore struct {
	store Store
}

// NewActiveKeyStore wraps a Store for active-key persistence.
func NewActiveKeyStore(store Store) *ActiveKeyStore {
	return &ActiveKeyStore{store: store}
}

// LoadActiveKey returns the persisted key, or "" when none was saved yet.
func (a *ActiveKeyStore) LoadActiveKey(ctx context.Context) (string, error) {
	value, err := a.store.GetKV(ctx, activeKeyKV)
	if err != nil {
		if errors.Is(err, libdbexec.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (a *ActiveKeyStore) SaveActiveKey(ctx context.Context, key string) error {
	return a.store.SetKV(ctx, activeKeyKV, key)
}
