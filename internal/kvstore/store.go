// Package kvstore is the persistent key-value store shared by the token
// manager and the cart reconciler. Backends are swappable behind Store.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys persisted by the session layer.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
	KeyGuestCart    = "guestCart"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// GetJSON decodes the value stored under key into dst.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}

// Lookup returns ("", false, nil) for a missing key instead of ErrNotFound.
func Lookup(ctx context.Context, s Store, key string) (string, bool, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// RemoveAll removes every key, stopping at the first failure.
func RemoveAll(ctx context.Context, s Store, keys ...string) error {
	for _, key := range keys {
		if err := s.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove %q: %w", key, err)
		}
	}
	return nil
}
