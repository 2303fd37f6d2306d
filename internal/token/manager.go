package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"seafood-storefront/internal/kvstore"
	"seafood-storefront/internal/model"
	"seafood-storefront/pkg/apierror"
)

const refreshFlightKey = "refresh"

// Refresher mints a new access token from a refresh token. Implementations
// must not route the call back through the authenticated pipeline.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
}

type Manager struct {
	store     kvstore.Store
	refresher Refresher
	logger    *slog.Logger
	now       func() time.Time

	flights singleflight.Group
	pending atomic.Int64

	mu        sync.RWMutex
	onExpired func(ctx context.Context)
}

func NewManager(store kvstore.Store, refresher Refresher) *Manager {
	return &Manager{
		store:     store,
		refresher: refresher,
		logger:    slog.Default().With("component", "token"),
		now:       time.Now,
	}
}

// OnExpired registers the callback run by ClearTokensAndRedirect.
func (m *Manager) OnExpired(fn func(ctx context.Context)) {
	m.mu.Lock()
	m.onExpired = fn
	m.mu.Unlock()
}

// AccessToken returns the stored access token without checking its expiry.
func (m *Manager) AccessToken(ctx context.Context) (string, bool) {
	tok, ok, err := kvstore.Lookup(ctx, m.store, kvstore.KeyAccessToken)
	if err != nil {
		m.logger.Warn("read access token failed", "error", err)
		return "", false
	}
	return tok, ok && tok != ""
}

func (m *Manager) HasRefreshToken(ctx context.Context) bool {
	tok, ok, err := kvstore.Lookup(ctx, m.store, kvstore.KeyRefreshToken)
	return err == nil && ok && tok != ""
}

func (m *Manager) SetTokens(ctx context.Context, pair model.TokenPair) error {
	if err := m.store.Set(ctx, kvstore.KeyAccessToken, pair.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if err := m.store.Set(ctx, kvstore.KeyRefreshToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// ClearTokens removes the access token, refresh token and user record.
func (m *Manager) ClearTokens(ctx context.Context) error {
	return kvstore.RemoveAll(ctx, m.store, kvstore.KeyAccessToken, kvstore.KeyRefreshToken, kvstore.KeyUser)
}

// Refresh exchanges the stored refresh token for a new access token. While a
// refresh is in flight, further callers wait for its outcome instead of
// issuing their own request; all of them observe the same token or error.
//
// A credential failure clears every stored credential before it is returned.
// Transient failures leave credentials in place.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.pending.Add(1)
	defer m.pending.Add(-1)

	// The flight is shared, so it must not die with the first caller's context.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(refreshFlightKey, func() (any, error) {
		return m.refresh(flightCtx)
	})

	select {
	case res := <-ch:
		tok, _ := res.Val.(string)
		return tok, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pending reports how many callers are waiting on the current refresh.
func (m *Manager) Pending() int {
	return int(m.pending.Load())
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	refreshToken, ok, err := kvstore.Lookup(ctx, m.store, kvstore.KeyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if !ok || refreshToken == "" {
		m.clearAfterFailure(ctx, model.ErrNoRefreshToken)
		return "", model.ErrNoRefreshToken
	}

	accessToken, err := m.refresher.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		if apierror.IsTransient(err) {
			m.logger.Warn("token refresh failed transiently", "error", err)
			return "", fmt.Errorf("refresh access token: %w", err)
		}
		m.clearAfterFailure(ctx, err)
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	if err := m.store.Set(ctx, kvstore.KeyAccessToken, accessToken); err != nil {
		return "", fmt.Errorf("store refreshed access token: %w", err)
	}

	m.logger.Debug("access token refreshed")
	return accessToken, nil
}

func (m *Manager) clearAfterFailure(ctx context.Context, cause error) {
	m.logger.Warn("token refresh failed; clearing credentials", "error", cause)
	if err := m.ClearTokens(ctx); err != nil {
		m.logger.Error("clear credentials failed", "error", err)
	}
}

// ValidAccessToken returns the stored token when it is still valid, otherwise
// the result of one refresh attempt. Refresh errors are swallowed here.
func (m *Manager) ValidAccessToken(ctx context.Context) (string, bool) {
	if tok, ok := m.AccessToken(ctx); ok && IsValid(tok, m.now()) {
		return tok, true
	}

	tok, err := m.Refresh(ctx)
	if err != nil {
		if !errors.Is(err, model.ErrNoRefreshToken) {
			m.logger.Debug("no valid access token", "error", err)
		}
		return "", false
	}
	return tok, true
}

// ClearTokensAndRedirect wipes credentials and sends the session back to the
// login entry point. Used when a refresh cannot be recovered from.
func (m *Manager) ClearTokensAndRedirect(ctx context.Context) {
	if err := m.ClearTokens(ctx); err != nil {
		m.logger.Error("clear credentials failed", "error", err)
	}

	m.mu.RLock()
	fn := m.onExpired
	m.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}
