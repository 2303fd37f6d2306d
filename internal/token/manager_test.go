package token

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seafood-storefront/internal/kvstore"
	"seafood-storefront/internal/model"
	"seafood-storefront/pkg/apierror"
)

type refresherFunc func(ctx context.Context, refreshToken string) (string, error)

func (f refresherFunc) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	return f(ctx, refreshToken)
}

func newTestManager(t *testing.T, refresher Refresher) (*Manager, *kvstore.Memory) {
	t.Helper()

	store := kvstore.NewMemory()
	m := NewManager(store, refresher)
	m.now = func() time.Time { return testNow }
	return m, store
}

func seedCredentials(t *testing.T, store kvstore.Store, access string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, kvstore.KeyAccessToken, access))
	require.NoError(t, store.Set(ctx, kvstore.KeyRefreshToken, "refresh-1"))
	require.NoError(t, store.Set(ctx, kvstore.KeyUser, `{"id":"u1"}`))
}

func TestRefreshStoresNewAccessToken(t *testing.T) {
	t.Parallel()

	fresh := signToken(t, testNow.Add(time.Hour))
	m, store := newTestManager(t, refresherFunc(func(_ context.Context, refreshToken string) (string, error) {
		assert.Equal(t, "refresh-1", refreshToken)
		return fresh, nil
	}))
	seedCredentials(t, store, "stale")

	tok, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, tok)

	stored, ok := m.AccessToken(context.Background())
	require.True(t, ok)
	assert.Equal(t, fresh, stored)
}

func TestRefreshIsSingleFlight(t *testing.T) {
	t.Parallel()

	const callers = 8
	var calls atomic.Int32
	release := make(chan struct{})
	fresh := signToken(t, testNow.Add(time.Hour))

	m, store := newTestManager(t, refresherFunc(func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		<-release
		return fresh, nil
	}))
	seedCredentials(t, store, "stale")

	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Refresh(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return m.Pending() == callers }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fresh, results[i])
	}
	assert.Equal(t, 0, m.Pending())
}

func TestRefreshFailureRejectsAllAndClearsCredentials(t *testing.T) {
	t.Parallel()

	const callers = 4
	var calls atomic.Int32
	release := make(chan struct{})
	rejected := apierror.FromStatus(401, "refresh token revoked")

	m, store := newTestManager(t, refresherFunc(func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		<-release
		return "", rejected
	}))
	seedCredentials(t, store, "stale")
	require.NoError(t, store.Set(context.Background(), kvstore.KeyGuestCart, `{"user":"guest"}`))

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Refresh(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return m.Pending() == callers }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, errors.Is(err, rejected))
		assert.Equal(t, errs[0], err)
	}

	ctx := context.Background()
	for _, key := range []string{kvstore.KeyAccessToken, kvstore.KeyRefreshToken, kvstore.KeyUser} {
		_, found, err := kvstore.Lookup(ctx, store, key)
		require.NoError(t, err)
		assert.False(t, found, key)
	}
	_, found, _ := kvstore.Lookup(ctx, store, kvstore.KeyGuestCart)
	assert.True(t, found, "guest cart is not a credential")
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, refresherFunc(func(context.Context, string) (string, error) {
		t.Fatal("refresher must not be called")
		return "", nil
	}))

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, model.ErrNoRefreshToken)

	// The flight is released afterwards.
	_, err = m.Refresh(context.Background())
	assert.ErrorIs(t, err, model.ErrNoRefreshToken)
}

func TestTransientRefreshFailureKeepsCredentials(t *testing.T) {
	t.Parallel()

	m, store := newTestManager(t, refresherFunc(func(context.Context, string) (string, error) {
		return "", apierror.Transient("TIMEOUT", "request timed out", "")
	}))
	seedCredentials(t, store, "stale")

	_, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apierror.IsTransient(err))
	assert.True(t, m.HasRefreshToken(context.Background()))
}

func TestServerErrorOnRefreshKeepsCredentials(t *testing.T) {
	t.Parallel()

	m, store := newTestManager(t, refresherFunc(func(context.Context, string) (string, error) {
		return "", apierror.FromStatus(http.StatusInternalServerError, "database unavailable")
	}))
	seedCredentials(t, store, "stale")

	_, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apierror.IsTransient(err))
	assert.True(t, m.HasRefreshToken(context.Background()))

	_, found, err := kvstore.Lookup(context.Background(), store, kvstore.KeyUser)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	fresh := signToken(t, testNow.Add(time.Hour))
	m, store := newTestManager(t, refresherFunc(func(ctx context.Context, _ string) (string, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return fresh, nil
	}))
	seedCredentials(t, store, "stale")

	impatient, cancel := context.WithCancel(context.Background())
	impatientErr := make(chan error, 1)
	go func() {
		_, err := m.Refresh(impatient)
		impatientErr <- err
	}()

	patientTok := make(chan string, 1)
	go func() {
		tok, _ := m.Refresh(context.Background())
		patientTok <- tok
	}()

	require.Eventually(t, func() bool { return m.Pending() == 2 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-impatientErr, context.Canceled)
	close(release)
	assert.Equal(t, fresh, <-patientTok)
}

func TestValidAccessToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	valid := signToken(t, testNow.Add(time.Hour))

	t.Run("returns stored token when valid", func(t *testing.T) {
		m, store := newTestManager(t, refresherFunc(func(context.Context, string) (string, error) {
			t.Fatal("refresh must not be called for a valid token")
			return "", nil
		}))
		seedCredentials(t, store, valid)

		tok, ok := m.ValidAccessToken(ctx)
		assert.True(t, ok)
		assert.Equal(t, valid, tok)
	})

	t.Run("refreshes an expiring token once", func(t *testing.T) {
		var calls atomic.Int32
		m, store := newTestManager(t, refresherFunc(func(context.Context, string) (string, error) {
			calls.Add(1)
			return valid, nil
		}))
		seedCredentials(t, store, signToken(t, testNow.Add(10*time.Second)))

		tok, ok := m.ValidAccessToken(ctx)
		assert.True(t, ok)
		assert.Equal(t, valid, tok)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("swallows refresh failure", func(t *testing.T) {
		m, store := newTestManager(t, refresherFunc(func(context.Context, string) (string, error) {
			return "", apierror.FromStatus(401, "expired")
		}))
		seedCredentials(t, store, "garbage")

		tok, ok := m.ValidAccessToken(ctx)
		assert.False(t, ok)
		assert.Empty(t, tok)
	})
}

func TestClearTokensAndRedirect(t *testing.T) {
	t.Parallel()

	m, store := newTestManager(t, nil)
	seedCredentials(t, store, "anything")

	redirected := false
	m.OnExpired(func(context.Context) { redirected = true })
	m.ClearTokensAndRedirect(context.Background())

	assert.True(t, redirected)
	_, ok := m.AccessToken(context.Background())
	assert.False(t, ok)
	assert.False(t, m.HasRefreshToken(context.Background()))
}
