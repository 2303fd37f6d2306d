package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seafood-storefront/internal/backendtest"
	"seafood-storefront/internal/kvstore"
	"seafood-storefront/internal/model"
	"seafood-storefront/internal/token"
	"seafood-storefront/pkg/apierror"
)

var mackerel = model.Product{ID: "p1", Name: "Mackerel", Price: 300}

type fixture struct {
	backend *backendtest.Server
	client  *Client
	tokens  *token.Manager
	store   *kvstore.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := backendtest.New()
	t.Cleanup(backend.Close)
	backend.AddUser(model.User{ID: "u1", Email: "buyer@example.com", Role: "user"}, "secret")
	backend.AddProduct(mackerel)

	store := kvstore.NewMemory()
	base := New(backend.URL, 2*time.Second)
	tokens := token.NewManager(store, base)

	return &fixture{backend: backend, client: base.WithTokens(tokens), tokens: tokens, store: store}
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	require.NoError(t, f.tokens.SetTokens(context.Background(), f.backend.IssueTokens("buyer@example.com")))
}

func TestPipelineAttachesDefaults(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"user":"u1","items":[]}}`))
	}))
	t.Cleanup(srv.Close)

	store := kvstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), kvstore.KeyAccessToken, "tok"))
	base := New(srv.URL, time.Second)
	client := base.WithTokens(token.NewManager(store, base))

	cart, err := client.GetCart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", cart.User)
	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
}

func TestPipelineWithoutTokenSendsNoAuthorization(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"success":true,"data":{"_id":"p1","name":"Mackerel","price":300}}`))
	}))
	t.Cleanup(srv.Close)

	base := New(srv.URL, time.Second)
	client := base.WithTokens(token.NewManager(kvstore.NewMemory(), base))

	p, err := client.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Mackerel", p.Name)
	assert.Empty(t, got.Get("Authorization"))
}

func TestExpiredAccessTokenIsRefreshedAndRetriedOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.signIn(t)
	f.backend.ExpireAccessTokens()

	cart, err := f.client.AddToCart(context.Background(), "p1", 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	assert.Equal(t, 1, f.backend.RefreshCalls())
	assert.Equal(t, 2, f.backend.Hits(http.MethodPost, "/api/cart/add"))
}

func TestSecond401IsNotRetried(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.signIn(t)
	f.backend.RejectAll.Store(true)

	_, err := f.client.GetCart(context.Background())
	require.Error(t, err)
	assert.True(t, apierror.IsUnauthorized(err))

	assert.Equal(t, 2, f.backend.Hits(http.MethodGet, "/api/cart"))
	assert.Equal(t, 1, f.backend.RefreshCalls())
}

func TestAuthEndpoint401IsNotRetried(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.signIn(t)

	_, err := f.client.Login(context.Background(), model.LoginRequest{Email: "buyer@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, apierror.IsUnauthorized(err))
	assert.Equal(t, 0, f.backend.RefreshCalls())
	assert.Equal(t, 1, f.backend.Hits(http.MethodPost, "/api/auth/login"))
}

func TestUnrecoverableRefreshClearsAndRedirects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tokens.SetTokens(ctx, model.TokenPair{AccessToken: "stale", RefreshToken: "revoked"}))

	redirected := make(chan struct{}, 1)
	f.tokens.OnExpired(func(context.Context) { redirected <- struct{}{} })

	_, err := f.client.GetCart(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSessionExpired))

	select {
	case <-redirected:
	default:
		t.Fatal("expected redirect to login")
	}
	assert.False(t, f.tokens.HasRefreshToken(ctx))
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	t.Parallel()

	const callers = 5
	f := newFixture(t)
	f.signIn(t)
	f.backend.ExpireAccessTokens()
	release := f.backend.HoldRefreshes()

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.client.GetCart(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.tokens.Pending() == callers }, 2*time.Second, time.Millisecond)
	release()
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.backend.RefreshCalls())
}

func TestTimeoutSurfacesAsTransient(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	base := New(srv.URL, 50*time.Millisecond)
	client := base.WithTokens(token.NewManager(kvstore.NewMemory(), base))

	_, err := client.GetCart(context.Background())
	require.Error(t, err)
	assert.True(t, apierror.IsTransient(err))

	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "TIMEOUT", apiErr.Code)
}

func TestBackendFailureMessageIsKept(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.signIn(t)

	_, err := f.client.AddToCart(context.Background(), "unknown", 1)
	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus)
	assert.Equal(t, "product not found", apiErr.Message)
}

func TestIsAuthEndpoint(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]bool{
		"/api/auth/login":                 true,
		"/api/auth/register":              true,
		"/api/auth/refresh-token":         true,
		"/api/auth/forgot-password":       true,
		"/api/auth/reset-password/abc123": true,
		"/shop/api/auth/logout-all":       true,
		"/api/auth/me":                    false,
		"/api/cart":                       false,
		"/api/cart/add":                   false,
	} {
		assert.Equal(t, want, isAuthEndpoint(path), path)
	}
}
