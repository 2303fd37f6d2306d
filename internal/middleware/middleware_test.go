package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seafood-storefront/internal/model"
)

type identityFunc func(ctx context.Context) (model.User, bool)

func (f identityFunc) User(ctx context.Context) (model.User, bool) { return f(ctx) }

func TestRequireSession(t *testing.T) {
	t.Parallel()

	var seen model.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	anonymous := RequireSession(identityFunc(func(context.Context) (model.User, bool) {
		return model.User{}, false
	}))(next)
	rec := httptest.NewRecorder()
	anonymous.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/logout-all", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")

	signedIn := RequireSession(identityFunc(func(context.Context) (model.User, bool) {
		return model.User{ID: "u1"}, true
	}))(next)
	rec = httptest.NewRecorder()
	signedIn.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/logout-all", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", seen.ID)
}

func TestLoggingAssignsRequestID(t *testing.T) {
	t.Parallel()

	var inner string
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	require.NotEmpty(t, inner)
	assert.Equal(t, inner, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set(requestIDHeader, "fixed-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", inner)
}

func TestRecoveryWritesEnvelope(t *testing.T) {
	t.Parallel()

	handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"Unexpected agent error"}}`, rec.Body.String())
}

func TestTimeoutSkipsWebsocketUpgrades(t *testing.T) {
	t.Parallel()

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	handler := Timeout(10 * time.Millisecond)(slow)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "REQUEST_TIMEOUT")

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
