//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seafood-storefront/internal/event"
	"seafood-storefront/internal/model"
)

func TestSessionLifecycle(t *testing.T) {
	backend := newBackend(t)
	_, agent := startAgent(t, agentConfig(backend.URL))

	status, env := call(t, http.MethodGet, agent.URL+"/api/session", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"authenticated":false}`, string(env.Data))

	status, env = call(t, http.MethodPost, agent.URL+"/api/session/login", model.LoginRequest{Email: buyer.Email, Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Invalid email or password", env.Error.Message)

	status, _ = call(t, http.MethodPost, agent.URL+"/api/session/change-password", model.ChangePasswordRequest{CurrentPassword: "a", NewPassword: "b"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, http.MethodPost, agent.URL+"/api/session/login", model.LoginRequest{Email: buyer.Email, Password: "secret"})
	require.Equal(t, http.StatusOK, status)

	status, env = call(t, http.MethodGet, agent.URL+"/api/session", nil)
	require.Equal(t, http.StatusOK, status)
	var view struct {
		Authenticated bool       `json:"authenticated"`
		User          model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.True(t, view.Authenticated)
	assert.Equal(t, buyer.ID, view.User.ID)

	status, _ = call(t, http.MethodPost, agent.URL+"/api/session/logout", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, backend.Hits(http.MethodPost, "/api/auth/logout"))

	_, env = call(t, http.MethodGet, agent.URL+"/api/session", nil)
	assert.JSONEq(t, `{"authenticated":false}`, string(env.Data))
}

func TestExpiredAccessTokenIsRefreshedTransparently(t *testing.T) {
	backend := newBackend(t)
	_, agent := startAgent(t, agentConfig(backend.URL))

	status, _ := call(t, http.MethodPost, agent.URL+"/api/session/login", model.LoginRequest{Email: buyer.Email, Password: "secret"})
	require.Equal(t, http.StatusOK, status)

	// Let the post-login cart sync finish so it cannot share the refresh below.
	require.Eventually(t, func() bool {
		return backend.Hits(http.MethodGet, "/api/cart") >= 1
	}, 2*time.Second, 10*time.Millisecond)
	backend.ExpireAccessTokens()

	status, _ = call(t, http.MethodPost, agent.URL+"/api/cart/items", map[string]any{"product": mackerel, "quantity": 1})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, backend.RefreshCalls())
	assert.Equal(t, map[string]int{mackerel.ID: 1}, quantities(backend.Cart(buyer.ID).Items))
}

func TestRevokedSessionRedirectsToLogin(t *testing.T) {
	backend := newBackend(t)
	_, agent := startAgent(t, agentConfig(backend.URL))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(agent.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	status, _ := call(t, http.MethodPost, agent.URL+"/api/session/login", model.LoginRequest{Email: buyer.Email, Password: "secret"})
	require.Equal(t, http.StatusOK, status)

	// Another device signs out everywhere, revoking this agent's refresh token.
	backend.RevokeRefreshTokens(buyer.ID)
	backend.ExpireAccessTokens()

	status, _ = call(t, http.MethodPost, agent.URL+"/api/cart/refresh", nil)
	require.Equal(t, http.StatusOK, status, "a failed refresh keeps the last known cart")

	_, env := call(t, http.MethodGet, agent.URL+"/api/session", nil)
	assert.JSONEq(t, `{"authenticated":false}`, string(env.Data))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "session.expired never arrived")
		var e struct {
			Type    event.Type           `json:"type"`
			Payload event.ExpiredPayload `json:"payload"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Type == event.TypeSessionExpired {
			assert.Equal(t, "/login", e.Payload.Redirect)
			return
		}
	}
}
