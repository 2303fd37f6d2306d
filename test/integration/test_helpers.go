//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"seafood-storefront/internal/app"
	"seafood-storefront/internal/backendtest"
	"seafood-storefront/internal/config"
	"seafood-storefront/internal/model"
)

var (
	buyer    = model.User{ID: "u1", Name: "Buyer", Email: "buyer@example.com", Role: "user"}
	mackerel = model.Product{ID: "p1", Name: "Mackerel", Price: 300, Category: "fish"}
	prawns   = model.Product{ID: "p2", Name: "Tiger Prawns", Price: 650, Category: "shellfish"}
)

func newBackend(t *testing.T) *backendtest.Server {
	t.Helper()

	backend := backendtest.New()
	t.Cleanup(backend.Close)
	backend.AddUser(buyer, "secret")
	backend.AddProduct(mackerel)
	backend.AddProduct(prawns)
	return backend
}

func agentConfig(backendURL string) *config.Config {
	return &config.Config{
		ServerPort:          "0",
		ServerReadTimeout:   15 * time.Second,
		ServerWriteTimeout:  30 * time.Second,
		ServerIdleTimeout:   120 * time.Second,
		RequestTimeout:      5 * time.Second,
		APIBaseURL:          backendURL,
		APITimeout:          2 * time.Second,
		StoreDriver:         config.DriverMemory,
		StoreNamespace:      "test",
		CORSOrigins:         []string{"*"},
		RateLimitRPM:        10000,
		SessionRateLimitRPM: 1000,
		LoginPath:           "/login",
		LogLevel:            "error",
	}
}

// startAgent boots an agent against cfg and serves it over httptest.
func startAgent(t *testing.T, cfg *config.Config) (*app.App, *httptest.Server) {
	t.Helper()

	agent, err := app.New(context.Background(), cfg)
	require.NoError(t, err)

	server := httptest.NewServer(agent.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = agent.Shutdown()
	})
	return agent, server
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func call(t *testing.T, method string, url string, body any) (int, envelope) {
	t.Helper()

	var payload *bytes.Reader
	if body == nil {
		payload = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, payload)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

type cartView struct {
	User          string           `json:"user"`
	Items         []model.CartItem `json:"items"`
	TotalQuantity int              `json:"totalQuantity"`
	Subtotal      float64          `json:"subtotal"`
}

func getCart(t *testing.T, baseURL string) cartView {
	t.Helper()

	status, env := call(t, http.MethodGet, baseURL+"/api/cart", nil)
	require.Equal(t, http.StatusOK, status)

	var view cartView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func quantities(items []model.CartItem) map[string]int {
	out := map[string]int{}
	for _, item := range items {
		out[item.Product.ID()] += item.Quantity
	}
	return out
}
