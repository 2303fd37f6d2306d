package apiclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"seafood-storefront/internal/model"
	"seafood-storefront/pkg/apierror"
)

const requestIDHeader = "X-Request-ID"

// TokenSource is the slice of the token manager the pipeline needs.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
	Refresh(ctx context.Context) (string, error)
	ClearTokensAndRedirect(ctx context.Context)
}

// authEndpoints never trigger refresh-and-retry on 401.
var authEndpoints = map[string]struct{}{
	"login":           {},
	"register":        {},
	"refresh-token":   {},
	"logout":          {},
	"logout-all":      {},
	"forgot-password": {},
	"reset-password":  {},
	"change-password": {},
}

func isAuthEndpoint(path string) bool {
	const marker = "/api/auth/"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return false
	}
	rest := path[idx+len(marker):]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	_, ok := authEndpoints[rest]
	return ok
}

type retriedKey struct{}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func alreadyRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}

// defaultsTransport sets the headers every outbound request carries.
type defaultsTransport struct {
	base http.RoundTripper
}

func (t *defaultsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	applyDefaults(out)
	return t.base.RoundTrip(out)
}

func applyDefaults(req *http.Request) {
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.NewString())
	}
}

// authTransport attaches the bearer token and, on a 401 from a non-auth
// endpoint, refreshes the token and resends the request exactly once.
type authTransport struct {
	base   http.RoundTripper
	tokens TokenSource
	logger *slog.Logger
}

func newAuthTransport(base http.RoundTripper, tokens TokenSource, logger *slog.Logger) *authTransport {
	return &authTransport{base: base, tokens: tokens, logger: logger}
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	first := req.Clone(ctx)
	applyDefaults(first)
	if tok, ok := t.tokens.AccessToken(ctx); ok {
		first.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := t.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if isAuthEndpoint(req.URL.Path) || alreadyRetried(ctx) {
		return resp, nil
	}

	retry, ok := rewind(markRetried(ctx), req)
	if !ok {
		t.logger.Warn("cannot replay request body; returning 401", "method", req.Method, "path", req.URL.Path)
		return resp, nil
	}
	drain(resp)

	newToken, err := t.tokens.Refresh(ctx)
	if err != nil {
		if apierror.IsTransient(err) {
			return nil, err
		}
		t.logger.Warn("session could not be refreshed", "path", req.URL.Path, "error", err)
		t.tokens.ClearTokensAndRedirect(ctx)
		return nil, fmt.Errorf("%w: %w", model.ErrSessionExpired, err)
	}

	applyDefaults(retry)
	retry.Header.Set(requestIDHeader, first.Header.Get(requestIDHeader))
	retry.Header.Set("Authorization", "Bearer "+newToken)

	t.logger.Debug("retrying request with refreshed token", "method", req.Method, "path", req.URL.Path)
	return t.base.RoundTrip(retry)
}

// rewind clones req with a fresh copy of its body.
func rewind(ctx context.Context, req *http.Request) (*http.Request, bool) {
	out := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return out, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	out.Body = body
	return out, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
