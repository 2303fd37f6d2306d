// Package apiclient is the typed HTTP client for the storefront REST backend.
// Authenticated calls go through a pipeline that attaches the bearer token
// and recovers once from an expired access token.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"seafood-storefront/internal/model"
	"seafood-storefront/pkg/apierror"
)

const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

type Client struct {
	baseURL string
	timeout time.Duration
	raw     *http.Client
	http    *http.Client
	logger  *slog.Logger
}

// New returns a client without credentials. Call WithTokens to obtain the
// authenticated variant.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	raw := &http.Client{Timeout: timeout, Transport: &defaultsTransport{base: http.DefaultTransport}}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		raw:     raw,
		http:    raw,
		logger:  slog.Default().With("component", "apiclient"),
	}
}

// WithTokens returns a copy whose requests pass through the auth pipeline.
// Token refreshes made by the copy still use the unauthenticated transport.
func (c *Client) WithTokens(tokens TokenSource) *Client {
	out := *c
	out.http = &http.Client{
		Timeout:   c.timeout,
		Transport: newAuthTransport(http.DefaultTransport, tokens, c.logger),
	}
	return &out
}

// WithTransport swaps the underlying round tripper, keeping the pipeline on top.
func (c *Client) WithTransport(base http.RoundTripper, tokens TokenSource) *Client {
	out := *c
	out.raw = &http.Client{Timeout: c.timeout, Transport: &defaultsTransport{base: base}}
	out.http = out.raw
	if tokens != nil {
		out.http = &http.Client{Timeout: c.timeout, Transport: newAuthTransport(base, tokens, c.logger)}
	}
	return &out
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, hc *http.Client, method string, path string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeErrorResponse(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apierror.New("BAD_RESPONSE", "malformed response from backend", err.Error(), http.StatusBadGateway)
	}
	return nil
}

func decodeErrorResponse(resp *http.Response) error {
	var envelope struct {
		Message string `json:"message"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := ""
	if err := json.Unmarshal(raw, &envelope); err == nil {
		message = envelope.Message
		if message == "" && envelope.Error != nil {
			message = envelope.Error.Message
		}
	}
	return apierror.FromStatus(resp.StatusCode, message)
}

// unsuccessful reports a 2xx envelope whose success flag is false.
func unsuccessful(message string) error {
	if message == "" {
		message = "backend reported failure"
	}
	return &apierror.APIError{
		Code:       "REQUEST_FAILED",
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Kind:       apierror.KindUpstream,
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, model.ErrSessionExpired) || errors.Is(err, model.ErrNoRefreshToken) {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return urlErr.Err
		}
		return err
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		timeout := apierror.Transient("TIMEOUT", "request timed out", err.Error())
		timeout.HTTPStatus = http.StatusGatewayTimeout
		return timeout
	}

	return apierror.Transient("NETWORK_ERROR", "backend unreachable", err.Error())
}
