package apiclient

import (
	"context"
	"net/http"

	"seafood-storefront/internal/model"
	"seafood-storefront/pkg/apierror"
)

func (c *Client) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	return c.authCall(ctx, http.MethodPost, "/api/auth/login", req)
}

func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	return c.authCall(ctx, http.MethodPost, "/api/auth/register", req)
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	_, err := c.authCall(ctx, http.MethodPost, "/api/auth/logout", model.RefreshTokenRequest{RefreshToken: refreshToken})
	return err
}

func (c *Client) LogoutAll(ctx context.Context) error {
	_, err := c.authCall(ctx, http.MethodPost, "/api/auth/logout-all", nil)
	return err
}

func (c *Client) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) (model.AuthResponse, error) {
	return c.authCall(ctx, http.MethodPost, "/api/auth/forgot-password", req)
}

func (c *Client) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (model.AuthResponse, error) {
	return c.authCall(ctx, http.MethodPost, "/api/auth/reset-password", req)
}

func (c *Client) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) (model.AuthResponse, error) {
	return c.authCall(ctx, http.MethodPost, "/api/auth/change-password", req)
}

// RefreshAccessToken bypasses the auth pipeline so that a 401 here can never
// recurse into another refresh.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	var resp model.AuthResponse
	err := c.do(ctx, c.raw, http.MethodPost, "/api/auth/refresh-token", model.RefreshTokenRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success || resp.AccessToken == "" {
		return "", apierror.New("UNAUTHORIZED", "refresh rejected", resp.Message, http.StatusUnauthorized)
	}
	return resp.AccessToken, nil
}

func (c *Client) authCall(ctx context.Context, method string, path string, body any) (model.AuthResponse, error) {
	var resp model.AuthResponse
	if err := c.do(ctx, c.http, method, path, body, &resp); err != nil {
		return model.AuthResponse{}, err
	}
	if !resp.Success {
		return resp, unsuccessful(resp.Message)
	}
	return resp, nil
}
