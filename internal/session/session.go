// Package session tracks whether the device is signed in and announces
// login, logout and expiry on the event bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"seafood-storefront/internal/event"
	"seafood-storefront/internal/kvstore"
	"seafood-storefront/internal/model"
	"seafood-storefront/internal/token"
)

type AuthAPI interface {
	Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error)
	Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context) error
	ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) (model.AuthResponse, error)
	ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (model.AuthResponse, error)
	ChangePassword(ctx context.Context, req model.ChangePasswordRequest) (model.AuthResponse, error)
}

type Manager struct {
	api       AuthAPI
	tokens    *token.Manager
	store     kvstore.Store
	bus       event.Bus
	loginPath string
	logger    *slog.Logger
}

func New(api AuthAPI, tokens *token.Manager, store kvstore.Store, bus event.Bus, loginPath string) *Manager {
	m := &Manager{
		api:       api,
		tokens:    tokens,
		store:     store,
		bus:       bus,
		loginPath: loginPath,
		logger:    slog.Default().With("component", "session"),
	}
	tokens.OnExpired(m.Expire)
	return m
}

// User returns the signed-in user, read from the persisted user record.
func (m *Manager) User(ctx context.Context) (model.User, bool) {
	var user model.User
	if err := kvstore.GetJSON(ctx, m.store, kvstore.KeyUser, &user); err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			m.logger.Warn("read user record failed", "error", err)
		}
		return model.User{}, false
	}
	return user, user.ID != ""
}

// Restore decides the session state at startup. A session whose access token
// cannot be renewed because the backend is unreachable stays signed in.
func (m *Manager) Restore(ctx context.Context) (model.User, bool) {
	user, ok := m.User(ctx)
	if !ok {
		return model.User{}, false
	}

	if _, valid := m.tokens.ValidAccessToken(ctx); valid {
		m.logger.Info("session restored", "user_id", user.ID)
		return user, true
	}

	if m.tokens.HasRefreshToken(ctx) {
		m.logger.Warn("session kept without a fresh access token", "user_id", user.ID)
		return user, true
	}

	m.logger.Info("stored session is no longer valid")
	if err := m.tokens.ClearTokens(ctx); err != nil {
		m.logger.Error("clear credentials failed", "error", err)
	}
	return model.User{}, false
}

func (m *Manager) Login(ctx context.Context, req model.LoginRequest) (model.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return model.User{}, fmt.Errorf("%w: email and password are required", model.ErrInvalidInput)
	}

	resp, err := m.api.Login(ctx, req)
	if err != nil {
		return model.User{}, err
	}
	return m.establish(ctx, resp)
}

// Register creates the account and signs in when the backend hands out tokens.
func (m *Manager) Register(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return model.User{}, fmt.Errorf("%w: email and password are required", model.ErrInvalidInput)
	}

	resp, err := m.api.Register(ctx, req)
	if err != nil {
		return model.User{}, err
	}
	if _, ok := resp.Tokens(); !ok {
		if resp.User != nil {
			return *resp.User, nil
		}
		return model.User{Email: req.Email}, nil
	}
	return m.establish(ctx, resp)
}

func (m *Manager) establish(ctx context.Context, resp model.AuthResponse) (model.User, error) {
	pair, ok := resp.Tokens()
	if !ok {
		return model.User{}, fmt.Errorf("%w: backend returned no tokens", model.ErrInvalidCredentials)
	}

	user, err := userFromResponse(resp)
	if err != nil {
		return model.User{}, err
	}

	if err := m.tokens.SetTokens(ctx, pair); err != nil {
		return model.User{}, err
	}
	if err := kvstore.SetJSON(ctx, m.store, kvstore.KeyUser, user); err != nil {
		return model.User{}, fmt.Errorf("store user record: %w", err)
	}

	m.logger.Info("signed in", "user_id", user.ID)
	m.bus.Publish(event.New(event.TypeLoggedIn, user.ID, user))
	return user, nil
}

func userFromResponse(resp model.AuthResponse) (model.User, error) {
	if resp.User != nil && resp.User.ID != "" {
		return *resp.User, nil
	}

	claims, ok := token.Decode(resp.AccessToken)
	if !ok || claims.ID == "" {
		return model.User{}, fmt.Errorf("%w: access token carries no subject", model.ErrInvalidCredentials)
	}
	return model.User{ID: claims.ID, Email: claims.Email, Role: claims.Role}, nil
}

// Logout always ends the local session; the backend call is best effort.
func (m *Manager) Logout(ctx context.Context) error {
	user, _ := m.User(ctx)

	refreshToken, ok, err := kvstore.Lookup(ctx, m.store, kvstore.KeyRefreshToken)
	if err != nil {
		m.logger.Warn("read refresh token failed", "error", err)
	}
	if ok {
		if err := m.api.Logout(ctx, refreshToken); err != nil {
			m.logger.Warn("backend logout failed", "error", err)
		}
	}

	return m.end(ctx, user.ID)
}

// LogoutAll revokes every session of the user. Local credentials are cleared
// even when the backend call fails; that failure is still returned.
func (m *Manager) LogoutAll(ctx context.Context) error {
	user, ok := m.User(ctx)
	if !ok {
		return model.ErrNotAuthenticated
	}

	apiErr := m.api.LogoutAll(ctx)
	if apiErr != nil {
		m.logger.Warn("backend logout-all failed", "error", apiErr)
	}

	if err := m.end(ctx, user.ID); err != nil {
		return err
	}
	return apiErr
}

func (m *Manager) end(ctx context.Context, userID string) error {
	if err := m.tokens.ClearTokens(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	m.logger.Info("signed out", "user_id", userID)
	m.bus.Publish(event.New(event.TypeLoggedOut, userID, nil))
	return nil
}

// Expire runs after the token manager gave up on the session.
func (m *Manager) Expire(_ context.Context) {
	m.logger.Warn("session expired; login required", "redirect", m.loginPath)
	m.bus.Publish(event.New(event.TypeSessionExpired, "", event.ExpiredPayload{
		Redirect: m.loginPath,
		Reason:   "refresh failed",
	}))
	m.bus.Publish(event.New(event.TypeLoggedOut, "", nil))
}

func (m *Manager) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) (string, error) {
	resp, err := m.api.ForgotPassword(ctx, req)
	return resp.Message, err
}

func (m *Manager) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) (string, error) {
	resp, err := m.api.ResetPassword(ctx, req)
	return resp.Message, err
}

func (m *Manager) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) (string, error) {
	if _, ok := m.User(ctx); !ok {
		return "", model.ErrNotAuthenticated
	}
	resp, err := m.api.ChangePassword(ctx, req)
	return resp.Message, err
}
