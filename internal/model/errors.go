package model

import "errors"

var (
	// Credential errors
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrSessionExpired     = errors.New("session expired")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Cart validation errors
	ErrInvalidProduct  = errors.New("invalid product")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrCorruptedCart   = errors.New("corrupted guest cart")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
