package model

import "github.com/golang-jwt/jwt/v5"

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Phone string `json:"phone,omitempty"`
}

// Claims is the payload carried by an access token.
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is the envelope returned by every /api/auth endpoint.
type AuthResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user,omitempty"`
}

func (r AuthResponse) Tokens() (TokenPair, bool) {
	if r.AccessToken == "" || r.RefreshToken == "" {
		return TokenPair{}, false
	}
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}, true
}
