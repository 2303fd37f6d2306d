// Package token owns the access/refresh token pair: expiry detection and a
// single-flight refresh shared by every concurrent caller.
package token

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"seafood-storefront/internal/model"
)

// ExpirySkew is subtracted from a token's exp so that a request is never
// sent with a token that lapses while in flight.
const ExpirySkew = 30 * time.Second

var parser = jwt.NewParser()

// Decode reads the claims in the payload segment of token without looking at
// the header or verifying the signature. It returns false for any malformed input.
func Decode(token string) (*model.Claims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, false
	}

	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, false
	}

	claims := &model.Claims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, false
	}
	return claims, true
}

func IsExpired(token string, now time.Time) bool {
	claims, ok := Decode(token)
	if !ok || claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Time.Add(-ExpirySkew).Before(now)
}

func IsValid(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	return !IsExpired(token, now)
}
