package token

import (
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seafood-storefront/internal/model"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()

	claims := model.Claims{
		ID:    "u1",
		Email: "buyer@example.com",
		Role:  "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestDecodeReadsClaims(t *testing.T) {
	t.Parallel()

	claims, ok := Decode(signToken(t, testNow.Add(time.Hour)))
	require.True(t, ok)
	assert.Equal(t, "u1", claims.ID)
	assert.Equal(t, "buyer@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, testNow.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestDecodeRejectsMalformedTokens(t *testing.T) {
	t.Parallel()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	for name, tok := range map[string]string{
		"empty":           "",
		"one segment":     "abc",
		"two segments":    header + ".e30",
		"bad base64":      header + ".!!!.sig",
		"payload no json": header + "." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig",
	} {
		_, ok := Decode(tok)
		assert.False(t, ok, name)
		assert.True(t, IsExpired(tok, testNow), name)
	}
}

func TestDecodeIgnoresHeader(t *testing.T) {
	t.Parallel()

	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(`{"id":"u1","exp":` + strconv.FormatInt(testNow.Add(time.Hour).Unix(), 10) + `}`))
	for name, header := range map[string]string{
		"no alg":      `{"typ":"JWT"}`,
		"unknown alg": `{"alg":"XX999","typ":"JWT"}`,
		"not json":    `garbage`,
	} {
		tok := base64.RawURLEncoding.EncodeToString([]byte(header)) + "." + payload + ".sig"
		claims, ok := Decode(tok)
		require.True(t, ok, name)
		assert.Equal(t, "u1", claims.ID, name)
		assert.False(t, IsExpired(tok, testNow), name)
	}
}

func TestExpiryMargin(t *testing.T) {
	t.Parallel()

	assert.True(t, IsExpired(signToken(t, testNow.Add(29*time.Second)), testNow))
	assert.False(t, IsExpired(signToken(t, testNow.Add(31*time.Second)), testNow))
	assert.True(t, IsExpired(signToken(t, testNow.Add(-time.Minute)), testNow))
}

func TestTokenWithoutExpiryIsExpired(t *testing.T) {
	t.Parallel()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, model.Claims{ID: "u1"}).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.True(t, IsExpired(signed, testNow))
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	assert.False(t, IsValid("", testNow))
	assert.True(t, IsValid(signToken(t, testNow.Add(time.Hour)), testNow))
	assert.False(t, IsValid(signToken(t, testNow.Add(10*time.Second)), testNow))
}
