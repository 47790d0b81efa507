package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"

	"github.com/drivelane/convo/internal/testutil"
)

func newAuthTestApp(t *testing.T) *App {
	t.Helper()
	return &App{
		log:        testutil.TestLogger(t),
		signingKey: testSigningKey,
	}
}

func Test_extractUserIdFromToken(t *testing.T) {
	app := newAuthTestApp(t)

	t.Run("round trip", func(t *testing.T) {
		token, err := app.createSessionToken("user-1", defaultJwtExpiration)
		assert.NoError(t, err)

		userId, err := app.extractUserIdFromToken(token)
		assert.NoError(t, err)
		assert.Equal(t, "user-1", userId)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		token, err := app.createSessionToken("user-1", -time.Minute)
		assert.NoError(t, err)

		_, err = app.extractUserIdFromToken(token)
		assert.Error(t, err, "expected expired token to be rejected")
	})

	t.Run("rejects token signed with another key", func(t *testing.T) {
		other := &App{signingKey: []byte("some-other-key")}
		token, err := other.createSessionToken("user-1", defaultJwtExpiration)
		assert.NoError(t, err)

		_, err = app.extractUserIdFromToken(token)
		assert.Error(t, err, "expected foreign signature to be rejected")
	})

	t.Run("rejects unsigned token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			userIdClaim: "user-1",
			expClaim:    time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		assert.NoError(t, err)

		_, err = app.extractUserIdFromToken(signed)
		assert.Error(t, err, "expected none algorithm to be rejected")
	})

	t.Run("rejects token without subject", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			expClaim: time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(testSigningKey)
		assert.NoError(t, err)

		_, err = app.extractUserIdFromToken(signed)
		assert.Error(t, err, "expected missing subject claim to be rejected")
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := app.extractUserIdFromToken("not.a.token")
		assert.Error(t, err)
	})
}

func Test_credentialFromRequest(t *testing.T) {
	t.Run("reads the token cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "cookie-token"})

		token, err := credentialFromRequest(req)
		assert.NoError(t, err)
		assert.Equal(t, "cookie-token", token)
	})

	t.Run("falls back to the bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer header-token")

		token, err := credentialFromRequest(req)
		assert.NoError(t, err)
		assert.Equal(t, "header-token", token)
	})

	t.Run("prefers the cookie over the header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "cookie-token"})
		req.Header.Set("Authorization", "Bearer header-token")

		token, err := credentialFromRequest(req)
		assert.NoError(t, err)
		assert.Equal(t, "cookie-token", token)
	})

	t.Run("fails without a credential", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		_, err := credentialFromRequest(req)
		assert.Error(t, err)
	})

	t.Run("fails with a non-bearer authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		_, err := credentialFromRequest(req)
		assert.Error(t, err)
	})
}

func TestUserIdContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := UserId(req.Context())
	assert.False(t, ok, "expected no user id on a bare context")

	ctx := WithUserId(req.Context(), "user-1")
	userId, ok := UserId(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", userId)
}
