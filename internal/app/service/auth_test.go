package service_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/shortlinks/internal/app/service"
)

const testSecret = "test-secret"

func TestBuildJWTString(t *testing.T) {
	auth := service.NewAuth(testSecret)

	tokenStr, userID, err := auth.BuildJWTString()

	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)
	require.NotEmpty(t, userID)

	token, err := jwt.ParseWithClaims(tokenStr, &service.Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims, ok := token.Claims.(*service.Claims)
	require.True(t, ok)
	require.Equal(t, userID, claims.UserID)
	require.False(t, claims.Admin)
	require.WithinDuration(t, time.Now().Add(service.TokenExp), claims.ExpiresAt.Time, time.Minute)
}

func TestBuildJWTString_UniqueUsers(t *testing.T) {
	auth := service.NewAuth(testSecret)

	_, first, err := auth.BuildJWTString()
	require.NoError(t, err)
	_, second, err := auth.BuildJWTString()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestBuildToken_Admin(t *testing.T) {
	auth := service.NewAuth(testSecret)

	tokenStr, err := auth.BuildToken("root", true)
	require.NoError(t, err)

	claims, err := auth.ParseRawJWT(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "root", claims.UserID)
	assert.True(t, claims.Admin)
}

func TestAuth_EmptySecret(t *testing.T) {
	auth := service.NewAuth("")

	_, err := auth.BuildToken("root", true)
	require.ErrorIs(t, err, service.ErrEmptySecret)

	_, _, err = auth.BuildJWTString()
	require.ErrorIs(t, err, service.ErrEmptySecret)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "attacker", "admin": true})
	tokenStr, err := forged.SignedString([]byte("any-key"))
	require.NoError(t, err)

	claims, err := auth.ParseRawJWT(tokenStr)
	require.Error(t, err)
	require.Nil(t, claims)
}

func TestParseClaims(t *testing.T) {
	auth := service.NewAuth(testSecret)

	t.Run("valid token", func(t *testing.T) {
		tokenStr, err := auth.BuildToken("test-user-id", false)
		require.NoError(t, err)

		claims, err := auth.ParseClaims(&http.Cookie{Name: "token", Value: tokenStr})

		require.NoError(t, err)
		require.Equal(t, "test-user-id", claims.UserID)
	})

	t.Run("invalid token", func(t *testing.T) {
		claims, err := auth.ParseClaims(&http.Cookie{Name: "token", Value: "invalid.token.string"})

		require.Error(t, err)
		require.Nil(t, claims)
	})

	t.Run("signed with another secret", func(t *testing.T) {
		foreign, err := service.NewAuth("other-secret").BuildToken("mallory", true)
		require.NoError(t, err)

		claims, err := auth.ParseClaims(&http.Cookie{Name: "token", Value: foreign})

		require.Error(t, err)
		require.Nil(t, claims)
	})

	t.Run("expired token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, service.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
			UserID: "old",
		})
		tokenStr, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = auth.ParseRawJWT(tokenStr)
		require.Error(t, err)
	})
}
