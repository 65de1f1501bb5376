// Package service holds the shortener core: code generation, allocation,
// resolution, ownership-scoped edits, and the token-based auth provider.
package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// AuthIface defines the interface for JWT authentication used in middleware.
type AuthIface interface {
	// BuildJWTString issues a token for a new anonymous user and returns it with the user ID.
	BuildJWTString() (string, string, error)
	// BuildToken issues a token for a known user.
	BuildToken(userID string, admin bool) (string, error)
	ParseClaims(c *http.Cookie) (*Claims, error)
	ParseRawJWT(tokenString string) (*Claims, error)
}

// Claims represents the claims that are included in the JWT token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	// Admin marks the bearer as allowed to see and remove every owner's mappings.
	Admin bool `json:"admin,omitempty"`
}

// TokenExp defines the expiration time of the JWT token (1 year).
const TokenExp = time.Hour * 24 * 365

var (
	errInvalidToken = errors.New("invalid token or claims")

	// ErrEmptySecret is returned when an Auth without a signing secret is asked to sign.
	ErrEmptySecret = errors.New("jwt secret is empty")
)

// Auth signs and verifies HS256 tokens.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

func (a *Auth) BuildJWTString() (string, string, error) {
	userID := uuid.NewString()

	token, err := a.BuildToken(userID, false)
	if err != nil {
		return "", "", err
	}

	return token, userID, nil
}

func (a *Auth) BuildToken(userID string, admin bool) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrEmptySecret
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExp)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
		Admin:  admin,
	})

	return token.SignedString(a.secret)
}

// ParseClaims parses the JWT token carried by the cookie.
func (a *Auth) ParseClaims(c *http.Cookie) (*Claims, error) {
	return a.ParseRawJWT(c.Value)
}

// ParseRawJWT verifies a token. An Auth without a secret accepts nothing.
func (a *Auth) ParseRawJWT(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errInvalidToken
	}

	return claims, nil
}
