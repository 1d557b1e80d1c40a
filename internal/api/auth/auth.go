// Package auth resolves the calling identity from a bearer token. Login,
// refresh, and account management are someone else's problem: the core only
// needs "an authenticated identity with a role".
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// ContextKey represents keys for context values
type ContextKey string

// IdentityContextKey is where RequireAuth stores the resolved identity.
const IdentityContextKey ContextKey = "identity"

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// Claims is the JWT payload we accept.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RequireAuth validates the Bearer token against the shared HMAC secret and
// puts the Identity into the echo context.
func RequireAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			identity, err := ParseToken(tokenParts[1], secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(IdentityContextKey), identity)
			return next(c)
		}
	}
}

// ParseToken validates a token string and extracts the identity.
func ParseToken(tokenString, secret string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &Identity{
		UserID: claims.Subject,
		Name:   claims.Name,
		Role:   claims.Role,
	}, nil
}

// CurrentIdentity returns the identity set by RequireAuth, or nil.
func CurrentIdentity(c echo.Context) *Identity {
	identity, _ := c.Get(string(IdentityContextKey)).(*Identity)
	return identity
}

// SignToken mints a token for the identity. Used by tests and by hallctl's
// local development login.
func SignToken(identity Identity, secret string) (string, error) {
	claims := Claims{
		Name: identity.Name,
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: identity.UserID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
