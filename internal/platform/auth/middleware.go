// Package auth gates every API call behind an authenticated user with an
// unlocked data session. Tokens are HMAC-signed JWTs carrying the user id and
// the unlocked session id; the resulting principal is passed on the request
// context so services never read ambient state.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal identifies the caller of a request.
type Principal struct {
	UserID    string
	SessionID string
}

// Claims is the JWT payload for session tokens.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// SessionMiddleware validates HS256 bearer tokens signed with secret. A token
// must carry a non-empty session_id claim (the unlocked data session);
// requests without one are rejected.
func SessionMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.SessionID == "" {
				return echo.NewHTTPError(http.StatusForbidden, "data session is locked")
			}

			ctx := WithPrincipal(c.Request().Context(), Principal{
				UserID:    claims.Subject,
				SessionID: claims.SessionID,
			})
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development that treats
// every request as an authorized user with an unlocked session.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := WithPrincipal(c.Request().Context(), Principal{
				UserID:    "dev-user",
				SessionID: "dev-session",
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the request principal. The zero Principal is returned
// when the request was not authenticated.
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}

// NewToken issues a session token for the given user and unlocked session.
func NewToken(secret []byte, userID, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SessionID: sessionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
