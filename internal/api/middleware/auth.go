package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/auth"
	"github.com/example/ticketing/internal/log"
	"github.com/labstack/echo/v4"
)

// ExtractToken extracts JWT token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// RequireAuth validates the session token and adds the user claims to the
// request context. Requests without a valid token fail with 401.
func RequireAuth(jwtService *auth.JWTService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			tokenString := ExtractToken(req)
			if tokenString == "" {
				return apperr.Unauthenticated()
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				log.FromContext(req.Context()).WithError(err).Debug("[Auth] rejected token")
				return apperr.Unauthenticated()
			}

			ctx := context.WithValue(req.Context(), UserContextKey, claims)
			ctx = log.ToContext(ctx, log.FromContext(ctx).WithField("user_id", claims.UserID))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// GetUserFromContext retrieves user claims from the request context
func GetUserFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	return claims, ok
}

// GetUserID is a helper to get just the user ID from context
func GetUserID(ctx context.Context) string {
	claims, ok := GetUserFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.UserID
}
