package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/marchand/essence/internal/domain"
)

const sessionCookie = "essence_session"

// Authenticate resolves the session token (bearer header or cookie) and, when
// valid, attaches the user to the request context. Anonymous requests pass
// through untouched: guest checkout and gateway callbacks carry no session.
func Authenticate(verifier domain.SessionVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := sessionToken(c)
			if token == "" {
				return next(c)
			}

			user, err := verifier.VerifySession(c.Request().Context(), token)
			if err != nil {
				// An invalid token downgrades to anonymous rather than
				// blocking: public endpoints stay reachable with a stale
				// cookie still in the browser.
				return next(c)
			}

			ctx := domain.WithUser(c.Request().Context(), user)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireAdmin rejects requests whose context user is missing or not an
// administrator. Must run after Authenticate.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := domain.UserFromContext(c.Request().Context())
			if user == nil {
				return domain.ErrSessionNotFound
			}
			if user.Role != domain.RoleAdmin {
				return domain.ErrAdminOnly
			}
			return next(c)
		}
	}
}

func sessionToken(c echo.Context) string {
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}
