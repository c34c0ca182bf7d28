package api

import (
	"crypto/subtle"

	"ProTrdx/internal/service/ratelimit"
	xhttp "ProTrdx/pkg/http"
	applogger "ProTrdx/pkg/logger"

	"github.com/labstack/echo/v4"
)

// requireAdmin rejects requests without the admin password header. An
// empty configured password locks the admin routes entirely.
func requireAdmin(password string, l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(xhttp.AdminHeader)
			if password == "" || !equal(got, password) {
				l.Warn("admin auth rejected", applogger.String("route", c.Path()), applogger.String("remote", c.RealIP()))
				return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("Invalid password"))
			}
			return next(c)
		}
	}
}

// optionalAdmin only checks the header when the client sends one.
func optionalAdmin(password string, l *applogger.Logger) echo.MiddlewareFunc {
	strict := requireAdmin(password, l)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		checked := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get(xhttp.AdminHeader) == "" {
				return next(c)
			}
			return checked(c)
		}
	}
}

// rateLimit throttles per client IP.
func rateLimit(rl *ratelimit.Limiter, l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rl != nil && !rl.Allow(c.RealIP()) {
				l.Warn("rate limited", applogger.String("route", c.Path()), applogger.String("remote", c.RealIP()))
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests, please slow down"))
			}
			return next(c)
		}
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
