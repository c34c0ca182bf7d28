// Package health serves the liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	xhttp "ProTrdx/pkg/http"
	applogger "ProTrdx/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CheckFunc reports whether one backend is reachable.
type CheckFunc func(ctx context.Context) error

// Handler answers /healthz unconditionally and /readyz by running every
// registered check under one timeout.
type Handler struct {
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  *applogger.Logger
}

func NewHandler(timeout time.Duration, l *applogger.Logger) *Handler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Handler{checks: make(map[string]CheckFunc), timeout: timeout, logger: l}
}

// Add registers a named check. Nil checks are ignored.
func (h *Handler) Add(name string, fn CheckFunc) *Handler {
	if fn != nil {
		h.checks[name] = fn
	}
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Live)
	e.GET("/readyz", h.Ready)
}

func (h *Handler) Live(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Ready returns 503 when any check fails.
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("readiness check failed", applogger.String("check", name), applogger.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	return xhttp.DataResponse(c, status, results)
}
