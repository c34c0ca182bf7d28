// Package api exposes runs, jobs, the watchlist, settings and chart files
// over echo.
package api

import (
	"context"
	"net/http"
	"strings"

	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/service/ratelimit"
	xhttp "ProTrdx/pkg/http"
	applogger "ProTrdx/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Runs is satisfied by *usecase.Runner.
type Runs interface {
	TriggerRun(ctx context.Context, ticker string) (string, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, limit int) ([]models.Job, error)
}

// Settings is satisfied by *usecase.SettingsService.
type Settings interface {
	Get(ctx context.Context) (*models.Settings, error)
	Update(ctx context.Context, req *models.UpdateSettingsRequest) (*models.Settings, error)
}

// Watchlist is satisfied by *usecase.WatchlistService.
type Watchlist interface {
	List(ctx context.Context) ([]models.Ticker, error)
	Create(ctx context.Context, req *models.CreateTickerRequest) (*models.Ticker, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// Charts resolves a chart filename to a path on disk.
type Charts interface {
	Open(filename string) (string, error)
}

// RunResponse is returned by the run endpoints.
type RunResponse struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

type Handler struct {
	runs          Runs
	settings      Settings
	watchlist     Watchlist
	charts        Charts
	limiter       *ratelimit.Limiter
	adminPassword string
	logger        *applogger.Logger
}

func NewHandler(runs Runs, settings Settings, watchlist Watchlist, charts Charts, limiter *ratelimit.Limiter, adminPassword string, l *applogger.Logger) *Handler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Handler{
		runs:          runs,
		settings:      settings,
		watchlist:     watchlist,
		charts:        charts,
		limiter:       limiter,
		adminPassword: adminPassword,
		logger:        l,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	admin := requireAdmin(h.adminPassword, h.logger)
	g := e.Group("/api")

	g.POST("/run", h.Run, admin, rateLimit(h.limiter, h.logger))
	g.POST("/run/:ticker", h.Run, admin, rateLimit(h.limiter, h.logger))

	reader := optionalAdmin(h.adminPassword, h.logger)
	g.GET("/jobs", h.ListJobs, reader)
	g.GET("/jobs/:id", h.GetJob, reader)

	g.GET("/settings", h.GetSettings, admin)
	g.POST("/settings", h.UpdateSettings, admin)

	g.GET("/watchlist", h.ListWatchlist, admin)
	g.POST("/watchlist", h.CreateTicker, admin)
	g.PATCH("/watchlist/:id", h.SetTickerActive, admin)
	g.DELETE("/watchlist/:id", h.DeleteTicker, admin)

	g.GET("/charts/:filename", h.Chart)
}

func (h *Handler) fail(c echo.Context, msg string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(msg, applogger.String("route", c.Path()), applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// Run starts a watchlist run, or a single-ticker run when :ticker is set.
func (h *Handler) Run(c echo.Context) error {
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))

	jobID, err := h.runs.TriggerRun(c.Request().Context(), ticker)
	if err != nil {
		return h.fail(c, "run trigger failed", err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, RunResponse{JobID: jobID, Status: models.JobRunning})
}

func (h *Handler) ListJobs(c echo.Context) error {
	req := &models.ListJobsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	jobs, err := h.runs.ListJobs(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "list jobs failed", err)
	}
	return xhttp.SuccessResponse(c, jobs)
}

func (h *Handler) GetJob(c echo.Context) error {
	req := &models.JobIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	job, err := h.runs.GetJob(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "get job failed", err)
	}
	return xhttp.SuccessResponse(c, job)
}

func (h *Handler) GetSettings(c echo.Context) error {
	st, err := h.settings.Get(c.Request().Context())
	if err != nil {
		return h.fail(c, "get settings failed", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	req := &models.UpdateSettingsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.settings.Update(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "update settings failed", err)
	}
	h.logger.Info("settings updated",
		applogger.String("news_provider", st.NewsProvider),
		applogger.String("timezone", st.Timezone),
		applogger.Int("cron_hour", st.CronHour))
	return xhttp.SuccessResponse(c, st)
}

func (h *Handler) ListWatchlist(c echo.Context) error {
	list, err := h.watchlist.List(c.Request().Context())
	if err != nil {
		return h.fail(c, "list watchlist failed", err)
	}
	return xhttp.SuccessResponse(c, list)
}

func (h *Handler) CreateTicker(c echo.Context) error {
	req := &models.CreateTickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t, err := h.watchlist.Create(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "create ticker failed", err)
	}
	return xhttp.CreatedResponse(c, t)
}

func (h *Handler) SetTickerActive(c echo.Context) error {
	req := &models.SetTickerActiveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.watchlist.SetActive(c.Request().Context(), req.ID, *req.Active); err != nil {
		return h.fail(c, "update ticker failed", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *Handler) DeleteTicker(c echo.Context) error {
	if err := h.watchlist.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, "delete ticker failed", err)
	}
	return xhttp.NoContentResponse(c)
}

// Chart serves a stored SVG report.
func (h *Handler) Chart(c echo.Context) error {
	req := &models.ChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	path, err := h.charts.Open(req.Filename)
	if err != nil {
		return h.fail(c, "open chart failed", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return c.File(path)
}
