package scorealert

import (
	"net/http"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/auth"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/pkg/pagination"
)

type Handler struct {
	svc     *Service
	eval    *Evaluator
	sweeper *Sweeper
	trend   *TrendView
	now     func() time.Time
}

func NewHandler(svc *Service, eval *Evaluator, sweeper *Sweeper, trend *TrendView) *Handler {
	return &Handler{svc: svc, eval: eval, sweeper: sweeper, trend: trend, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	mine := api.Group("/alerts", auth.RequirePatient())
	mine.GET("", h.List)
	mine.GET("/unread-count", h.UnreadCount)
	mine.PUT("/mark-all-read", h.MarkAllRead)
	mine.PUT("/:id/read", h.MarkRead)

	staff := api.Group("/staff", auth.RequireRole(auth.RoleNurse, auth.RolePhysician))
	staff.GET("/alerts/summary", h.Summary)
	staff.POST("/alerts/sweep", h.Sweep)
	staff.GET("/patients/:id/alerts", h.ListForPatient)
	staff.POST("/patients/:id/evaluate", h.Evaluate)
	staff.GET("/patients/:id/trend", h.Trend)
}

func caller(c echo.Context) (uuid.UUID, error) {
	id, err := auth.PatientIDFromContext(c.Request().Context())
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "token subject is not a patient")
	}
	return id, nil
}

func paramID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) list(c echo.Context, patientID uuid.UUID, basePath string) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Alert{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(basePath, pg))
}

func (h *Handler) List(c echo.Context) error {
	pid, err := caller(c)
	if err != nil {
		return err
	}
	return h.list(c, pid, "/api/v1/alerts")
}

func (h *Handler) ListForPatient(c echo.Context) error {
	pid, err := paramID(c)
	if err != nil {
		return err
	}
	return h.list(c, pid, "/api/v1/staff/patients/"+pid.String()+"/alerts")
}

func (h *Handler) UnreadCount(c echo.Context) error {
	pid, err := caller(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), pid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unreadCount": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	pid, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.MarkRead(c.Request().Context(), id, pid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	pid, err := caller(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkAllRead(c.Request().Context(), pid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) Summary(c echo.Context) error {
	s, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

// Evaluate runs the evaluator for ?date=YYYY-MM-DD, defaulting to today in
// the patient's zone.
func (h *Handler) Evaluate(c echo.Context) error {
	pid, err := paramID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	day, err := h.dateParam(c, "date", pid)
	if err != nil {
		return err
	}

	created, err := h.eval.Evaluate(ctx, pid, day)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if created == nil {
		created = []*Alert{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patientId": pid,
		"date":      day,
		"created":   created,
	})
}

// Trend charts ?from..?to, defaulting to the 30 days ending today in the
// patient's zone.
func (h *Handler) Trend(c echo.Context) error {
	pid, err := paramID(c)
	if err != nil {
		return err
	}
	to, err := h.dateParam(c, "to", pid)
	if err != nil {
		return err
	}
	from := to.AddDays(-(defaultTrendDays - 1))
	if c.QueryParam("from") != "" {
		if from, err = h.dateParam(c, "from", pid); err != nil {
			return err
		}
	}

	t, err := h.trend.Trend(c.Request().Context(), pid, from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

// dateParam parses a YYYY-MM-DD query parameter. When absent it is today in
// the patient's zone.
func (h *Handler) dateParam(c echo.Context, name string, patientID uuid.UUID) (civil.Date, error) {
	if raw := c.QueryParam(name); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return civil.Date{}, echo.NewHTTPError(http.StatusBadRequest, name+" must be YYYY-MM-DD")
		}
		return d, nil
	}
	loc, err := h.svc.patients.Location(c.Request().Context(), patientID)
	if err != nil {
		return civil.Date{}, apperr.ToHTTP(err)
	}
	return civil.DateOf(h.now().In(loc)), nil
}

func (h *Handler) Sweep(c echo.Context) error {
	res, err := h.sweeper.Run(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}
