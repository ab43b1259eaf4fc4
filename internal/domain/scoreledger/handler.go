package scoreledger

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/auth"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/assessments", auth.RequirePatient())
	g.POST("", h.Record)
	g.GET("", h.List)
	g.GET("/trash", h.ListTrash)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/restore", h.Restore)
}

func callerAndID(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	caller, err := auth.PatientIDFromContext(c.Request().Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "token subject is not a patient")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return caller, id, nil
}

func (h *Handler) Record(c echo.Context) error {
	caller, err := auth.PatientIDFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "token subject is not a patient")
	}
	var in SubmissionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub, err := h.svc.RecordSubmission(c.Request().Context(), caller, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, sub)
}

func (h *Handler) List(c echo.Context) error {
	return h.list(c, h.svc.ListActive, "/api/v1/assessments")
}

func (h *Handler) ListTrash(c echo.Context) error {
	return h.list(c, h.svc.ListTrash, "/api/v1/assessments/trash")
}

type listFunc func(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Submission, int, error)

func (h *Handler) list(c echo.Context, fn listFunc, basePath string) error {
	caller, err := auth.PatientIDFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "token subject is not a patient")
	}
	pg := pagination.FromContext(c)
	items, total, err := fn(c.Request().Context(), caller, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Submission{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(basePath, pg))
}

func (h *Handler) Delete(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var in DeleteInput
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if err := h.svc.validate.Struct(in); err != nil {
		return apperr.ToHTTP(apperr.FromValidator("invalid delete request", err))
	}

	ctx := c.Request().Context()
	if in.Permanent {
		if err := h.svc.DeletePermanently(ctx, id, caller); err != nil {
			return apperr.ToHTTP(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	sub, err := h.svc.SoftDelete(ctx, id, caller, in.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) Restore(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	sub, err := h.svc.Restore(c.Request().Context(), id, caller)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, sub)
}
