package results

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/limshq/lims/internal/platform/db"
	"github.com/limshq/lims/internal/platform/fault"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/lab-orders/:id", h.GetDetail)
	api.PUT("/lab-orders/:id/results", h.SaveResults)
	api.POST("/lab-orders/:id/submit", h.Submit)
	api.POST("/lab-orders/:id/submit-and-verify", h.SubmitAndVerify)
	api.POST("/encounters/:id/verify", h.VerifyEncounter)
}

func (h *Handler) GetDetail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	detail, err := h.svc.GetOrderDetail(ctx, db.TenantFromContext(ctx), id)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

type saveResultsRequest struct {
	Values []ResultValue `json:"values"`
}

func (h *Handler) SaveResults(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req saveResultsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	detail, err := h.svc.SaveResults(ctx, db.TenantFromContext(ctx), id, req.Values, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	detail, err := h.svc.SubmitResults(ctx, db.TenantFromContext(ctx), id, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) SubmitAndVerify(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	outcome, err := h.svc.SubmitAndVerify(ctx, db.TenantFromContext(ctx), id, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) VerifyEncounter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	outcome, err := h.svc.VerifyEncounter(ctx, db.TenantFromContext(ctx), id, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}
