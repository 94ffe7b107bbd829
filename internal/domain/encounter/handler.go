package encounter

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/limshq/lims/internal/domain/specimen"
	"github.com/limshq/lims/internal/platform/db"
	"github.com/limshq/lims/internal/platform/fault"
	"github.com/limshq/lims/pkg/pagination"
)

type Handler struct {
	svc       *Service
	specimens *specimen.Service
}

func NewHandler(svc *Service, specimens *specimen.Service) *Handler {
	return &Handler{svc: svc, specimens: specimens}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/encounters", h.Register)
	api.GET("/encounters", h.List)
	api.GET("/encounters/:id", h.GetDetail)
	api.POST("/encounters/:id/orders", h.OrderLab)
	api.POST("/encounters/:id/specimens/collect", h.Collect)
	api.POST("/encounters/:id/specimens/receive", h.Receive)
	api.POST("/encounters/:id/specimens/:itemId/postpone", h.Postpone)
	api.POST("/encounters/:id/cancel", h.Cancel)
}

type registerRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	ctx := c.Request().Context()
	enc, err := h.svc.Register(ctx, db.TenantFromContext(ctx), req.PatientID, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, enc)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	page := pagination.FromRequest(c)
	encs, total, err := h.svc.List(ctx, db.TenantFromContext(ctx), c.QueryParam("status"), page.Limit, page.Offset)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Wrap(encs, total, page))
}

func (h *Handler) GetDetail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	detail, err := h.svc.GetDetail(ctx, db.TenantFromContext(ctx), id)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

type orderLabRequest struct {
	TestRef string `json:"test_ref"`
}

func (h *Handler) OrderLab(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req orderLabRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.TestRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "test_ref is required")
	}
	ctx := c.Request().Context()
	enc, err := h.svc.OrderLab(ctx, db.TenantFromContext(ctx), id, req.TestRef, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, enc)
}

type specimenItemsRequest struct {
	ItemIDs []uuid.UUID `json:"item_ids"`
}

func (h *Handler) Collect(c echo.Context) error {
	return h.bulkSpecimens(c, h.svc.CollectSpecimens)
}

func (h *Handler) Receive(c echo.Context) error {
	return h.bulkSpecimens(c, h.svc.ReceiveSpecimens)
}

type specimenOp func(ctx context.Context, tenantID string, encounterID uuid.UUID, ids []uuid.UUID, actorID string) (*Encounter, error)

func (h *Handler) bulkSpecimens(c echo.Context, op specimenOp) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req specimenItemsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	enc, err := op(ctx, db.TenantFromContext(ctx), id, req.ItemIDs, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, enc)
}

func (h *Handler) Postpone(c echo.Context) error {
	itemID, err := uuid.Parse(c.Param("itemId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	item, err := h.specimens.Postpone(ctx, db.TenantFromContext(ctx), itemID, req.Reason, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	enc, err := h.svc.Cancel(ctx, db.TenantFromContext(ctx), id, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, enc)
}
