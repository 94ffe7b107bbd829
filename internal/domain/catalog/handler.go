package catalog

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/limshq/lims/internal/platform/db"
	"github.com/limshq/lims/internal/platform/fault"
	"github.com/limshq/lims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/tests", h.CreateTest)
	api.GET("/tests", h.ListTests)
	api.GET("/tests/:ref", h.GetTest)
	api.POST("/tests/:id/parameters", h.CreateParameter)
	api.GET("/tests/:id/parameters", h.ListParameters)
}

func (h *Handler) CreateTest(c echo.Context) error {
	var t Test
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.TenantID = db.TenantFromContext(c.Request().Context())
	if err := h.svc.CreateTest(c.Request().Context(), &t); err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTest(c echo.Context) error {
	ctx := c.Request().Context()
	t, err := h.svc.FindTestByIDOrCode(ctx, db.TenantFromContext(ctx), c.Param("ref"))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTests(c echo.Context) error {
	ctx := c.Request().Context()
	page := pagination.FromRequest(c)
	tests, total, err := h.svc.ListTests(ctx, db.TenantFromContext(ctx), page.Limit, page.Offset)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Wrap(tests, total, page))
}

func (h *Handler) CreateParameter(c echo.Context) error {
	testID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid test id")
	}
	var p Parameter
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p.TenantID = db.TenantFromContext(ctx)
	p.TestID = testID
	if err := h.svc.CreateParameter(ctx, &p); err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListParameters(c echo.Context) error {
	testID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid test id")
	}
	ctx := c.Request().Context()
	params, err := h.svc.ListParameters(ctx, db.TenantFromContext(ctx), testID)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, params)
}
