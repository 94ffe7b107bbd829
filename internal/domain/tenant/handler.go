package tenant

import (
	"net/http"

	"github.com/labstack/echo/v4"

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
	api.POST("/tenants", h.CreateTenant)
	api.GET("/tenants", h.ListTenants)
	api.GET("/tenants/:id", h.GetTenant)
	api.PUT("/tenants/:id/branding", h.UpdateBranding)
	api.PUT("/tenants/:id/modules/:key", h.SetModuleFlag)
	api.GET("/tenants/:id/modules/:key", h.GetModuleFlag)
}

func (h *Handler) CreateTenant(c echo.Context) error {
	var t Tenant
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateTenant(c.Request().Context(), &t); err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTenant(c echo.Context) error {
	t, err := h.svc.GetTenant(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTenants(c echo.Context) error {
	page := pagination.FromRequest(c)
	tenants, total, err := h.svc.ListTenants(c.Request().Context(), page.Limit, page.Offset)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Wrap(tenants, total, page))
}

func (h *Handler) UpdateBranding(c echo.Context) error {
	var b Branding
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateBranding(c.Request().Context(), c.Param("id"), b); err != nil {
		return fault.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetModuleFlag(c echo.Context) error {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetModuleFlag(c.Request().Context(), c.Param("id"), c.Param("key"), body.Enabled); err != nil {
		return fault.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetModuleFlag(c echo.Context) error {
	enabled, err := h.svc.ModuleEnabled(c.Request().Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"module_key": c.Param("key"),
		"enabled":    enabled,
	})
}
