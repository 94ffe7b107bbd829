package document

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
	api.POST("/documents/generate", h.Generate)
	api.GET("/documents", h.List)
	api.GET("/documents/:id", h.Get)
	api.POST("/documents/:id/publish", h.Publish)
	api.POST("/documents/:id/rendered", h.Rendered)
	api.POST("/documents/:id/failed", h.Failed)
	api.POST("/templates", h.CreateTemplate)
	api.GET("/templates", h.ListTemplates)
}

type generateRequest struct {
	DocType    string                 `json:"doc_type"`
	Payload    map[string]interface{} `json:"payload"`
	SourceRef  string                 `json:"source_ref"`
	SourceType string                 `json:"source_type"`
}

type generateResponse struct {
	Document *Document `json:"document"`
	Created  bool      `json:"created"`
}

func (h *Handler) Generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DocType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doc_type is required")
	}
	ctx := c.Request().Context()
	doc, created, err := h.svc.Generate(ctx, db.TenantFromContext(ctx), req.DocType, req.Payload, req.SourceRef, req.SourceType, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, generateResponse{Document: doc, Created: created})
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	page := pagination.FromRequest(c)
	docs, total, err := h.svc.List(ctx, db.TenantFromContext(ctx), c.QueryParam("doc_type"), page.Limit, page.Offset)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Wrap(docs, total, page))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	doc, err := h.svc.Get(ctx, db.TenantFromContext(ctx), id)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Publish(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	doc, err := h.svc.Publish(ctx, db.TenantFromContext(ctx), id, db.ActorFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Rendered(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		PDFHash string `json:"pdf_hash"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	doc, err := h.svc.MarkRendered(ctx, db.TenantFromContext(ctx), id, req.PDFHash)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Failed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Error string `json:"error"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	doc, err := h.svc.MarkFailed(ctx, db.TenantFromContext(ctx), id, req.Error)
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	var tmpl Template
	if err := c.Bind(&tmpl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	tmpl.TenantID = db.TenantFromContext(ctx)
	if err := h.svc.CreateTemplate(ctx, &tmpl); err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, tmpl)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	ctx := c.Request().Context()
	templates, err := h.svc.ListTemplates(ctx, db.TenantFromContext(ctx))
	if err != nil {
		return fault.HTTPError(err)
	}
	return c.JSON(http.StatusOK, templates)
}
