package handler

import (
	"net/http"
	"strconv"

	"authcore/internal/middleware"
	"authcore/internal/service"
	"authcore/pkg/pagination"
	"authcore/pkg/response"

	"github.com/gin-gonic/gin"
)

type ViewHandler struct {
	viewService service.ViewService
	gate        *middleware.Gate
}

func NewViewHandler(viewService service.ViewService, gate *middleware.Gate) *ViewHandler {
	return &ViewHandler{viewService: viewService, gate: gate}
}

func (h *ViewHandler) RegisterRoutes(router *gin.RouterGroup) {
	views := router.Group(PathViews, h.gate.Require(PathViews).Handle)
	{
		views.GET("", h.ListViews)
		views.POST("", h.RegisterView)
		views.DELETE("/:id", h.DeleteView)
		views.PATCH("/:id/restore", h.RestoreView)
	}
}

// ListViews pages through registered views
// @Summary      List views
// @Tags         views
// @Security     BearerAuth
// @Produce      json
// @Param        page             query     int   false  "Page number (default 1)"
// @Param        limit            query     int   false  "Number of items per page (default 20)"
// @Param        include_deleted  query     bool  false  "Include soft-deleted views"
// @Success      200              {object}  response.Response{data=response.Page[service.ViewResponse]}
// @Router       /api/views [get]
func (h *ViewHandler) ListViews(c *gin.Context) {
	p := pagination.Parse(c)
	includeDeleted, _ := strconv.ParseBool(c.Query("include_deleted"))

	views, total, err := h.viewService.ListViews(c.Request.Context(), includeDeleted, p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page[service.ViewResponse]{
		Items: views,
		Total: total,
		Page:  p.Page,
		Limit: p.Limit,
	}))
}

// RegisterView adds a protected resource; every role starts without access
// @Summary      Register view
// @Tags         views
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterViewRequest  true  "View"
// @Success      201      {object}  response.Response{data=service.ViewResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/views [post]
func (h *ViewHandler) RegisterView(c *gin.Context) {
	var req service.RegisterViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	view, err := h.viewService.RegisterView(c.Request.Context(), actorID(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, view))
}

// DeleteView soft-deletes a view; its path becomes unregistered
// @Summary      Delete view
// @Tags         views
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "View ID"
// @Success      200  {object}  response.Response
// @Router       /api/views/{id} [delete]
func (h *ViewHandler) DeleteView(c *gin.Context) {
	if err := h.viewService.DeleteView(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "View deleted"}))
}

// RestoreView undoes a soft delete
// @Summary      Restore view
// @Tags         views
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "View ID"
// @Success      200  {object}  response.Response{data=service.ViewResponse}
// @Router       /api/views/{id}/restore [patch]
func (h *ViewHandler) RestoreView(c *gin.Context) {
	view, err := h.viewService.RestoreView(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}
