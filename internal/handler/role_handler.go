package handler

import (
	"net/http"

	"authcore/internal/middleware"
	"authcore/internal/service"
	"authcore/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
	gate        *middleware.Gate
}

func NewRoleHandler(roleService service.RoleService, gate *middleware.Gate) *RoleHandler {
	return &RoleHandler{roleService: roleService, gate: gate}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	roles := router.Group(PathRoles, h.gate.Require(PathRoles).Handle)
	{
		roles.GET("", h.ListRoles)
		roles.GET("/:id", h.GetRole)
		roles.POST("", h.CreateRole)
		roles.PUT("/:id/views/:view_id", h.SetPermission)
		roles.PATCH("/:id/permissions", h.UpdateRolePermissions)
		roles.DELETE("/:id", h.DeleteRole)
		roles.PATCH("/:id/restore", h.RestoreRole)
	}
}

// ListRoles returns every live role with its permission matrix
// @Summary      List roles
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.RoleResponse}
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roleService.ListRoles(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, roles))
}

// GetRole returns a single role
// @Summary      Get role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=service.RoleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.roleService.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// CreateRole adds a role linked to every registered view
// @Summary      Create role
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRoleRequest  true  "Role"
// @Success      201      {object}  response.Response{data=service.RoleResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req service.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	role, err := h.roleService.CreateRole(c.Request.Context(), actorID(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, role))
}

// SetPermission enables or disables one view for a role
// @Summary      Set permission
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Role ID"
// @Param        view_id  path      string                        true  "View ID"
// @Param        payload  body      service.SetPermissionRequest  true  "Flag"
// @Success      200      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/roles/{id}/views/{view_id} [put]
func (h *RoleHandler) SetPermission(c *gin.Context) {
	var req service.SetPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.roleService.SetPermission(c.Request.Context(), actorID(c), c.Param("id"), c.Param("view_id"), *req.Enabled); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Permission updated"}))
}

// UpdateRolePermissions applies several toggles in one transaction
// @Summary      Update role permissions
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                                true  "Role ID"
// @Param        payload  body      service.UpdateRolePermissionsRequest  true  "Toggles"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Router       /api/roles/{id}/permissions [patch]
func (h *RoleHandler) UpdateRolePermissions(c *gin.Context) {
	var req service.UpdateRolePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	role, err := h.roleService.UpdateRolePermissions(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// DeleteRole soft-deletes a role; its members are denied everywhere
// @Summary      Delete role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response
// @Router       /api/roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	if err := h.roleService.DeleteRole(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Role deleted"}))
}

// RestoreRole undoes a soft delete
// @Summary      Restore role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=service.RoleResponse}
// @Router       /api/roles/{id}/restore [patch]
func (h *RoleHandler) RestoreRole(c *gin.Context) {
	role, err := h.roleService.RestoreRole(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}
