package handler

import (
	"net/http"

	"authcore/internal/middleware"
	"authcore/internal/service"
	"authcore/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users service.UserService
	auth  service.AuthService
	gate  *middleware.Gate
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(users service.UserService, auth service.AuthService, gate *middleware.Gate) *UserHandler {
	return &UserHandler{users: users, auth: auth, gate: gate}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.PATCH("/api/me/password", h.gate.Authenticated().Handle, h.ChangeOwnPassword)

	users := router.Group(PathUsers, h.gate.Require(PathUsers).Handle)
	{
		users.PATCH("/:id/password", h.ChangePassword)
		users.DELETE("/:id", h.DeleteUser)
		users.PATCH("/:id/restore", h.RestoreUser)
		users.POST("/:id/sessions/revoke", h.RevokeSessions)
	}
}

// ChangeOwnPassword changes the caller's password and ends their session
// @Summary      Change own password
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ChangePasswordRequest  true  "New password"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /api/me/password [patch]
func (h *UserHandler) ChangeOwnPassword(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	h.changePassword(c, p.User.ID.String())
}

// ChangePassword sets another user's password
// @Summary      Change password
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "User ID"
// @Param        payload  body      service.ChangePasswordRequest  true  "New password"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/users/{id}/password [patch]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	h.changePassword(c, c.Param("id"))
}

func (h *UserHandler) changePassword(c *gin.Context, id string) {
	var req service.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), actorID(c), id, req); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Password updated"}))
}

// DeleteUser soft-deletes a user and ends their session
// @Summary      Delete user
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.users.DeleteUser(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "User deleted"}))
}

// RestoreUser undoes a soft delete
// @Summary      Restore user
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id}/restore [patch]
func (h *UserHandler) RestoreUser(c *gin.Context) {
	if err := h.users.RestoreUser(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "User restored"}))
}

// RevokeSessions forces a user out
// @Summary      Revoke sessions
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id}/sessions/revoke [post]
func (h *UserHandler) RevokeSessions(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	n, err := h.auth.RevokeUserSessions(c.Request.Context(), actorID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"revoked": n}))
}
