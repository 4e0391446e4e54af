package handler

import (
	"net/http"

	"authcore/internal/middleware"
	"authcore/internal/service"
	"authcore/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth    service.AuthService
	gate    *middleware.Gate
	limiter *middleware.LoginLimiter
}

func NewAuthHandler(auth service.AuthService, gate *middleware.Gate, limiter *middleware.LoginLimiter) *AuthHandler {
	return &AuthHandler{auth: auth, gate: gate, limiter: limiter}
}

func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api")
	api.POST("/login", h.limiter.Handle, h.Login)
	api.POST("/logout", h.gate.Authenticated().Handle, h.Logout)
	api.GET("/me", h.gate.Authenticated().Handle, h.Me)
}

// Login exchanges credentials for a bearer token
// @Summary      Log in
// @Description  Verifies credentials and starts a session. Any earlier session of the user ends.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Credentials"
// @Success      200      {object}  response.Response{data=service.LoginResponse}
// @Failure      401      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Router       /api/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Logout ends the caller's session
// @Summary      Log out
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /api/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	if err := h.auth.Logout(c.Request.Context(), p); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Logged out"}))
}

// Me returns the caller and the views their role may open
// @Summary      Current user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.MeResponse}
// @Failure      401  {object}  response.Response
// @Router       /api/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	me, err := h.auth.Me(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, me))
}
