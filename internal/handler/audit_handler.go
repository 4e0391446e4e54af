package handler

import (
	"net/http"

	"authcore/internal/middleware"
	"authcore/internal/service"
	"authcore/pkg/pagination"
	"authcore/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	gate         *middleware.Gate
}

func NewAuditHandler(auditService service.AuditService, gate *middleware.Gate) *AuditHandler {
	return &AuditHandler{auditService: auditService, gate: gate}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group(PathAuditLogs, h.gate.Require(PathAuditLogs).Handle)
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs returns the audit trail, newest first
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page[service.AuditLogResponse]}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page[service.AuditLogResponse]{
		Items: logs,
		Total: total,
		Page:  p.Page,
		Limit: p.Limit,
	}))
}
