package handler

import (
	"fmt"

	"authcore/internal/middleware"
	"authcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Resource paths of the engine's own admin endpoints. Each one is a view
// that must be registered for the guard to let anybody through.
const (
	PathRoles     = "/api/roles"
	PathViews     = "/api/views"
	PathUsers     = "/api/users"
	PathAuditLogs = "/api/audit-logs"
)

// AdminViews lists the views seeded at start-up.
func AdminViews() []service.AdminView {
	return []service.AdminView{
		{Name: "Roles", Path: PathRoles},
		{Name: "Views", Path: PathViews},
		{Name: "Users", Path: PathUsers},
		{Name: "Audit logs", Path: PathAuditLogs},
	}
}

func actorID(c *gin.Context) *uuid.UUID {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return nil
	}
	id := p.User.ID
	return &id
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", service.ErrInvalidInput, name)
	}
	return id, nil
}
