package middleware

import (
	"context"
	"strings"

	"authcore/internal/service"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Guarder is satisfied by *service.Guard.
type Guarder interface {
	Check(ctx context.Context, token, path string) (*service.Principal, error)
}

// Gate builds per-route guards that share one Guarder.
type Gate struct {
	guard Guarder
}

func NewGate(guard Guarder) *Gate {
	return &Gate{guard: guard}
}

// Authenticated guards a route that any logged-in user may call.
func (g *Gate) Authenticated() ViewGuard {
	return ViewGuard{guard: g.guard}
}

// Require guards a route with the view registered at path.
func (g *Gate) Require(path string) ViewGuard {
	return ViewGuard{guard: g.guard, path: service.NormalizePath(path)}
}

// ViewGuard checks the bearer token and, when path is set, the caller's
// permission on it. Failures are handed to ErrorHandling.
type ViewGuard struct {
	guard Guarder
	path  string
}

// Path is the resource this guard protects; empty means authentication only.
func (v ViewGuard) Path() string { return v.path }

func (v ViewGuard) Handle(c *gin.Context) {
	token, ok := BearerToken(c.GetHeader("Authorization"))
	if !ok {
		_ = c.Error(service.ErrTokenMalformed)
		c.Abort()
		return
	}

	principal, err := v.guard.Check(c.Request.Context(), token, v.path)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	c.Set(principalKey, principal)
	c.Next()
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// CurrentPrincipal returns the caller stored by a ViewGuard.
func CurrentPrincipal(c *gin.Context) (*service.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*service.Principal)
	return p, ok && p != nil
}
