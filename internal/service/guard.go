package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authcore/internal/logger"
	"authcore/internal/metrics"
	"authcore/internal/model"

	"github.com/sirupsen/logrus"
)

// Guard authenticates a request and authorizes it against one resource path.
type Guard struct {
	auth    AuthService
	perms   PermissionResolver
	metrics *metrics.Metrics
	log     *logrus.Logger
}

func NewGuard(auth AuthService, perms PermissionResolver, m *metrics.Metrics, log *logrus.Logger) *Guard {
	return &Guard{auth: auth, perms: perms, metrics: m, log: logger.OrStandard(log)}
}

// Check authenticates token and, unless path is empty, requires the caller's
// primary role to have an enabled link to the view registered at path.
// Authentication always runs first, so an anonymous caller never learns
// whether a path is registered.
func (g *Guard) Check(ctx context.Context, token, path string) (*Principal, error) {
	started := time.Now()

	p, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		g.metrics.ObserveDecision("unauthenticated", authReason(err), started)
		return nil, err
	}
	if path == "" {
		g.metrics.ObserveDecision("allow", "authenticated", started)
		return p, nil
	}

	if p.User.RoleID == nil {
		g.deny(p, path, model.DecisionNoRole, started)
		return nil, decisionError(model.DecisionNoRole)
	}

	d, err := g.perms.Decide(ctx, *p.User.RoleID, path)
	if err != nil {
		g.metrics.ObserveDecision("error", "store", started)
		return nil, fmt.Errorf("failed to authorize: %w", err)
	}
	if !d.Allowed() {
		g.deny(p, path, d, started)
		return nil, decisionError(d)
	}

	g.metrics.ObserveDecision("allow", string(d), started)
	return p, nil
}

func (g *Guard) deny(p *Principal, path string, d model.Decision, started time.Time) {
	g.metrics.ObserveDecision("deny", string(d), started)
	g.log.WithFields(userFields(p.User)).
		WithFields(logrus.Fields{"path": path, "role": p.User.RoleName(), "reason": string(d)}).
		Warn("access denied")
}

func authReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrUserNotFound):
		return "unknown_user"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	}
	return "error"
}
