package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"authcore/internal/metrics"
	"authcore/internal/model"
	"authcore/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DecisionCache stores permission decisions outside the process. Get returns
// a version along with a miss; Put must be given that version so a decision
// read before an invalidation is never stored after it.
type DecisionCache interface {
	Get(ctx context.Context, roleID uuid.UUID, path string) (d model.Decision, version string, hit bool)
	Put(ctx context.Context, version string, roleID uuid.UUID, path string, d model.Decision)
	InvalidateRole(ctx context.Context, roleID uuid.UUID) error
	InvalidateAll(ctx context.Context) error
}

// PermissionResolver answers whether a role may reach a resource path.
type PermissionResolver interface {
	Decide(ctx context.Context, roleID uuid.UUID, path string) (model.Decision, error)
	// Authorize is Decide reduced to an error: nil, ErrResourceUnregistered
	// or ErrPermissionDenied.
	Authorize(ctx context.Context, roleID uuid.UUID, path string) error
}

type permissionResolver struct {
	perms    repository.PermissionRepository
	cache    DecisionCache
	disabled model.DisabledSet
	metrics  *metrics.Metrics
	group    singleflight.Group
}

// NewPermissionResolver reads decisions straight from the store when cache is nil.
func NewPermissionResolver(perms repository.PermissionRepository, cache DecisionCache, disabledStatuses []string, m *metrics.Metrics) PermissionResolver {
	return &permissionResolver{
		perms:    perms,
		cache:    cache,
		disabled: model.NewDisabledSet(disabledStatuses...),
		metrics:  m,
	}
}

func (r *permissionResolver) Decide(ctx context.Context, roleID uuid.UUID, path string) (model.Decision, error) {
	path = NormalizePath(path)

	var version string
	if r.cache != nil {
		d, v, hit := r.cache.Get(ctx, roleID, path)
		if hit {
			r.metrics.ObserveCache("hit")
			return d, nil
		}
		r.metrics.ObserveCache("miss")
		version = v
	}

	// Callers only share a lookup when they saw the same cache version, so a
	// lookup started before an invalidation never answers one that came after.
	// The shared lookup outlives any single caller's cancellation.
	key := version + "|" + roleID.String() + "|" + path
	lookupCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.lookup(lookupCtx, roleID, path)
	})
	var d model.Decision
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		d = res.Val.(model.Decision)
	}

	if r.cache != nil && version != "" {
		r.cache.Put(ctx, version, roleID, path, d)
	}
	return d, nil
}

func (r *permissionResolver) lookup(ctx context.Context, roleID uuid.UUID, path string) (model.Decision, error) {
	grant, err := r.perms.LookupGrant(ctx, roleID, path)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.DecisionUnregistered, nil
		}
		return "", fmt.Errorf("failed to look up permission: %w", err)
	}

	switch {
	case !grant.RoleFound, grant.RoleDeleted, r.disabled.Contains(&model.Status{Name: grant.RoleStatus}):
		return model.DecisionRoleInactive, nil
	case !grant.Linked:
		return model.DecisionNoLink, nil
	case !grant.Enabled:
		return model.DecisionDisabled, nil
	}
	return model.DecisionAllow, nil
}

func (r *permissionResolver) Authorize(ctx context.Context, roleID uuid.UUID, path string) error {
	d, err := r.Decide(ctx, roleID, path)
	if err != nil {
		return err
	}
	return decisionError(d)
}

func decisionError(d model.Decision) error {
	switch d {
	case model.DecisionAllow:
		return nil
	case model.DecisionUnregistered:
		return ErrResourceUnregistered
	default:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, d)
	}
}

// NormalizePath gives resource paths one spelling: a leading slash and no
// trailing slash.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
