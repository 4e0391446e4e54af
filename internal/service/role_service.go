package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"authcore/internal/logger"
	"authcore/internal/model"
	"authcore/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string `json:"name" binding:"required,max=50"`
	Description string `json:"description"`
}

type SetPermissionRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type PermissionToggle struct {
	ViewID  string `json:"id_view" binding:"required,uuid"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

type UpdateRolePermissionsRequest struct {
	Permissions []PermissionToggle `json:"permissions" binding:"required,min=1,dive"`
}

type RoleResponse struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	IsSystem    bool                     `json:"is_system"`
	Status      string                   `json:"status,omitempty"`
	Deleted     bool                     `json:"deleted"`
	Permissions []RolePermissionResponse `json:"permissions"`
	CreatedAt   string                   `json:"created_at"`
}

type RolePermissionResponse struct {
	ViewID   string `json:"id_view"`
	ViewName string `json:"view_name"`
	Path     string `json:"path"`
	Enabled  bool   `json:"enabled"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	// CreateRole inserts the role and an enabled link to every registered
	// view in one transaction.
	CreateRole(ctx context.Context, actor *uuid.UUID, req CreateRoleRequest) (*RoleResponse, error)
	// SetPermission flips one existing link. Unlinked pairs are ErrNotFound.
	SetPermission(ctx context.Context, actor *uuid.UUID, roleID, viewID string, enabled bool) error
	UpdateRolePermissions(ctx context.Context, actor *uuid.UUID, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, actor *uuid.UUID, id string) error
	RestoreRole(ctx context.Context, actor *uuid.UUID, id string) (*RoleResponse, error)
}

// AdminDeps wires the role, view and user administration services.
type AdminDeps struct {
	Users       repository.UserRepository
	Tokens      repository.TokenRepository
	Roles       repository.RoleRepository
	Views       repository.ViewRepository
	Permissions repository.PermissionRepository
	Statuses    repository.StatusRepository
	Audit       repository.AuditRepository
	Tx          repository.TransactionManager
	Cache       DecisionCache
	Notifier    SessionNotifier
	Logger      *logrus.Logger
	Now         func() time.Time
}

func (d AdminDeps) clock() func() time.Time {
	if d.Now == nil {
		return time.Now
	}
	return d.Now
}

type roleService struct {
	roles    repository.RoleRepository
	views    repository.ViewRepository
	perms    repository.PermissionRepository
	statuses repository.StatusRepository
	audit    repository.AuditRepository
	tx       repository.TransactionManager
	cache    DecisionCache
	log      *logrus.Logger
	now      func() time.Time
}

func NewRoleService(d AdminDeps) RoleService {
	return &roleService{
		roles:    d.Roles,
		views:    d.Views,
		perms:    d.Permissions,
		statuses: d.Statuses,
		audit:    d.Audit,
		tx:       d.Tx,
		cache:    d.Cache,
		log:      logger.OrStandard(d.Logger),
		now:      d.clock(),
	}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roles.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := parseID("role", id)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, notFound("role", err)
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, actor *uuid.UUID, req CreateRoleRequest) (*RoleResponse, error) {
	role := model.Role{
		Name:        req.Name,
		Description: req.Description,
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.roles.GetActiveByName(txCtx, req.Name); err == nil {
			return fmt.Errorf("%w: role %q already exists", ErrConflict, req.Name)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		active, err := s.statuses.Ensure(txCtx, model.StatusActive, "")
		if err != nil {
			return err
		}
		role.StatusID = &active.ID

		if err := s.roles.Create(txCtx, &role); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: role %q already exists", ErrConflict, req.Name)
			}
			return err
		}

		viewIDs, err := s.views.ListActiveIDs(txCtx)
		if err != nil {
			return err
		}
		links := make([]model.RoleViewLink, 0, len(viewIDs))
		for _, viewID := range viewIDs {
			links = append(links, model.RoleViewLink{RoleID: role.ID, ViewID: viewID, Enabled: true})
		}
		if err := s.perms.CreateLinks(txCtx, links); err != nil {
			return err
		}

		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actor,
			Action:     model.ActionCreateRole,
			EntityID:   role.ID.String(),
			EntityName: role.Name,
			Details:    auditDetails(map[string]interface{}{"views": len(links)}),
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		return nil, wrapAdmin("create role", err)
	}

	s.invalidateRole(ctx, role.ID)
	return s.GetRole(ctx, role.ID.String())
}

func (s *roleService) SetPermission(ctx context.Context, actor *uuid.UUID, roleIDStr, viewIDStr string, enabled bool) error {
	roleID, err := parseID("role", roleIDStr)
	if err != nil {
		return err
	}
	viewID, err := parseID("view", viewIDStr)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.setLink(txCtx, actor, roleID, viewID, enabled)
	})
	if err != nil {
		return wrapAdmin("set permission", err)
	}

	s.invalidateRole(ctx, roleID)
	return nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, actor *uuid.UUID, roleIDStr string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	roleID, err := parseID("role", roleIDStr)
	if err != nil {
		return nil, err
	}

	toggles := make(map[uuid.UUID]bool, len(req.Permissions))
	for _, p := range req.Permissions {
		viewID, err := parseID("view", p.ViewID)
		if err != nil {
			return nil, err
		}
		if p.Enabled == nil {
			return nil, fmt.Errorf("%w: enabled is required for view %s", ErrInvalidInput, p.ViewID)
		}
		toggles[viewID] = *p.Enabled
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.GetByID(txCtx, roleID)
		if err != nil {
			return err
		}
		if role.Deleted {
			return fmt.Errorf("%w: role is deleted", ErrNotFound)
		}
		for viewID, enabled := range toggles {
			if err := s.setLink(txCtx, actor, roleID, viewID, enabled); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapAdmin("update role permissions", err)
	}

	s.invalidateRole(ctx, roleID)
	return s.GetRole(ctx, roleID.String())
}

func (s *roleService) setLink(ctx context.Context, actor *uuid.UUID, roleID, viewID uuid.UUID, enabled bool) error {
	if err := s.perms.SetEnabled(ctx, roleID, viewID, enabled, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: role %s has no link to view %s", ErrNotFound, roleID, viewID)
		}
		return err
	}
	return s.audit.Log(ctx, &model.AuditLog{
		UserID:    actor,
		Action:    model.ActionSetPermission,
		EntityID:  roleID.String(),
		Details:   auditDetails(map[string]interface{}{"id_view": viewID.String(), "enabled": enabled}),
		CreatedAt: s.now(),
	})
}

func (s *roleService) DeleteRole(ctx context.Context, actor *uuid.UUID, id string) error {
	roleID, err := parseID("role", id)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.GetByID(txCtx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return fmt.Errorf("%w: system roles cannot be deleted", ErrInvalidInput)
		}
		if role.Deleted {
			return nil
		}
		if err := s.roles.SetDeleted(txCtx, roleID, true, s.now()); err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actor,
			Action:     model.ActionDeleteRole,
			EntityID:   role.ID.String(),
			EntityName: role.Name,
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		return wrapAdmin("delete role", err)
	}

	s.invalidateRole(ctx, roleID)
	return nil
}

func (s *roleService) RestoreRole(ctx context.Context, actor *uuid.UUID, id string) (*RoleResponse, error) {
	roleID, err := parseID("role", id)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.GetByID(txCtx, roleID)
		if err != nil {
			return err
		}
		if !role.Deleted {
			return nil
		}
		if other, err := s.roles.GetActiveByName(txCtx, role.Name); err == nil && other.ID != role.ID {
			return fmt.Errorf("%w: another role named %q exists", ErrConflict, role.Name)
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := s.roles.SetDeleted(txCtx, roleID, false, s.now()); err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actor,
			Action:     model.ActionRestoreRole,
			EntityID:   role.ID.String(),
			EntityName: role.Name,
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		return nil, wrapAdmin("restore role", err)
	}

	s.invalidateRole(ctx, roleID)
	return s.GetRole(ctx, roleID.String())
}

func (s *roleService) invalidateRole(ctx context.Context, roleID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRole(ctx, roleID); err != nil {
		s.log.WithError(err).WithField("role_id", roleID.String()).Warn("permission cache invalidation failed")
	}
}

// --- Helpers ---

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]RolePermissionResponse, 0, len(r.Links))
	for _, l := range r.Links {
		p := RolePermissionResponse{ViewID: l.ViewID.String(), Enabled: l.Enabled}
		if l.View != nil {
			if l.View.Deleted {
				continue
			}
			p.ViewName = l.View.Name
			p.Path = l.View.Path
		}
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Path < perms[j].Path })

	res := RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Deleted:     r.Deleted,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if r.Status != nil {
		res.Status = r.Status.Name
	}
	return res
}

func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s id %q", ErrInvalidInput, kind, raw)
	}
	return id, nil
}

func notFound(kind string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, kind)
	}
	return fmt.Errorf("failed to load %s: %w", kind, err)
}

// wrapAdmin keeps service sentinels visible and maps repository ones onto them.
func wrapAdmin(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidInput):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %s", ErrConflict, op)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
