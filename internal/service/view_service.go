package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authcore/internal/logger"
	"authcore/internal/model"
	"authcore/internal/repository"
	"authcore/pkg/pagination"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type RegisterViewRequest struct {
	Name string `json:"name" binding:"required,max=100"`
	Path string `json:"path" binding:"required,max=255"`
}

type ViewResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Deleted   bool   `json:"deleted"`
	CreatedAt string `json:"created_at"`
}

type ViewService interface {
	ListViews(ctx context.Context, includeDeleted bool, p pagination.Params) ([]ViewResponse, int64, error)
	// RegisterView adds a protected resource. Every existing role gets a
	// disabled link to it, so new resources start out denied.
	RegisterView(ctx context.Context, actor *uuid.UUID, req RegisterViewRequest) (*ViewResponse, error)
	DeleteView(ctx context.Context, actor *uuid.UUID, id string) error
	RestoreView(ctx context.Context, actor *uuid.UUID, id string) (*ViewResponse, error)
}

type viewService struct {
	views repository.ViewRepository
	roles repository.RoleRepository
	perms repository.PermissionRepository
	audit repository.AuditRepository
	tx    repository.TransactionManager
	cache DecisionCache
	log   *logrus.Logger
	now   func() time.Time
}

func NewViewService(d AdminDeps) ViewService {
	return &viewService{
		views: d.Views,
		roles: d.Roles,
		perms: d.Permissions,
		audit: d.Audit,
		tx:    d.Tx,
		cache: d.Cache,
		log:   logger.OrStandard(d.Logger),
		now:   d.clock(),
	}
}

func (s *viewService) ListViews(ctx context.Context, includeDeleted bool, p pagination.Params) ([]ViewResponse, int64, error) {
	views, total, err := s.views.List(ctx, includeDeleted, p.Offset, p.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list views: %w", err)
	}
	res := make([]ViewResponse, 0, len(views))
	for _, v := range views {
		res = append(res, toViewResponse(v))
	}
	return res, total, nil
}

func (s *viewService) RegisterView(ctx context.Context, actor *uuid.UUID, req RegisterViewRequest) (*ViewResponse, error) {
	view := model.View{Name: req.Name, Path: NormalizePath(req.Path)}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureUnique(txCtx, uuid.Nil, view.Name, view.Path); err != nil {
			return err
		}
		if err := s.views.Create(txCtx, &view); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("%w: path %q belongs to a deleted view, restore it instead", ErrConflict, view.Path)
			}
			return err
		}
		if err := s.linkAllRoles(txCtx, view.ID); err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actor,
			Action:     model.ActionCreateView,
			EntityID:   view.ID.String(),
			EntityName: view.Path,
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		return nil, wrapAdmin("register view", err)
	}

	s.invalidateAll(ctx)
	res := toViewResponse(view)
	return &res, nil
}

func (s *viewService) DeleteView(ctx context.Context, actor *uuid.UUID, id string) error {
	viewID, err := parseID("view", id)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		view, err := s.views.GetByID(txCtx, viewID)
		if err != nil {
			return err
		}
		if view.Deleted {
			return nil
		}
		if err := s.views.SetDeleted(txCtx, viewID, true, s.now()); err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actor,
			Action:     model.ActionDeleteView,
			EntityID:   view.ID.String(),
			EntityName: view.Path,
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		return wrapAdmin("delete view", err)
	}

	s.invalidateAll(ctx)
	return nil
}

func (s *viewService) RestoreView(ctx context.Context, actor *uuid.UUID, id string) (*ViewResponse, error) {
	viewID, err := parseID("view", id)
	if err != nil {
		return nil, err
	}

	var view *model.View
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		view, err = s.views.GetByID(txCtx, viewID)
		if err != nil {
			return err
		}
		if !view.Deleted {
			return nil
		}
		if err := s.ensureUnique(txCtx, view.ID, view.Name, view.Path); err != nil {
			return err
		}
		if err := s.views.SetDeleted(txCtx, viewID, false, s.now()); err != nil {
			return err
		}
		view.Deleted = false
		view.DeletedOn = nil
		// roles created while the view was deleted have no link yet
		if err := s.linkAllRoles(txCtx, view.ID); err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actor,
			Action:     model.ActionRestoreView,
			EntityID:   view.ID.String(),
			EntityName: view.Path,
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		return nil, wrapAdmin("restore view", err)
	}

	s.invalidateAll(ctx)
	res := toViewResponse(*view)
	return &res, nil
}

func (s *viewService) ensureUnique(ctx context.Context, self uuid.UUID, name, path string) error {
	if other, err := s.views.GetActiveByName(ctx, name); err == nil && other.ID != self {
		return fmt.Errorf("%w: view name %q is taken", ErrConflict, name)
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if other, err := s.views.GetActiveByPath(ctx, path); err == nil && other.ID != self {
		return fmt.Errorf("%w: view path %q is taken", ErrConflict, path)
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

func (s *viewService) linkAllRoles(ctx context.Context, viewID uuid.UUID) error {
	roleIDs, err := s.roles.ListActiveIDs(ctx)
	if err != nil {
		return err
	}
	links := make([]model.RoleViewLink, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		links = append(links, model.RoleViewLink{RoleID: roleID, ViewID: viewID, Enabled: false})
	}
	return s.perms.CreateLinks(ctx, links)
}

// invalidateAll drops every cached decision; view changes can turn an
// "unregistered" answer into a link answer for any role.
func (s *viewService) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.log.WithError(err).Warn("permission cache invalidation failed")
	}
}

func toViewResponse(v model.View) ViewResponse {
	return ViewResponse{
		ID:        v.ID.String(),
		Name:      v.Name,
		Path:      v.Path,
		Deleted:   v.Deleted,
		CreatedAt: v.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
