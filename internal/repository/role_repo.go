package repository

import (
	"context"
	"time"

	"authcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	// GetByID returns the role with its status and links (views preloaded),
	// deleted or not.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	// GetActiveByName looks a role up by name among non-deleted roles.
	GetActiveByName(ctx context.Context, name string) (*model.Role, error)
	ListActive(ctx context.Context) ([]model.Role, error)
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
	SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, at time.Time) error
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return translate(GetDB(ctx, r.db).Create(role).Error)
}

func (r *roleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	err := GetDB(ctx, r.db).
		Preload("Status").
		Preload("Links.View").
		First(&role, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (r *roleRepository) GetActiveByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	err := GetDB(ctx, r.db).Where("name = ? AND deleted = ?", name, false).First(&role).Error
	if err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (r *roleRepository) ListActive(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := GetDB(ctx, r.db).
		Preload("Status").
		Where("deleted = ?", false).
		Order("name ASC").
		Find(&roles).Error
	return roles, translate(err)
}

func (r *roleRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := GetDB(ctx, r.db).Model(&model.Role{}).Where("deleted = ?", false).Pluck("id", &ids).Error
	return ids, translate(err)
}

func (r *roleRepository) SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, at time.Time) error {
	updates := map[string]interface{}{"deleted": deleted, "deleted_on": nil}
	if deleted {
		updates["deleted_on"] = at
	}
	res := GetDB(ctx, r.db).Model(&model.Role{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
