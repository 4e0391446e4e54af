package repository

import (
	"context"
	"time"

	"authcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Grant is everything needed to decide whether a role may reach a path.
type Grant struct {
	ViewID      uuid.UUID `gorm:"column:view_id"`
	Linked      bool      `gorm:"column:linked"`
	Enabled     bool      `gorm:"column:enabled"`
	RoleFound   bool      `gorm:"column:role_found"`
	RoleDeleted bool      `gorm:"column:role_deleted"`
	RoleStatus  string    `gorm:"column:role_status"`
}

// PermissionRepository stores role/view links.
type PermissionRepository interface {
	// CreateLinks inserts links, leaving any existing (role, view) pair untouched.
	CreateLinks(ctx context.Context, links []model.RoleViewLink) error
	GetLink(ctx context.Context, roleID, viewID uuid.UUID) (*model.RoleViewLink, error)
	// SetEnabled updates an existing link. It returns ErrNotFound when the
	// pair was never linked.
	SetEnabled(ctx context.Context, roleID, viewID uuid.UUID, enabled bool, at time.Time) error
	// LookupGrant resolves path to a non-deleted view and reports the role's
	// link to it. ErrNotFound means no such view is registered.
	LookupGrant(ctx context.Context, roleID uuid.UUID, path string) (*Grant, error)
	ListEnabledPaths(ctx context.Context, roleID uuid.UUID) ([]string, error)
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) CreateLinks(ctx context.Context, links []model.RoleViewLink) error {
	if len(links) == 0 {
		return nil
	}
	return translate(GetDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error)
}

func (r *permissionRepository) GetLink(ctx context.Context, roleID, viewID uuid.UUID) (*model.RoleViewLink, error) {
	var link model.RoleViewLink
	err := GetDB(ctx, r.db).Where("id_role = ? AND id_view = ?", roleID, viewID).First(&link).Error
	if err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (r *permissionRepository) SetEnabled(ctx context.Context, roleID, viewID uuid.UUID, enabled bool, at time.Time) error {
	res := GetDB(ctx, r.db).Model(&model.RoleViewLink{}).
		Where("id_role = ? AND id_view = ?", roleID, viewID).
		Updates(map[string]interface{}{"enabled": enabled, "updated_at": at})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const lookupGrantSQL = `
SELECT v.id AS view_id,
       l.id_role IS NOT NULL AS linked,
       COALESCE(l.enabled, false) AS enabled,
       r.id IS NOT NULL AS role_found,
       COALESCE(r.deleted, false) AS role_deleted,
       COALESCE(s.name, '') AS role_status
FROM views v
LEFT JOIN role_view_link l ON l.id_view = v.id AND l.id_role = ?
LEFT JOIN roles r ON r.id = ?
LEFT JOIN status s ON s.id = r.id_status
WHERE v.path = ? AND v.deleted = false
LIMIT 1`

func (r *permissionRepository) LookupGrant(ctx context.Context, roleID uuid.UUID, path string) (*Grant, error) {
	var grant Grant
	res := GetDB(ctx, r.db).Raw(lookupGrantSQL, roleID, roleID, path).Scan(&grant)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &grant, nil
}

func (r *permissionRepository) ListEnabledPaths(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	var paths []string
	err := GetDB(ctx, r.db).Table("role_view_link AS l").
		Joins("JOIN views v ON v.id = l.id_view").
		Where("l.id_role = ? AND l.enabled = ? AND v.deleted = ?", roleID, true, false).
		Order("v.path ASC").
		Pluck("v.path", &paths).Error
	return paths, translate(err)
}
