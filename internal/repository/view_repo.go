package repository

import (
	"context"
	"time"

	"authcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ViewRepository stores the registry of protected resources.
type ViewRepository interface {
	Create(ctx context.Context, view *model.View) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.View, error)
	// GetActiveByPath and GetActiveByName ignore soft-deleted views.
	GetActiveByPath(ctx context.Context, path string) (*model.View, error)
	GetActiveByName(ctx context.Context, name string) (*model.View, error)
	List(ctx context.Context, includeDeleted bool, offset, limit int) ([]model.View, int64, error)
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
	SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, at time.Time) error
}

type viewRepository struct {
	db *gorm.DB
}

func NewViewRepository(db *gorm.DB) ViewRepository {
	return &viewRepository{db: db}
}

func (r *viewRepository) Create(ctx context.Context, view *model.View) error {
	return translate(GetDB(ctx, r.db).Create(view).Error)
}

func (r *viewRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.View, error) {
	var view model.View
	if err := GetDB(ctx, r.db).First(&view, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &view, nil
}

func (r *viewRepository) GetActiveByPath(ctx context.Context, path string) (*model.View, error) {
	var view model.View
	if err := GetDB(ctx, r.db).Where("path = ? AND deleted = ?", path, false).First(&view).Error; err != nil {
		return nil, translate(err)
	}
	return &view, nil
}

func (r *viewRepository) GetActiveByName(ctx context.Context, name string) (*model.View, error) {
	var view model.View
	if err := GetDB(ctx, r.db).Where("name = ? AND deleted = ?", name, false).First(&view).Error; err != nil {
		return nil, translate(err)
	}
	return &view, nil
}

func (r *viewRepository) List(ctx context.Context, includeDeleted bool, offset, limit int) ([]model.View, int64, error) {
	var views []model.View
	var total int64

	q := GetDB(ctx, r.db).Model(&model.View{})
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	if err := q.Order("path ASC").Offset(offset).Limit(limit).Find(&views).Error; err != nil {
		return nil, 0, translate(err)
	}
	return views, total, nil
}

func (r *viewRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := GetDB(ctx, r.db).Model(&model.View{}).Where("deleted = ?", false).Pluck("id", &ids).Error
	return ids, translate(err)
}

func (r *viewRepository) SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, at time.Time) error {
	updates := map[string]interface{}{"deleted": deleted, "deleted_on": nil}
	if deleted {
		updates["deleted_on"] = at
	}
	res := GetDB(ctx, r.db).Model(&model.View{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
