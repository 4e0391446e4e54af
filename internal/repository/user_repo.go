package repository

import (
	"context"
	"time"

	"authcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines data access for User entities.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	// GetByID and GetByUsername return deleted users too; callers decide
	// what a deleted account may do. Role and Status are preloaded.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// LockByID takes a row lock on the user until the surrounding
	// transaction ends and returns the locked row.
	LockByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, at time.Time) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return translate(GetDB(ctx, r.db).Create(user).Error)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := GetDB(ctx, r.db).Preload("Role.Status").Preload("Status").First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := GetDB(ctx, r.db).Preload("Role.Status").Preload("Status").First(&user, "username = ?", username).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	res := GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).Update("password", hash)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) SetDeleted(ctx context.Context, id uuid.UUID, deleted bool, at time.Time) error {
	updates := map[string]interface{}{"deleted": deleted, "deleted_on": nil}
	if deleted {
		updates["deleted_on"] = at
	}
	res := GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
