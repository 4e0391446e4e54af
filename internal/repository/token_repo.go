package repository

import (
	"context"
	"time"

	"authcore/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenRepository is the session store: one row per issued access token.
type TokenRepository interface {
	// Create inserts a new token row. It returns ErrDuplicate when the user
	// already has an active row.
	Create(ctx context.Context, token *model.Token) error
	// InvalidateAllActive marks every active row of the user inactive and
	// returns how many rows changed.
	InvalidateAllActive(ctx context.Context, userID uuid.UUID) (int64, error)
	// IsActive reports whether the exact token string belongs to the user,
	// is marked active, and has not yet reached its expiration at now.
	IsActive(ctx context.Context, token string, userID uuid.UUID, now time.Time) (bool, error)
	// Revoke marks one token inactive. Revoking an unknown or already
	// inactive token is not an error.
	Revoke(ctx context.Context, token string) (int64, error)
	// InvalidateExpired marks active rows whose expiration has passed inactive.
	InvalidateExpired(ctx context.Context, now time.Time) (int64, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]model.Token, error)
}

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(ctx context.Context, token *model.Token) error {
	return translate(GetDB(ctx, r.db).Create(token).Error)
}

func (r *tokenRepository) InvalidateAllActive(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Token{}).
		Where("id_user = ? AND status_token = ?", userID, true).
		Update("status_token", false)
	return res.RowsAffected, translate(res.Error)
}

func (r *tokenRepository) IsActive(ctx context.Context, token string, userID uuid.UUID, now time.Time) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Token{}).
		Where("token = ? AND id_user = ? AND status_token = ? AND expiration > ?", token, userID, true, now).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (r *tokenRepository) Revoke(ctx context.Context, token string) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Token{}).
		Where("token = ? AND status_token = ?", token, true).
		Update("status_token", false)
	return res.RowsAffected, translate(res.Error)
}

func (r *tokenRepository) InvalidateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Token{}).
		Where("status_token = ? AND expiration <= ?", true, now).
		Update("status_token", false)
	return res.RowsAffected, translate(res.Error)
}

func (r *tokenRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]model.Token, error) {
	var tokens []model.Token
	err := GetDB(ctx, r.db).
		Where("id_user = ? AND status_token = ?", userID, true).
		Order("date_token desc").
		Find(&tokens).Error
	return tokens, translate(err)
}
