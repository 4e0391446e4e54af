package repository

import (
	"context"

	"authcore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatusRepository interface {
	// Ensure creates the named status if it does not exist and returns it.
	Ensure(ctx context.Context, name, description string) (*model.Status, error)
}

type statusRepository struct {
	db *gorm.DB
}

func NewStatusRepository(db *gorm.DB) StatusRepository {
	return &statusRepository{db: db}
}

func (r *statusRepository) Ensure(ctx context.Context, name, description string) (*model.Status, error) {
	db := GetDB(ctx, r.db)
	status := model.Status{Name: name, Description: description}
	if err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).Create(&status).Error; err != nil {
		return nil, translate(err)
	}
	var stored model.Status
	if err := db.First(&stored, "name = ?", name).Error; err != nil {
		return nil, translate(err)
	}
	return &stored, nil
}
