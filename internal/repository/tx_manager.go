package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

// TransactionManager runs work in one database transaction. Repositories
// pick the transaction up from the context through GetDB.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db   *gorm.DB
	opts *sql.TxOptions
}

// NewTransactionManager returns a manager whose transactions run at READ
// COMMITTED. Login correctness relies on row locks, not on isolation level.
func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// RunInTx commits when fn returns nil and rolls back otherwise. Calls nested
// inside an open transaction join it.
func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		return fn(txCtx)
	}, t.opts)
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey).(*gorm.DB)
	return ok
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
