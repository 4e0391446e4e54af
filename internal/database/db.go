package database

import (
	"fmt"
	"time"

	"authcore/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// indexes that AutoMigrate cannot express. The first one is what keeps a
// user down to a single active session even if two logins race.
var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_tokens_one_active_per_user ON tokens (id_user) WHERE status_token`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_roles_active_name ON roles (name) WHERE NOT deleted`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_views_active_name ON views (name) WHERE NOT deleted`,
	`CREATE INDEX IF NOT EXISTS ix_tokens_expiration_active ON tokens (expiration) WHERE status_token`,
}

// NewConnection opens the pool and brings the schema up to date.
func NewConnection(dsn string, opts Options, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database schema is up to date")
	return db, nil
}

// newGormLogger sends gorm's warnings, errors and slow queries to log.
func newGormLogger(log *logrus.Logger) gormlogger.Interface {
	return gormlogger.New(log.WithField("component", "gorm"), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Migrate creates or updates the tables and partial indexes.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Status{},
		&model.Role{},
		&model.View{},
		&model.RoleViewLink{},
		&model.User{},
		&model.Token{},
		&model.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
