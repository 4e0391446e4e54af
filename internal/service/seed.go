package service

import (
	"context"
	"errors"
	"fmt"

	"authcore/internal/logger"
	"authcore/internal/model"
	"authcore/internal/repository"
	"authcore/pkg/password"

	"github.com/sirupsen/logrus"
)

const AdministratorRole = "Administrator"

// AdminView is a resource the engine itself exposes and protects.
type AdminView struct {
	Name string
	Path string
}

// SeedAdmin is the optional bootstrap account.
type SeedAdmin struct {
	Username string
	Email    string
	Password string
}

// Seeder creates the statuses, admin views and the Administrator role. It is
// safe to run on every start.
type Seeder struct {
	deps   AdminDeps
	hasher *password.Hasher
	log    *logrus.Logger
}

func NewSeeder(d AdminDeps, hasher *password.Hasher) *Seeder {
	return &Seeder{deps: d, hasher: hasher, log: logger.OrStandard(d.Logger)}
}

func (s *Seeder) Seed(ctx context.Context, views []AdminView, admin SeedAdmin) error {
	if err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.seed(txCtx, views, admin)
	}); err != nil {
		return err
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.InvalidateAll(ctx); err != nil {
			s.log.WithError(err).Warn("permission cache invalidation failed")
		}
	}
	return nil
}

func (s *Seeder) seed(txCtx context.Context, views []AdminView, admin SeedAdmin) error {
	d := s.deps
	active, err := d.Statuses.Ensure(txCtx, model.StatusActive, "May log in")
	if err != nil {
		return fmt.Errorf("failed to seed status: %w", err)
	}
	for _, name := range []string{model.StatusInactive, model.StatusSuspended} {
		if _, err := d.Statuses.Ensure(txCtx, name, "Blocked from logging in"); err != nil {
			return fmt.Errorf("failed to seed status %q: %w", name, err)
		}
	}

	for _, v := range views {
		path := NormalizePath(v.Path)
		if _, err := d.Views.GetActiveByPath(txCtx, path); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := d.Views.Create(txCtx, &model.View{Name: v.Name, Path: path, StatusID: &active.ID}); err != nil {
			return fmt.Errorf("failed to seed view %q: %w", path, err)
		}
	}

	role, err := d.Roles.GetActiveByName(txCtx, AdministratorRole)
	if errors.Is(err, repository.ErrNotFound) {
		role = &model.Role{Name: AdministratorRole, Description: "Full access to every registered view", IsSystem: true, StatusID: &active.ID}
		if err := d.Roles.Create(txCtx, role); err != nil {
			return fmt.Errorf("failed to seed administrator role: %w", err)
		}
	} else if err != nil {
		return err
	}

	viewIDs, err := d.Views.ListActiveIDs(txCtx)
	if err != nil {
		return err
	}
	links := make([]model.RoleViewLink, 0, len(viewIDs))
	for _, id := range viewIDs {
		links = append(links, model.RoleViewLink{RoleID: role.ID, ViewID: id, Enabled: true})
	}
	if err := d.Permissions.CreateLinks(txCtx, links); err != nil {
		return fmt.Errorf("failed to seed administrator links: %w", err)
	}

	if admin.Username == "" || admin.Password == "" {
		return nil
	}
	if _, err := d.Users.GetByUsername(txCtx, admin.Username); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	hash, err := s.hasher.Hash(admin.Password)
	if err != nil {
		return err
	}
	email := admin.Email
	if email == "" {
		email = admin.Username + "@localhost"
	}
	if err := d.Users.Create(txCtx, &model.User{
		Name:     admin.Username,
		Username: admin.Username,
		Email:    email,
		Password: hash,
		RoleID:   &role.ID,
		StatusID: &active.ID,
	}); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	s.log.WithField("username", admin.Username).Info("seeded admin user")
	return nil
}
