package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authcore/internal/logger"
	"authcore/internal/metrics"
	"authcore/internal/model"
	"authcore/internal/repository"
	"authcore/pkg/password"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const minPasswordLen = 6

type ChangePasswordRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

// UserService covers the account changes that affect sessions. Every one of
// them ends the user's active session.
type UserService interface {
	ChangePassword(ctx context.Context, actor *uuid.UUID, id string, req ChangePasswordRequest) error
	DeleteUser(ctx context.Context, actor *uuid.UUID, id string) error
	RestoreUser(ctx context.Context, actor *uuid.UUID, id string) error
}

type userService struct {
	users    repository.UserRepository
	tokens   repository.TokenRepository
	audit    repository.AuditRepository
	tx       repository.TransactionManager
	hasher   *password.Hasher
	notifier SessionNotifier
	metrics  *metrics.Metrics
	log      *logrus.Logger
	now      func() time.Time
}

func NewUserService(d AdminDeps, hasher *password.Hasher, m *metrics.Metrics) UserService {
	return &userService{
		users:    d.Users,
		tokens:   d.Tokens,
		audit:    d.Audit,
		tx:       d.Tx,
		hasher:   hasher,
		notifier: d.Notifier,
		metrics:  m,
		log:      logger.OrStandard(d.Logger),
		now:      d.clock(),
	}
}

func (s *userService) ChangePassword(ctx context.Context, actor *uuid.UUID, id string, req ChangePasswordRequest) error {
	userID, err := parseID("user", id)
	if err != nil {
		return err
	}
	if len(req.Password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return notFound("user", err)
	}
	if s.hasher.Verify(req.Password, user.Password) {
		return fmt.Errorf("%w: new password must differ from the current one", ErrInvalidInput)
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var revoked int64
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// waits for a login of this user that is storing its session
		if _, err := s.users.LockByID(txCtx, userID); err != nil {
			return err
		}
		if err := s.users.UpdatePassword(txCtx, userID, hash); err != nil {
			return err
		}
		if revoked, err = s.tokens.InvalidateAllActive(txCtx, userID); err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actor,
			Action:     model.ActionChangePassword,
			EntityID:   userID.String(),
			EntityName: user.Username,
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		return wrapAdmin("change password", err)
	}

	s.sessionsEnded(userID, revoked, "password_changed")
	return nil
}

func (s *userService) DeleteUser(ctx context.Context, actor *uuid.UUID, id string) error {
	userID, err := parseID("user", id)
	if err != nil {
		return err
	}

	var revoked int64
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.LockByID(txCtx, userID)
		if err != nil {
			return err
		}
		if !user.Deleted {
			if err := s.users.SetDeleted(txCtx, userID, true, s.now()); err != nil {
				return err
			}
		}
		if revoked, err = s.tokens.InvalidateAllActive(txCtx, userID); err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actor,
			Action:     model.ActionDeleteUser,
			EntityID:   userID.String(),
			EntityName: user.Username,
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		return wrapAdmin("delete user", err)
	}

	s.sessionsEnded(userID, revoked, "account_deleted")
	return nil
}

func (s *userService) RestoreUser(ctx context.Context, actor *uuid.UUID, id string) error {
	userID, err := parseID("user", id)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.LockByID(txCtx, userID)
		if err != nil {
			return err
		}
		if !user.Deleted {
			return nil
		}
		if err := s.users.SetDeleted(txCtx, userID, false, s.now()); err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actor,
			Action:     model.ActionRestoreUser,
			EntityID:   userID.String(),
			EntityName: user.Username,
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: user", ErrNotFound)
		}
		return wrapAdmin("restore user", err)
	}
	return nil
}

func (s *userService) sessionsEnded(userID uuid.UUID, revoked int64, reason string) {
	s.metrics.AddRevoked(reason, revoked)
	if s.notifier != nil {
		s.notifier.SessionsRevoked(userID, "", reason)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID.String(), "revoked": revoked, "reason": reason}).Info("sessions ended")
}
