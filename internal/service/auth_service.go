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
	"authcore/pkg/jwt"
	"authcore/pkg/password"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	tokenTypeBearer = "bearer"

	// attempts to persist a new session when a concurrent login of the same
	// user wins the one-active-session index first
	maxSessionAttempts = 3
)

// --- DTOs ---

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	RoleName    string    `json:"role_name"`
}

type MeResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	RoleID   string   `json:"id_role,omitempty"`
	RoleName string   `json:"role_name"`
	Status   string   `json:"status"`
	Views    []string `json:"views"`
}

// Principal is an authenticated caller.
type Principal struct {
	User   *model.User
	Claims *jwt.Claims
	Token  string
}

// SessionNotifier is told when a user's sessions stop being valid so that
// live connections can be closed. except names a token that stays valid.
type SessionNotifier interface {
	SessionsRevoked(userID uuid.UUID, except, reason string)
}

// --- Interface ---

type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	// Authenticate turns a bearer token into a Principal. It fails with
	// ErrTokenMalformed, ErrTokenExpired, ErrUserNotFound,
	// ErrAccountDisabled or ErrTokenRevoked.
	Authenticate(ctx context.Context, token string) (*Principal, error)
	Logout(ctx context.Context, p *Principal) error
	RevokeUserSessions(ctx context.Context, actorID *uuid.UUID, userID uuid.UUID) (int64, error)
	Me(ctx context.Context, p *Principal) (*MeResponse, error)
}

// AuthDeps wires an AuthService.
type AuthDeps struct {
	Users       repository.UserRepository
	Tokens      repository.TokenRepository
	Permissions repository.PermissionRepository
	Audit       repository.AuditRepository
	Tx          repository.TransactionManager
	Codec       *jwt.Codec
	Hasher      *password.Hasher
	Notifier    SessionNotifier
	Metrics     *metrics.Metrics
	Logger      *logrus.Logger

	TokenTTL         time.Duration
	DisabledStatuses []string
	Now              func() time.Time
}

type authService struct {
	users    repository.UserRepository
	tokens   repository.TokenRepository
	perms    repository.PermissionRepository
	audit    repository.AuditRepository
	tx       repository.TransactionManager
	codec    *jwt.Codec
	hasher   *password.Hasher
	notifier SessionNotifier
	metrics  *metrics.Metrics
	log      *logrus.Logger

	ttl      time.Duration
	disabled model.DisabledSet
	now      func() time.Time
}

func NewAuthService(d AuthDeps) AuthService {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &authService{
		users:    d.Users,
		tokens:   d.Tokens,
		perms:    d.Permissions,
		audit:    d.Audit,
		tx:       d.Tx,
		codec:    d.Codec,
		hasher:   d.Hasher,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		log:      logger.OrStandard(d.Logger),
		ttl:      d.TokenTTL,
		disabled: model.NewDisabledSet(d.DisabledStatuses...),
		now:      now,
	}
}

// --- Implementation ---

func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Burn(req.Password)
			s.loginDenied(logrus.Fields{"username": req.Username}, "unknown_user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !s.hasher.Verify(req.Password, user.Password) {
		s.loginDenied(userFields(user), "bad_password")
		return nil, ErrInvalidCredentials
	}
	if reason := s.ineligible(user); reason != "" {
		s.loginDenied(userFields(user), reason)
		return nil, ErrAccountDisabled
	}

	token, expiresAt, err := s.codec.Issue(jwt.Claims{
		Username: user.Username,
		UserID:   user.ID.String(),
		RoleName: user.RoleName(),
	}, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	var superseded int64
	for attempt := 1; ; attempt++ {
		superseded, err = s.storeSession(ctx, user, token, expiresAt)
		if !errors.Is(err, repository.ErrDuplicate) || attempt == maxSessionAttempts {
			break
		}
		s.log.WithFields(userFields(user)).WithField("attempt", attempt).Warn("concurrent login collided, retrying")
	}
	if err != nil {
		if errors.Is(err, ErrAccountDisabled) {
			s.loginDenied(userFields(user), "deleted")
			return nil, err
		}
		if errors.Is(err, ErrInvalidCredentials) {
			s.loginDenied(userFields(user), "password_changed")
			return nil, err
		}
		s.metrics.ObserveLogin("error")
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.metrics.ObserveLogin("success")
	s.metrics.AddRevoked("superseded", superseded)
	if s.notifier != nil {
		s.notifier.SessionsRevoked(user.ID, token, "superseded")
	}
	s.log.WithFields(userFields(user)).WithField("superseded", superseded).Info("login succeeded")

	return &LoginResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   expiresAt,
		UserID:      user.ID.String(),
		Username:    user.Username,
		RoleName:    user.RoleName(),
	}, nil
}

// storeSession replaces the user's active session with token. The user row
// lock serializes concurrent logins of the same user, so the later commit
// is the one left active.
func (s *authService) storeSession(ctx context.Context, user *model.User, token string, expiresAt time.Time) (int64, error) {
	var superseded int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.users.LockByID(txCtx, user.ID)
		if err != nil {
			return err
		}
		if locked.Deleted {
			return ErrAccountDisabled
		}
		// the password was changed after it was verified
		if locked.Password != user.Password {
			return ErrInvalidCredentials
		}

		superseded, err = s.tokens.InvalidateAllActive(txCtx, user.ID)
		if err != nil {
			return err
		}

		issuedAt := s.now()
		if err := s.tokens.Create(txCtx, &model.Token{
			UserID:      user.ID,
			Token:       token,
			StatusToken: true,
			Expiration:  expiresAt,
			DateToken:   issuedAt,
		}); err != nil {
			return err
		}

		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     &user.ID,
			Action:     model.ActionLogin,
			EntityID:   user.ID.String(),
			EntityName: user.Username,
			Details:    auditDetails(map[string]interface{}{"superseded": superseded, "expires_at": expiresAt}),
			CreatedAt:  issuedAt,
		})
	})
	return superseded, err
}

func (s *authService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		s.tokenDenied(logrus.Fields{}, "missing")
		return nil, ErrTokenMalformed
	}

	claims, err := s.codec.Decode(token)
	if err != nil {
		reason, mapped := classifyTokenError(err)
		s.tokenDenied(logrus.Fields{}, reason)
		return nil, mapped
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		s.tokenDenied(logrus.Fields{"username": claims.Username}, "bad_subject")
		return nil, ErrTokenMalformed
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.tokenDenied(logrus.Fields{"user_id": claims.UserID, "username": claims.Username}, "unknown_user")
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if reason := s.ineligible(user); reason != "" {
		s.tokenDenied(userFields(user), reason)
		return nil, ErrAccountDisabled
	}

	active, err := s.tokens.IsActive(ctx, token, user.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if !active {
		s.tokenDenied(userFields(user), "revoked")
		return nil, ErrTokenRevoked
	}

	return &Principal{User: user, Claims: claims, Token: token}, nil
}

func (s *authService) Logout(ctx context.Context, p *Principal) error {
	var revoked int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		revoked, err = s.tokens.Revoke(txCtx, p.Token)
		if err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     &p.User.ID,
			Action:     model.ActionLogout,
			EntityID:   p.User.ID.String(),
			EntityName: p.User.Username,
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	s.metrics.AddRevoked("logout", revoked)
	if s.notifier != nil {
		s.notifier.SessionsRevoked(p.User.ID, "", "logout")
	}
	s.log.WithFields(userFields(p.User)).Info("logout")
	return nil
}

func (s *authService) RevokeUserSessions(ctx context.Context, actorID *uuid.UUID, userID uuid.UUID) (int64, error) {
	var revoked int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.LockByID(txCtx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		revoked, err = s.tokens.InvalidateAllActive(txCtx, userID)
		if err != nil {
			return err
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			UserID:     actorID,
			Action:     model.ActionRevokeSessions,
			EntityID:   userID.String(),
			EntityName: user.Username,
			Details:    auditDetails(map[string]interface{}{"revoked": revoked}),
			CreatedAt:  s.now(),
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.metrics.AddRevoked("forced", revoked)
	if s.notifier != nil {
		s.notifier.SessionsRevoked(userID, "", "revoked")
	}
	s.log.WithFields(logrus.Fields{"user_id": userID.String(), "revoked": revoked}).Info("sessions revoked")
	return revoked, nil
}

func (s *authService) Me(ctx context.Context, p *Principal) (*MeResponse, error) {
	u := p.User
	res := &MeResponse{
		ID:       u.ID.String(),
		Name:     u.Name,
		Username: u.Username,
		Email:    u.Email,
		RoleName: u.RoleName(),
		Views:    []string{},
	}
	if u.Status != nil {
		res.Status = u.Status.Name
	}
	if u.RoleID == nil || u.Role == nil || u.Role.Deleted || s.disabled.Contains(u.Role.Status) {
		return res, nil
	}

	res.RoleID = u.RoleID.String()
	paths, err := s.perms.ListEnabledPaths(ctx, *u.RoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	if paths != nil {
		res.Views = paths
	}
	return res, nil
}

// ineligible returns why user may not hold a session, or "" when it may.
func (s *authService) ineligible(user *model.User) string {
	if user.Deleted {
		return "deleted"
	}
	if s.disabled.Contains(user.Status) {
		return "status_" + user.Status.Name
	}
	return ""
}

func (s *authService) loginDenied(fields logrus.Fields, reason string) {
	s.metrics.ObserveLogin(reason)
	s.log.WithFields(fields).WithField("reason", reason).Warn("login denied")
}

func (s *authService) tokenDenied(fields logrus.Fields, reason string) {
	s.log.WithFields(fields).WithField("reason", reason).Warn("token rejected")
}

func classifyTokenError(err error) (string, error) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired", ErrTokenExpired
	case errors.Is(err, jwt.ErrInvalidSignature):
		return "bad_signature", ErrTokenMalformed
	default:
		return "malformed", ErrTokenMalformed
	}
}

func userFields(u *model.User) logrus.Fields {
	return logrus.Fields{"user_id": u.ID.String(), "username": u.Username}
}
