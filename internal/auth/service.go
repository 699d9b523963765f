package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/internal/users"
	pkgauth "github.com/nafsiapp/nafsi-backend/pkg/auth"
	"github.com/nafsiapp/nafsi-backend/pkg/auth/session"
	"github.com/nafsiapp/nafsi-backend/pkg/config"
	"github.com/nafsiapp/nafsi-backend/pkg/db"
	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
	"github.com/nafsiapp/nafsi-backend/pkg/security"
)

const uniqueUsernameIndex = "idx_users_username"

// sessionManager is the refresh session surface backed by Redis.
type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

// Service covers account registration and the token lifecycle.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, input LoginInput) (*TokenPair, error)
	Refresh(ctx context.Context, input RefreshInput) (*TokenPair, error)
	Logout(ctx context.Context, accessID string) error
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateFCMToken(ctx context.Context, userID uuid.UUID, token *string) error
}

type service struct {
	repo     users.Repository
	sessions sessionManager
	jwtCfg   config.JWTConfig
	pwCfg    config.PasswordConfig
	logg     *logger.Logger
	now      func() time.Time
}

// RegisterInput creates a new account.
type RegisterInput struct {
	Username     string  `validate:"required,min=3,max=64"`
	Password     string  `validate:"required,min=8"`
	FullName     string  `validate:"required"`
	Email        *string `validate:"omitempty,email"`
	MobileNumber *string
	Role         enums.UserRole `validate:"required"`
}

// LoginInput authenticates by username and password.
type LoginInput struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// RefreshInput rotates an expired access token using its refresh token.
type RefreshInput struct {
	AccessToken  string `validate:"required"`
	RefreshToken string `validate:"required"`
}

// TokenPair is the issued access and refresh token set.
type TokenPair struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"user"`
}

// NewService wires the auth service with its dependencies.
func NewService(
	repo users.Repository,
	sessions sessionManager,
	jwtCfg config.JWTConfig,
	pwCfg config.PasswordConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	return &service{
		repo:     repo,
		sessions: sessions,
		jwtCfg:   jwtCfg,
		pwCfg:    pwCfg,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))
	if len(username) < 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username must be at least 3 characters")
	}
	if len(input.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}
	if strings.TrimSpace(input.FullName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name required")
	}
	if !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	// Admin accounts are provisioned out of band, never self-registered.
	if input.Role.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot be self-registered")
	}

	hash, err := security.HashPassword(input.Password, s.pwCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{
		Username:     username,
		Email:        input.Email,
		MobileNumber: input.MobileNumber,
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: hash,
		Role:         input.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsUniqueViolation(err, uniqueUsernameIndex) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "username already taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	return user, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (*TokenPair, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "invalid username or password")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "invalid username or password")
	}

	return s.issue(ctx, user, session.NewAccessID())
}

// Refresh accepts the expired access token so the session key (jti) can be
// recovered without a database hit; the refresh token itself proves
// possession.
func (s *service) Refresh(ctx context.Context, input RefreshInput) (*TokenPair, error) {
	claims, err := pkgauth.ParseAccessTokenAllowExpired(s.jwtCfg, input.AccessToken)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "invalid access token")
	}

	newAccessID, newRefreshToken, err := s.sessions.Rotate(ctx, claims.ID, input.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "account no longer exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	accessToken, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         *user,
	}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthenticated, "session identity missing")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) UpdateFCMToken(ctx context.Context, userID uuid.UUID, token *string) error {
	if err := s.repo.UpdateFCMToken(ctx, userID, token); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update fcm token")
	}
	return nil
}

func (s *service) issue(ctx context.Context, user *models.User, accessID string) (*TokenPair, error) {
	accessToken, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	refreshToken, err := s.sessions.Generate(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         *user,
	}, nil
}
