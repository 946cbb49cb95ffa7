package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fieldops-api/internal/dto"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/pkg/database"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

const (
	usersResource     = "users"
	maxUsersPageSize  = 100
	minPasswordLength = 6
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type sessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}

// UserService manages employee and moderator accounts.
type UserService struct {
	repo      userRepository
	sessions  sessionRevoker
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

func NewUserService(repo userRepository, sessions sessionRevoker, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, sessions: sessions, audit: audit, validator: validate, logger: logger}
}

// List pages through accounts, e.g. to pick a task assignee.
func (s *UserService) List(ctx context.Context, query dto.UserListQuery) ([]models.User, *models.Pagination, error) {
	filter := models.UserFilter{Active: query.Active, Search: strings.TrimSpace(query.Search)}
	if query.Role != "" {
		role := models.UserRole(strings.ToUpper(query.Role))
		if !role.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
		}
		filter.Role = &role
	}
	page, size, _ := models.NormalizePage(query.Page, query.PageSize, maxUsersPageSize)
	filter.Page, filter.PageSize = page, size

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create adds an account. actor is nil when invoked from the command line.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.FullName = strings.Join(strings.Fields(req.FullName), " ")
	req.Role = models.UserRole(strings.ToUpper(string(req.Role)))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid create user payload")
	}

	if _, err := s.repo.FindByUsername(ctx, req.Username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username uniqueness")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       true,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	emitAudit(ctx, s.audit, s.logger, actor, models.AuditActionUserCreate, usersResource, user.ID,
		map[string]interface{}{"username": user.Username, "role": user.Role})
	return user, nil
}

// SetPassword replaces a password and ends every open session of the account.
func (s *UserService) SetPassword(ctx context.Context, username, password string, actor *models.JWTClaims) error {
	if len(password) < minPasswordLength {
		return appErrors.Clone(appErrors.ErrValidation, "password must be at least 6 characters")
	}
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return storeError(err, "user not found", "failed to load user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	now := time.Now().UTC()
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash), now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	var revoked int64
	if s.sessions != nil {
		if revoked, err = s.sessions.RevokeAllForUser(ctx, user.ID, now); err != nil {
			s.logger.Warn("failed to end sessions after password change", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	emitAudit(ctx, s.audit, s.logger, actor, models.AuditActionPasswordChange, usersResource, user.ID,
		map[string]interface{}{"revoked_sessions": revoked})
	return nil
}
