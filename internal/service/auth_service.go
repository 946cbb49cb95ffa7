package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	applog "github.com/noah-isme/fieldops-api/pkg/logger"
)

const (
	authResource       = "auth"
	refreshTokenLength = 48
)

type credentialStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type sessionStore interface {
	Create(ctx context.Context, session *models.RefreshToken) error
	FindByDigest(ctx context.Context, digest string) (*models.RefreshToken, error)
	Rotate(ctx context.Context, currentID string, next *models.RefreshToken) error
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// AuthService issues and validates tokens for employees and moderators.
type AuthService struct {
	users     credentialStore
	sessions  sessionStore
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

func NewAuthService(users credentialStore, sessions sessionStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		audit:     audit,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login checks the password and opens a new session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid login payload")
	}

	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	now := s.now()
	session, raw, err := s.newSession(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}
	pair, err := s.pair(user, raw, now)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	emitAudit(ctx, s.audit, s.logger, principalOf(user), models.AuditActionLogin, authResource, session.ID, nil)
	return &models.LoginResponse{TokenPair: *pair, User: user.Info()}, nil
}

// RefreshToken rotates a session. Presenting a token that was already rotated means it leaked, so every
// session of its owner is revoked.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid refresh payload")
	}

	now := s.now()
	current, err := s.sessions.FindByDigest(ctx, digestToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if current.Revoked() {
		s.revokeEverything(ctx, current.UserID, now)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token was already used")
	}
	if !current.Usable(now) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token expired")
	}

	user, err := s.users.FindByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	next, raw, err := s.newSession(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Rotate(ctx, current.ID, next); err != nil {
		if errors.Is(err, repository.ErrSessionConsumed) {
			s.revokeEverything(ctx, user.ID, now)
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token was already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate session")
	}
	return s.pair(user, raw, now)
}

// Logout ends the session owning refreshToken. Only its owner may end it.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, principal *models.JWTClaims) error {
	if principal == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	session, err := s.sessions.FindByDigest(ctx, digestToken(refreshToken))
	if err != nil {
		return storeError(err, "refresh token not found", "failed to load session")
	}
	if session.UserID != principal.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if err := s.sessions.Revoke(ctx, session.ID, s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}
	emitAudit(ctx, s.audit, s.logger, principal, models.AuditActionLogout, authResource, session.ID, nil)
	return nil
}

// Me returns the stored profile of the authenticated principal.
func (s *AuthService) Me(ctx context.Context, principal *models.JWTClaims) (*models.UserInfo, error) {
	if principal == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing principal")
	}
	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		return nil, storeError(err, "user not found", "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

// ValidateToken parses an HS256 access token into its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, options...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown role in token")
	}
	return claims, nil
}

func (s *AuthService) newSession(ctx context.Context, userID string, now time.Time) (*models.RefreshToken, string, error) {
	raw, err := gonanoid.New(refreshTokenLength)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	session := &models.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		TokenDigest: digestToken(raw),
		ExpiresAt:   now.Add(s.config.RefreshTokenExpiry),
		CreatedAt:   now,
	}
	if client, ok := models.ClientInfoFrom(ctx); ok {
		session.IPAddress = client.IP
		session.UserAgent = client.UserAgent
	}
	return session, raw, nil
}

func (s *AuthService) pair(user *models.User, refreshToken string, now time.Time) (*models.TokenPair, error) {
	expiresAt := now.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}
	return &models.TokenPair{
		AccessToken:  signed,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *AuthService) revokeEverything(ctx context.Context, userID string, now time.Time) {
	log := applog.From(ctx, s.logger)
	revoked, err := s.sessions.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		log.Error("failed to revoke sessions after token reuse", zap.String("user_id", userID), zap.Error(err))
		return
	}
	log.Warn("refresh token reuse detected", zap.String("user_id", userID), zap.Int64("revoked", revoked))
	emitAudit(ctx, s.audit, s.logger, &models.JWTClaims{UserID: userID}, models.AuditActionSessionReuse, authResource, userID,
		map[string]interface{}{"revoked_sessions": revoked})
}

func digestToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func principalOf(user *models.User) *models.JWTClaims {
	return &models.JWTClaims{UserID: user.ID, Username: user.Username, Role: user.Role, FullName: user.FullName}
}
