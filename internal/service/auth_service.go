package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/pkg/config"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthService issues and verifies access tokens and resolves the acting
// identity for each request. The configured system admin email is applied
// here and nowhere else: any identity resolved through this service with a
// matching email is forced to the admin role before anything observes it.
type AuthService struct {
	users     authUserRepository
	validator *validator.Validate
	logger    *zap.Logger
	cfg       config.AuthConfig
}

// NewAuthService constructs the authentication service.
func NewAuthService(users authUserRepository, validate *validator.Validate, logger *zap.Logger, cfg config.AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:     users,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Login authenticates credentials and returns a signed access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	identity, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "login lookup failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if !identity.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	s.decorate(identity)

	token, issuedAt, err := s.IssueToken(identity.ID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, identity.ID, models.AuditActionLogin, "auth", nil, req.IP, req.UserAgent)
	s.logger.Info("user logged in",
		zap.String("user_id", identity.ID),
		zap.String("role", string(identity.Role)))

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.cfg.TokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User:        userInfo(identity),
	}, nil
}

// Signup registers a new student account and logs it in.
func (s *AuthService) Signup(ctx context.Context, req models.SignupRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signup payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "signup lookup failed")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "hash password")
	}

	identity := &models.Identity{
		Email:         email,
		PasswordHash:  string(hash),
		FullName:      req.FullName,
		Role:          models.RoleStudent,
		StudentNumber: req.StudentNumber,
		DepartmentID:  req.DepartmentID,
		Active:        true,
	}
	if err := s.users.Create(ctx, identity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create account")
	}

	s.decorate(identity)

	token, issuedAt, err := s.IssueToken(identity.ID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, identity.ID, models.AuditActionSignup, "auth", nil, req.IP, req.UserAgent)
	s.logger.Info("user signed up", zap.String("user_id", identity.ID))

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.cfg.TokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User:        userInfo(identity),
	}, nil
}

// IssueToken signs an access token carrying only the user ID and time
// claims. The role is never embedded; it is re-read on every request.
func (s *AuthService) IssueToken(userID string) (string, time.Time, error) {
	now := time.Now().UTC()
	claims := models.TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.TokenSecret))
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign token")
	}
	return signed, now, nil
}

// VerifyToken validates the token signature and time claims. Expired tokens
// surface as TOKEN_EXPIRED so clients can tell them apart from garbage.
func (s *AuthService) VerifyToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.TokenSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.ErrTokenExpired
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	if !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

// ResolveIdentity loads the current identity for a verified token. A deleted
// or unknown user maps to 401, an inactive one to 403; both take effect on
// the very next request after the change.
func (s *AuthService) ResolveIdentity(ctx context.Context, userID string) (*models.Identity, error) {
	identity, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolve identity")
	}
	if !identity.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	s.decorate(identity)
	return identity, nil
}

// FindIdentity loads an identity for management operations, with not-found
// semantics instead of session semantics.
func (s *AuthService) FindIdentity(ctx context.Context, userID string) (*models.Identity, error) {
	identity, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "find identity")
	}
	s.decorate(identity)
	return identity, nil
}

// Decorate applies the system admin override to an identity loaded outside
// this service.
func (s *AuthService) Decorate(identity *models.Identity) {
	s.decorate(identity)
}

func (s *AuthService) decorate(identity *models.Identity) {
	if identity == nil {
		return
	}
	if s.cfg.SystemAdminEmail != "" && strings.EqualFold(identity.Email, s.cfg.SystemAdminEmail) {
		identity.Role = models.RoleAdmin
		identity.IsSystemAdmin = true
	}
}

func (s *AuthService) audit(ctx context.Context, userID, action, resource string, resourceID *string, ip, userAgent string) {
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := s.users.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func userInfo(identity *models.Identity) models.UserInfo {
	return models.UserInfo{
		ID:       identity.ID,
		Email:    identity.Email,
		FullName: identity.FullName,
		Role:     identity.Role,
	}
}
