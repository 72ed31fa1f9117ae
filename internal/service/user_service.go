package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edustack/campus-api/internal/authz"
	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.Identity, int, error)
	Create(ctx context.Context, identity *models.Identity) error
	Update(ctx context.Context, identity *models.Identity) error
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type identityFinder interface {
	FindIdentity(ctx context.Context, userID string) (*models.Identity, error)
	Decorate(identity *models.Identity)
}

// UserService handles account management. All target identities are resolved
// through the auth service so the system admin override is observed here too.
type UserService struct {
	users      userRepository
	identities identityFinder
	policy     *authz.Policy
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewUserService constructs the user management service.
func NewUserService(users userRepository, identities identityFinder, policy *authz.Policy, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:      users,
		identities: identities,
		policy:     policy,
		validator:  validate,
		logger:     logger,
	}
}

// List returns accounts matching the filter. Admin only.
func (s *UserService) List(ctx context.Context, actor *models.Identity, filter models.UserFilter) ([]models.Identity, *models.Pagination, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceUser, authz.Scope{}); err != nil {
		return nil, nil, err
	}

	identities, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list users")
	}
	for i := range identities {
		s.identities.Decorate(&identities[i])
	}

	return identities, &models.Pagination{
		Page:       normalizePage(filter.Page),
		PageSize:   normalizePageSize(filter.PageSize),
		TotalCount: total,
	}, nil
}

// Get returns a single account. Admins see anyone; others only themselves.
func (s *UserService) Get(ctx context.Context, actor *models.Identity, id string) (*models.Identity, error) {
	target, err := s.identities.FindIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceUser, authz.Scope{Target: target}); err != nil {
		return nil, err
	}
	return target, nil
}

// Create provisions a new account with an explicit role. Admin only.
func (s *UserService) Create(ctx context.Context, actor *models.Identity, req models.CreateUserRequest) (*models.Identity, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceUser, authz.Scope{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "user lookup failed")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "hash password")
	}

	identity := &models.Identity{
		Email:         email,
		PasswordHash:  string(hash),
		FullName:      req.FullName,
		Role:          req.Role,
		StudentNumber: req.StudentNumber,
		DepartmentID:  req.DepartmentID,
		Active:        true,
	}
	if err := s.users.Create(ctx, identity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create user")
	}
	s.identities.Decorate(identity)

	s.audit(ctx, actor.ID, models.AuditActionUserCreate, identity.ID, nil, nil)
	s.logger.Info("user created",
		zap.String("user_id", identity.ID),
		zap.String("role", string(identity.Role)),
		zap.String("created_by", actor.ID))
	return identity, nil
}

// Update applies partial profile changes. The role field is untouchable
// through this path.
func (s *UserService) Update(ctx context.Context, actor *models.Identity, id string, req models.UpdateUserRequest) (*models.Identity, error) {
	target, err := s.identities.FindIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceUser, authz.Scope{Target: target}); err != nil {
		return nil, err
	}

	if req.FullName != nil {
		target.FullName = *req.FullName
	}
	if req.StudentNumber != nil {
		target.StudentNumber = req.StudentNumber
	}
	if req.DepartmentID != nil {
		target.DepartmentID = req.DepartmentID
	}
	if req.Active != nil {
		target.Active = *req.Active
	}

	if err := s.users.Update(ctx, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update user")
	}

	s.audit(ctx, actor.ID, models.AuditActionUserUpdate, target.ID, nil, nil)
	return target, nil
}

// ChangeRole sets the stored role of another account. The policy refuses
// self-changes and any change to the system admin.
func (s *UserService) ChangeRole(ctx context.Context, actor *models.Identity, id string, req models.ChangeRoleRequest) (*models.Identity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	target, err := s.identities.FindIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceUserRole, authz.Scope{Target: target}); err != nil {
		return nil, err
	}

	oldRole := target.Role
	if err := s.users.UpdateRole(ctx, target.ID, req.Role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "change role")
	}
	target.Role = req.Role

	oldValues, _ := json.Marshal(map[string]models.UserRole{"role": oldRole})
	newValues, _ := json.Marshal(map[string]models.UserRole{"role": req.Role})
	s.audit(ctx, actor.ID, models.AuditActionRoleChange, target.ID, oldValues, newValues)
	s.logger.Info("role changed",
		zap.String("user_id", target.ID),
		zap.String("old_role", string(oldRole)),
		zap.String("new_role", string(req.Role)),
		zap.String("changed_by", actor.ID))
	return target, nil
}

// Delete deactivates an account. The record is kept so enrollments,
// submissions and audit entries stay attributable.
func (s *UserService) Delete(ctx context.Context, actor *models.Identity, id string) error {
	target, err := s.identities.FindIdentity(ctx, id)
	if err != nil {
		return err
	}
	if target.IsSystemAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "the system admin identity is protected")
	}
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceUser, authz.Scope{Target: target}); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, target.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "delete user")
	}

	s.audit(ctx, actor.ID, models.AuditActionUserDelete, target.ID, nil, nil)
	s.logger.Info("user deactivated",
		zap.String("user_id", target.ID),
		zap.String("deleted_by", actor.ID))
	return nil
}

func (s *UserService) audit(ctx context.Context, actorID, action, resourceID string, oldValues, newValues []byte) {
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "user",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}
	if err := s.users.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func normalizePageSize(size int) int {
	if size <= 0 || size > 100 {
		return 20
	}
	return size
}
