package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/authz"
	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

type departmentRepository interface {
	List(ctx context.Context) ([]models.Department, error)
	FindByID(ctx context.Context, id string) (*models.Department, error)
	FindByCode(ctx context.Context, code string) (*models.Department, error)
	Create(ctx context.Context, department *models.Department) error
	Update(ctx context.Context, department *models.Department) error
	Delete(ctx context.Context, id string) error
}

// DepartmentService manages the department catalog. Reads are open to every
// authenticated role; writes are admin only.
type DepartmentService struct {
	departments departmentRepository
	policy      *authz.Policy
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewDepartmentService constructs the department service.
func NewDepartmentService(departments departmentRepository, policy *authz.Policy, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{
		departments: departments,
		policy:      policy,
		validator:   validate,
		logger:      logger,
	}
}

// List returns every department.
func (s *DepartmentService) List(ctx context.Context, actor *models.Identity) ([]models.Department, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceDepartment, authz.Scope{}); err != nil {
		return nil, err
	}
	departments, err := s.departments.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list departments")
	}
	return departments, nil
}

// Get returns a department by ID.
func (s *DepartmentService) Get(ctx context.Context, actor *models.Identity, id string) (*models.Department, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceDepartment, authz.Scope{}); err != nil {
		return nil, err
	}
	department, err := s.departments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get department")
	}
	return department, nil
}

// Create adds a department. The code is normalized to upper case and must be
// unique.
func (s *DepartmentService) Create(ctx context.Context, actor *models.Identity, req models.DepartmentRequest) (*models.Department, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceDepartment, authz.Scope{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureCodeFree(ctx, code, ""); err != nil {
		return nil, err
	}

	department := &models.Department{
		Name:        req.Name,
		Code:        code,
		Description: req.Description,
	}
	if err := s.departments.Create(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create department")
	}

	s.logger.Info("department created",
		zap.String("department_id", department.ID),
		zap.String("code", department.Code))
	return department, nil
}

// Update modifies a department; a changed code must remain unique.
func (s *DepartmentService) Update(ctx context.Context, actor *models.Identity, id string, req models.DepartmentRequest) (*models.Department, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceDepartment, authz.Scope{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	department, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code != department.Code {
		if err := s.ensureCodeFree(ctx, code, department.ID); err != nil {
			return nil, err
		}
	}

	department.Name = req.Name
	department.Code = code
	department.Description = req.Description
	if err := s.departments.Update(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update department")
	}
	return department, nil
}

// Delete removes a department.
func (s *DepartmentService) Delete(ctx context.Context, actor *models.Identity, id string) error {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceDepartment, authz.Scope{}); err != nil {
		return err
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.departments.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "delete department")
	}
	s.logger.Info("department deleted", zap.String("department_id", id))
	return nil
}

func (s *DepartmentService) ensureCodeFree(ctx context.Context, code, selfID string) error {
	existing, err := s.departments.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "department lookup failed")
	}
	if existing.ID == selfID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrConflict, "department code already in use")
}
