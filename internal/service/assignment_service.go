package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/authz"
	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

// AssignmentService manages coursework. Course staff create and edit;
// students only ever observe published assignments of their active
// enrollments.
type AssignmentService struct {
	assignments assignmentRepository
	courses     courseFinder
	policy      *authz.Policy
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(assignments assignmentRepository, courses courseFinder, policy *authz.Policy, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		assignments: assignments,
		courses:     courses,
		policy:      policy,
		validator:   validate,
		logger:      logger,
	}
}

// List returns assignments within the actor's scope.
func (s *AssignmentService) List(ctx context.Context, actor *models.Identity, filter models.AssignmentFilter) ([]models.Assignment, *models.Pagination, error) {
	rowFilter, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceAssignment, authz.Scope{CourseID: filter.CourseID})
	if err != nil {
		return nil, nil, err
	}
	filter.CourseIDs = rowFilter.CourseIDs
	filter.PublishedOnly = rowFilter.PublishedOnly

	assignments, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list assignments")
	}
	return assignments, &models.Pagination{
		Page:       normalizePage(filter.Page),
		PageSize:   normalizePageSize(filter.PageSize),
		TotalCount: total,
	}, nil
}

// Get returns a single assignment. A draft is indistinguishable from a
// missing assignment for students.
func (s *AssignmentService) Get(ctx context.Context, actor *models.Identity, id string) (*models.Assignment, error) {
	assignment, err := s.findAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	rowFilter, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceAssignment, authz.Scope{CourseID: assignment.CourseID})
	if err != nil {
		return nil, err
	}
	if rowFilter.PublishedOnly && assignment.Status != models.AssignmentStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	return assignment, nil
}

// Create adds an assignment on a course the actor teaches (or any course for
// admins). New assignments default to draft.
func (s *AssignmentService) Create(ctx context.Context, actor *models.Identity, req models.AssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceAssignment, authz.Scope{CourseID: req.CourseID}); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "course lookup failed")
	}

	instructorID := req.InstructorID
	if actor.Role == models.RoleInstructor || instructorID == "" {
		instructorID = actor.ID
	}

	assignment := &models.Assignment{
		CourseID:     req.CourseID,
		InstructorID: instructorID,
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      req.DueDate.UTC(),
		MaxPoints:    req.MaxPoints,
		AllowLate:    req.AllowLate,
		Status:       req.Status,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create assignment")
	}

	s.logger.Info("assignment created",
		zap.String("assignment_id", assignment.ID),
		zap.String("course_id", assignment.CourseID),
		zap.String("status", string(assignment.Status)))
	return assignment, nil
}

// Update applies partial changes to an assignment the actor may modify.
func (s *AssignmentService) Update(ctx context.Context, actor *models.Identity, id string, req models.UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment, err := s.findAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceAssignment, authz.Scope{CourseID: assignment.CourseID}); err != nil {
		return nil, err
	}

	if req.Title != nil {
		assignment.Title = *req.Title
	}
	if req.Description != nil {
		assignment.Description = *req.Description
	}
	if req.DueDate != nil {
		assignment.DueDate = req.DueDate.UTC()
	}
	if req.MaxPoints != nil {
		assignment.MaxPoints = *req.MaxPoints
	}
	if req.AllowLate != nil {
		assignment.AllowLate = *req.AllowLate
	}
	if req.Status != nil {
		assignment.Status = *req.Status
	}

	if err := s.assignments.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update assignment")
	}
	return assignment, nil
}

// Publish flips an assignment to the published status, making it visible to
// enrolled students.
func (s *AssignmentService) Publish(ctx context.Context, actor *models.Identity, id string) (*models.Assignment, error) {
	status := models.AssignmentStatusPublished
	return s.Update(ctx, actor, id, models.UpdateAssignmentRequest{Status: &status})
}

// Delete removes an assignment the actor may modify.
func (s *AssignmentService) Delete(ctx context.Context, actor *models.Identity, id string) error {
	assignment, err := s.findAssignment(ctx, id)
	if err != nil {
		return err
	}
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceAssignment, authz.Scope{CourseID: assignment.CourseID}); err != nil {
		return err
	}
	if err := s.assignments.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "delete assignment")
	}
	s.logger.Info("assignment deleted", zap.String("assignment_id", id))
	return nil
}

func (s *AssignmentService) findAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get assignment")
	}
	return assignment, nil
}
