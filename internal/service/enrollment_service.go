package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/authz"
	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Upsert(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	SetFinalGrade(ctx context.Context, id string, grade float64) error
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// EnrollmentService manages course registrations. Only admins enroll
// students; instructors and students get filtered read access.
type EnrollmentService struct {
	enrollments enrollmentRepository
	courses     courseFinder
	users       instructorDirectory
	audits      auditWriter
	policy      *authz.Policy
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(
	enrollments enrollmentRepository,
	courses courseFinder,
	users instructorDirectory,
	audits auditWriter,
	policy *authz.Policy,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		courses:     courses,
		users:       users,
		audits:      audits,
		policy:      policy,
		validator:   validate,
		logger:      logger,
	}
}

// List returns enrollments within the actor's scope: students see their own
// rows, instructors the rows of their courses, admins everything.
func (s *EnrollmentService) List(ctx context.Context, actor *models.Identity, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	rowFilter, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceEnrollment, authz.Scope{})
	if err != nil {
		return nil, nil, err
	}
	if rowFilter.StudentID != "" {
		filter.StudentID = rowFilter.StudentID
	}
	if rowFilter.CourseIDs != nil {
		filter.CourseIDs = rowFilter.CourseIDs
	}

	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list enrollments")
	}
	return enrollments, &models.Pagination{
		Page:       normalizePage(filter.Page),
		PageSize:   normalizePageSize(filter.PageSize),
		TotalCount: total,
	}, nil
}

// Enroll registers one student into the given courses. Existing pairs are
// reactivated rather than duplicated, so retries and double-submits converge
// on the same rows.
func (s *EnrollmentService) Enroll(ctx context.Context, actor *models.Identity, req models.EnrollRequest) ([]models.Enrollment, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceEnrollment, authz.Scope{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "student lookup failed")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target user is not a student")
	}

	// Validate every course before writing anything.
	for _, courseID := range req.CourseIDs {
		if _, err := s.courses.FindByID(ctx, courseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s not found", courseID))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "course lookup failed")
		}
	}

	enrollments := make([]models.Enrollment, 0, len(req.CourseIDs))
	for _, courseID := range req.CourseIDs {
		enrollment := models.Enrollment{
			StudentID:  student.ID,
			CourseID:   courseID,
			Status:     models.EnrollmentStatusActive,
			EnrolledBy: actor.ID,
		}
		stored, err := s.enrollments.Upsert(ctx, &enrollment)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enroll student")
		}
		enrollments = append(enrollments, *stored)
	}

	s.audit(ctx, actor.ID, models.AuditActionEnroll, student.ID, req.CourseIDs)
	s.logger.Info("student enrolled",
		zap.String("student_id", student.ID),
		zap.Int("courses", len(req.CourseIDs)),
		zap.String("enrolled_by", actor.ID))
	return enrollments, nil
}

// UpdateStatus moves an enrollment through its lifecycle. Admin only.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, actor *models.Identity, id string, req models.EnrollmentStatusRequest) (*models.Enrollment, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceEnrollment, authz.Scope{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	enrollment, err := s.findEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.enrollments.UpdateStatus(ctx, enrollment.ID, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update enrollment status")
	}
	enrollment.Status = req.Status
	return enrollment, nil
}

// SetFinalGrade records a final course grade on an enrollment. Allowed for
// admins and for instructors of the enrollment's course.
func (s *EnrollmentService) SetFinalGrade(ctx context.Context, actor *models.Identity, id string, req models.FinalGradeRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	enrollment, err := s.findEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceGrade, authz.Scope{CourseID: enrollment.CourseID}); err != nil {
		return nil, err
	}

	grade := *req.FinalGrade
	if grade < 0 || grade > 100 {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, "final grade must be between 0 and 100")
	}

	if err := s.enrollments.SetFinalGrade(ctx, enrollment.ID, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "set final grade")
	}
	enrollment.FinalGrade = &grade

	s.audit(ctx, actor.ID, models.AuditActionFinalGrade, enrollment.ID, grade)
	return enrollment, nil
}

func (s *EnrollmentService) findEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) audit(ctx context.Context, actorID, action, resourceID string, newValues interface{}) {
	payload, _ := json.Marshal(newValues)
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "enrollment",
		ResourceID: &resourceID,
		NewValues:  payload,
	}
	if err := s.audits.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
