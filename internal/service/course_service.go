package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/authz"
	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/internal/repository"
	"github.com/edustack/campus-api/pkg/config"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	AssignInstructor(ctx context.Context, assignment *models.CourseInstructor) error
	UnassignInstructor(ctx context.Context, courseID, instructorID string) error
	ListInstructors(ctx context.Context, courseID string) ([]models.CourseInstructor, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheMetrics interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordDBQuery(operation string, duration time.Duration)
}

type instructorDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Identity, error)
}

type cachedCourseList struct {
	Courses []models.CourseDetail `json:"courses"`
	Total   int                   `json:"total"`
}

// CourseService manages the course catalog. Unscoped catalog listings are
// served through the redis cache; any course write invalidates it.
type CourseService struct {
	courses     courseRepository
	departments departmentRepository
	users       instructorDirectory
	policy      *authz.Policy
	cache       catalogCache
	metrics     cacheMetrics
	validator   *validator.Validate
	logger      *zap.Logger
	catalogCfg  config.CatalogConfig
}

// NewCourseService constructs the course service. metrics may be nil.
func NewCourseService(
	courses courseRepository,
	departments departmentRepository,
	users instructorDirectory,
	policy *authz.Policy,
	cache catalogCache,
	metrics cacheMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
	catalogCfg config.CatalogConfig,
) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		courses:     courses,
		departments: departments,
		users:       users,
		policy:      policy,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		catalogCfg:  catalogCfg,
	}
}

// List returns courses visible to the actor: admins see everything,
// instructors their assigned courses, students their active enrollments.
func (s *CourseService) List(ctx context.Context, actor *models.Identity, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	rowFilter, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceCourse, authz.Scope{})
	if err != nil {
		return nil, nil, err
	}
	filter.CourseIDs = rowFilter.CourseIDs

	pagination := &models.Pagination{
		Page:     normalizePage(filter.Page),
		PageSize: normalizePageSize(filter.PageSize),
	}

	// Only unscoped listings are cacheable; scoped ones differ per caller.
	cacheable := s.catalogCfg.CacheEnabled && s.cache != nil && filter.CourseIDs == nil
	cacheKey := s.listCacheKey(filter)
	if cacheable {
		var cached cachedCourseList
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.recordCacheHit()
			pagination.TotalCount = cached.Total
			return cached.Courses, pagination, nil
		} else if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn("course cache read failed", zap.Error(err))
		}
		s.recordCacheMiss()
	}

	started := time.Now()
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list courses")
	}
	s.recordDBQuery("course_list", time.Since(started))
	pagination.TotalCount = total

	if cacheable {
		if err := s.cache.Set(ctx, cacheKey, cachedCourseList{Courses: courses, Total: total}, s.catalogCfg.CacheTTL); err != nil {
			s.logger.Warn("course cache write failed", zap.Error(err))
		}
	}
	return courses, pagination, nil
}

// Get returns a course the actor may see.
func (s *CourseService) Get(ctx context.Context, actor *models.Identity, id string) (*models.Course, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceCourse, authz.Scope{CourseID: id}); err != nil {
		return nil, err
	}
	return s.findCourse(ctx, id)
}

// Create adds a course. Admin only.
func (s *CourseService) Create(ctx context.Context, actor *models.Identity, req models.CourseRequest) (*models.Course, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceCourse, authz.Scope{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := s.checkReferences(ctx, req.DepartmentID, req.PrimaryInstructorID); err != nil {
		return nil, err
	}

	course := &models.Course{
		Name:                req.Name,
		Code:                strings.ToUpper(strings.TrimSpace(req.Code)),
		Description:         req.Description,
		Credits:             req.Credits,
		Semester:            req.Semester,
		Year:                req.Year,
		DepartmentID:        req.DepartmentID,
		PrimaryInstructorID: req.PrimaryInstructorID,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create course")
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("course created",
		zap.String("course_id", course.ID),
		zap.String("code", course.Code))
	return course, nil
}

// Update modifies a course. Admin only.
func (s *CourseService) Update(ctx context.Context, actor *models.Identity, id string, req models.CourseRequest) (*models.Course, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceCourse, authz.Scope{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, req.DepartmentID, req.PrimaryInstructorID); err != nil {
		return nil, err
	}

	course.Name = req.Name
	course.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	course.Description = req.Description
	course.Credits = req.Credits
	course.Semester = req.Semester
	course.Year = req.Year
	course.DepartmentID = req.DepartmentID
	course.PrimaryInstructorID = req.PrimaryInstructorID
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update course")
	}

	s.invalidateCatalog(ctx)
	return course, nil
}

// Delete removes a course. Admin only.
func (s *CourseService) Delete(ctx context.Context, actor *models.Identity, id string) error {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceCourse, authz.Scope{}); err != nil {
		return err
	}
	if _, err := s.findCourse(ctx, id); err != nil {
		return err
	}
	if err := s.courses.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "delete course")
	}
	s.invalidateCatalog(ctx)
	s.logger.Info("course deleted", zap.String("course_id", id))
	return nil
}

// AssignInstructor adds a secondary instructor to a course. Admin only,
// idempotent.
func (s *CourseService) AssignInstructor(ctx context.Context, actor *models.Identity, courseID, instructorID string) (*models.CourseInstructor, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceCourse, authz.Scope{CourseID: courseID}); err != nil {
		return nil, err
	}
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	if err := s.requireInstructor(ctx, instructorID); err != nil {
		return nil, err
	}

	assignment := &models.CourseInstructor{
		CourseID:     courseID,
		InstructorID: instructorID,
		AssignedBy:   actor.ID,
	}
	if err := s.courses.AssignInstructor(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "assign instructor")
	}
	return assignment, nil
}

// UnassignInstructor removes a secondary instructor from a course. Admin only.
func (s *CourseService) UnassignInstructor(ctx context.Context, actor *models.Identity, courseID, instructorID string) error {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceCourse, authz.Scope{CourseID: courseID}); err != nil {
		return err
	}
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return err
	}
	if err := s.courses.UnassignInstructor(ctx, courseID, instructorID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unassign instructor")
	}
	return nil
}

// ListInstructors returns the secondary instructor assignments of a course
// the actor may see.
func (s *CourseService) ListInstructors(ctx context.Context, actor *models.Identity, courseID string) ([]models.CourseInstructor, error) {
	if _, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceCourse, authz.Scope{CourseID: courseID}); err != nil {
		return nil, err
	}
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	assignments, err := s.courses.ListInstructors(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list instructors")
	}
	return assignments, nil
}

func (s *CourseService) findCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get course")
	}
	return course, nil
}

func (s *CourseService) checkReferences(ctx context.Context, departmentID string, primaryInstructorID *string) error {
	if _, err := s.departments.FindByID(ctx, departmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown department")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "department lookup failed")
	}
	if primaryInstructorID != nil {
		if err := s.requireInstructor(ctx, *primaryInstructorID); err != nil {
			return err
		}
	}
	return nil
}

func (s *CourseService) requireInstructor(ctx context.Context, userID string) error {
	identity, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown instructor")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "instructor lookup failed")
	}
	if identity.Role != models.RoleInstructor {
		return appErrors.Clone(appErrors.ErrValidation, "user is not an instructor")
	}
	return nil
}

func (s *CourseService) listCacheKey(filter models.CourseFilter) string {
	return fmt.Sprintf("courses:list:%s:%s:%d:%d:%d:%s:%s",
		filter.DepartmentID, filter.Semester, filter.Year,
		normalizePage(filter.Page), normalizePageSize(filter.PageSize),
		filter.SortBy, filter.SortOrder)
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "courses:list:*"); err != nil {
		s.logger.Warn("course cache invalidation failed", zap.Error(err))
	}
}

func (s *CourseService) recordCacheHit() {
	if s.metrics != nil {
		s.metrics.RecordCacheHit()
	}
}

func (s *CourseService) recordCacheMiss() {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}
}

func (s *CourseService) recordDBQuery(operation string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, elapsed)
	}
}
