package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/campus-api/internal/models"
)

// CourseRepository handles persistence of courses and instructor assignments.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses filtered by the provided criteria. CourseIDs restricts
// rows to the caller's scope when set.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := `FROM courses c
LEFT JOIN departments d ON d.id = c.department_id
LEFT JOIN profiles p ON p.id = c.primary_instructor_id`
	var conditions []string
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("c.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("c.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Year != 0 {
		conditions = append(conditions, fmt.Sprintf("c.year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.CourseIDs != nil {
		conditions = append(conditions, inColumn("c.id", filter.CourseIDs, &args))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":       "c.code",
		"name":       "c.name",
		"year":       "c.year",
		"created_at": "c.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.name, c.code, c.description, c.credits, c.semester, c.year, c.department_id, c.primary_instructor_id, c.created_at, c.updated_at,
        d.name AS department_name, d.code AS department_code, p.full_name AS primary_instructor_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by its identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, code, description, credits, semester, year, department_id, primary_instructor_id, created_at, updated_at FROM courses WHERE id = $1 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, name, code, description, credits, semester, year, department_id, primary_instructor_id, created_at, updated_at)
        VALUES (:id, :name, :code, :description, :credits, :semester, :year, :department_id, :primary_instructor_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update updates mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, code = :code, description = :description, credits = :credits, semester = :semester, year = :year, department_id = :department_id, primary_instructor_id = :primary_instructor_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// AssignInstructor records a secondary instructor assignment. Re-assigning an
// already assigned instructor is a no-op.
func (r *CourseRepository) AssignInstructor(ctx context.Context, assignment *models.CourseInstructor) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_instructors (id, course_id, instructor_id, assigned_by, assigned_at)
        VALUES (:id, :course_id, :instructor_id, :assigned_by, :assigned_at)
        ON CONFLICT (course_id, instructor_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("assign instructor: %w", err)
	}
	return nil
}

// UnassignInstructor removes a secondary instructor assignment.
func (r *CourseRepository) UnassignInstructor(ctx context.Context, courseID, instructorID string) error {
	const query = `DELETE FROM course_instructors WHERE course_id = $1 AND instructor_id = $2`
	if _, err := r.db.ExecContext(ctx, query, courseID, instructorID); err != nil {
		return fmt.Errorf("unassign instructor: %w", err)
	}
	return nil
}

// ListInstructors returns all secondary instructor assignments for a course.
func (r *CourseRepository) ListInstructors(ctx context.Context, courseID string) ([]models.CourseInstructor, error) {
	const query = `SELECT id, course_id, instructor_id, assigned_by, assigned_at FROM course_instructors WHERE course_id = $1`
	var assignments []models.CourseInstructor
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list course instructors: %w", err)
	}
	return assignments, nil
}

// IsCourseInstructor reports whether the instructor is primary or secondary
// on the course.
func (r *CourseRepository) IsCourseInstructor(ctx context.Context, courseID, instructorID string) (bool, error) {
	const query = `SELECT 1 FROM courses c
        WHERE c.id = $1 AND (c.primary_instructor_id = $2
            OR EXISTS (SELECT 1 FROM course_instructors ci WHERE ci.course_id = c.id AND ci.instructor_id = $2))
        LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, instructorID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course instructor: %w", err)
	}
	return true, nil
}

// InstructorCourseIDs returns the IDs of every course the instructor is
// primary or secondary assigned to.
func (r *CourseRepository) InstructorCourseIDs(ctx context.Context, instructorID string) ([]string, error) {
	const query = `SELECT c.id FROM courses c
        WHERE c.primary_instructor_id = $1
        UNION
        SELECT ci.course_id FROM course_instructors ci WHERE ci.instructor_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, instructorID); err != nil {
		return nil, fmt.Errorf("list instructor course ids: %w", err)
	}
	return ids, nil
}
