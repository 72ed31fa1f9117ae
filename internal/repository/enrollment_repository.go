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

// EnrollmentRepository handles persistence of course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// inColumn renders "col IN ($n..$m)" appending values to args. An empty id
// list renders a FALSE condition so a restricted-to-nothing scope matches
// zero rows instead of all rows.
func inColumn(column string, ids []string, args *[]interface{}) string {
	if len(ids) == 0 {
		return "1=0"
	}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", len(*args)+1)
		*args = append(*args, id)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM course_enrollments e
LEFT JOIN profiles s ON s.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.CourseIDs != nil {
		conditions = append(conditions, inColumn("e.course_id", filter.CourseIDs, &args))
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
		"course_name":  "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.status, e.enrolled_by, e.enrolled_at, e.final_grade,
        s.full_name AS student_name, c.name AS course_name, c.code AS course_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, status, enrolled_by, enrolled_at, final_grade FROM course_enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByStudentAndCourse returns the enrollment row for a pair if present.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, status, enrolled_by, enrolled_at, final_grade FROM course_enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Upsert inserts an enrollment or reactivates the existing row for the
// (student_id, course_id) pair. The unique constraint settles concurrent
// enrollments for the same pair; there is no check-then-write. The stored row
// is scanned back so a conflicting insert returns the existing row's ID, not
// the freshly generated one.
func (r *EnrollmentRepository) Upsert(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO course_enrollments (id, student_id, course_id, status, enrolled_by, enrolled_at, final_grade)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (student_id, course_id)
        DO UPDATE SET status = EXCLUDED.status, enrolled_by = EXCLUDED.enrolled_by
        RETURNING id, student_id, course_id, status, enrolled_by, enrolled_at, final_grade`
	var stored models.Enrollment
	if err := r.db.GetContext(ctx, &stored, query,
		enrollment.ID, enrollment.StudentID, enrollment.CourseID, enrollment.Status,
		enrollment.EnrolledBy, enrollment.EnrolledAt, enrollment.FinalGrade); err != nil {
		return nil, fmt.Errorf("upsert enrollment: %w", err)
	}
	return &stored, nil
}

// UpdateStatus updates the status of an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE course_enrollments SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// SetFinalGrade records the final grade for an enrollment.
func (r *EnrollmentRepository) SetFinalGrade(ctx context.Context, id string, grade float64) error {
	const query = `UPDATE course_enrollments SET final_grade = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade); err != nil {
		return fmt.Errorf("set final grade: %w", err)
	}
	return nil
}

// IsActivelyEnrolled reports whether a student has an active enrollment in
// the course.
func (r *EnrollmentRepository) IsActivelyEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM course_enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// StudentActiveCourseIDs returns the IDs of courses the student is actively
// enrolled in.
func (r *EnrollmentRepository) StudentActiveCourseIDs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT course_id FROM course_enrollments WHERE student_id = $1 AND status = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list student course ids: %w", err)
	}
	return ids, nil
}

// ListActiveByCourse returns active enrollments for a course.
func (r *EnrollmentRepository) ListActiveByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.status, e.enrolled_by, e.enrolled_at, e.final_grade,
        s.full_name AS student_name, c.name AS course_name, c.code AS course_code
        FROM course_enrollments e
        LEFT JOIN profiles s ON s.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.course_id = $1 AND e.status = $2
        ORDER BY s.full_name ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}
