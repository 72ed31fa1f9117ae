package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edustack/campus-api/internal/models"
)

// SubmissionRepository handles persistence of submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `s.id, s.assignment_id, s.student_id, s.file_name, s.file_path, s.file_size, s.content_type, s.submitted_at, s.is_late, s.grade, s.feedback, s.graded_at, s.graded_by`

// List returns submissions filtered by the provided criteria.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	base := `FROM submissions s
LEFT JOIN profiles p ON p.id = s.student_id
LEFT JOIN assignments a ON a.id = s.assignment_id`
	var conditions []string
	var args []interface{}

	if filter.AssignmentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.assignment_id = $%d", len(args)+1))
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseIDs != nil {
		conditions = append(conditions, inColumn("a.course_id", filter.CourseIDs, &args))
	}
	if filter.Graded != nil {
		if *filter.Graded {
			conditions = append(conditions, "s.grade IS NOT NULL")
		} else {
			conditions = append(conditions, "s.grade IS NULL")
		}
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT %s, p.full_name AS student_name, a.title AS assignment_title, a.max_points AS max_points
        %s ORDER BY s.submitted_at DESC LIMIT %d OFFSET %d`, submissionColumns, base+clause, size, offset)

	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return submissions, total, nil
}

// FindByID returns a submission by its identifier.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, file_name, file_path, file_size, content_type, submitted_at, is_late, grade, feedback, graded_at, graded_by FROM submissions WHERE id = $1 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by id: %w", err)
	}
	return &submission, nil
}

// FindByAssignmentAndStudent returns the submission for a pair if present.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, file_name, file_path, file_size, content_type, submitted_at, is_late, grade, feedback, graded_at, graded_by FROM submissions WHERE assignment_id = $1 AND student_id = $2 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// Upsert inserts a submission or overwrites the existing row for the
// (assignment_id, student_id) pair. A resubmission resets any earlier grade;
// the unique constraint settles concurrent submissions for the same pair. The
// stored row is scanned back so a resubmission returns the existing row's ID,
// not the freshly generated one.
func (r *SubmissionRepository) Upsert(ctx context.Context, submission *models.Submission) (*models.Submission, error) {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	const query = `INSERT INTO submissions (id, assignment_id, student_id, file_name, file_path, file_size, content_type, submitted_at, is_late, grade, feedback, graded_at, graded_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, NULL, NULL, NULL)
        ON CONFLICT (assignment_id, student_id)
        DO UPDATE SET file_name = EXCLUDED.file_name, file_path = EXCLUDED.file_path, file_size = EXCLUDED.file_size,
            content_type = EXCLUDED.content_type, submitted_at = EXCLUDED.submitted_at, is_late = EXCLUDED.is_late,
            grade = NULL, feedback = NULL, graded_at = NULL, graded_by = NULL
        RETURNING id, assignment_id, student_id, file_name, file_path, file_size, content_type, submitted_at, is_late, grade, feedback, graded_at, graded_by`
	var stored models.Submission
	if err := r.db.GetContext(ctx, &stored, query,
		submission.ID, submission.AssignmentID, submission.StudentID, submission.FileName,
		submission.FilePath, submission.FileSize, submission.ContentType,
		submission.SubmittedAt, submission.IsLate); err != nil {
		return nil, fmt.Errorf("upsert submission: %w", err)
	}
	return &stored, nil
}

// SetGrade records a grade with grader attribution. Overwriting an earlier
// grade is allowed.
func (r *SubmissionRepository) SetGrade(ctx context.Context, id string, grade float64, feedback *string, gradedBy string) error {
	const query = `UPDATE submissions SET grade = $2, feedback = $3, graded_by = $4, graded_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, feedback, gradedBy); err != nil {
		return fmt.Errorf("set submission grade: %w", err)
	}
	return nil
}

// ListGradedByCourse returns graded submissions joined with student and
// assignment context for grade report exports.
func (r *SubmissionRepository) ListGradedByCourse(ctx context.Context, courseID string) ([]models.SubmissionDetail, error) {
	const query = `SELECT ` + submissionColumns + `, p.full_name AS student_name, a.title AS assignment_title, a.max_points AS max_points
        FROM submissions s
        LEFT JOIN profiles p ON p.id = s.student_id
        LEFT JOIN assignments a ON a.id = s.assignment_id
        WHERE a.course_id = $1
        ORDER BY p.full_name ASC, a.due_date ASC`
	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, courseID); err != nil {
		return nil, fmt.Errorf("list course submissions: %w", err)
	}
	return submissions, nil
}
