package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/edustack/campus-api/internal/models"
)

func submissionReturningRows(id string, submittedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "assignment_id", "student_id", "file_name", "file_path", "file_size", "content_type", "submitted_at", "is_late", "grade", "feedback", "graded_at", "graded_by"}).
		AddRow(id, "assignment-1", "student-1", "solution.pdf", "assignment-1/student-1/solution.pdf", int64(2048), "application/pdf", submittedAt, true, nil, nil, nil, nil)
}

func TestSubmissionRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	submittedAt := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (assignment_id, student_id)")).
		WithArgs(sqlmock.AnyArg(), "assignment-1", "student-1", "solution.pdf", "assignment-1/student-1/solution.pdf", int64(2048), "application/pdf", submittedAt, true).
		WillReturnRows(submissionReturningRows("submission-1", submittedAt))

	submission := &models.Submission{
		AssignmentID: "assignment-1",
		StudentID:    "student-1",
		FileName:     "solution.pdf",
		FilePath:     "assignment-1/student-1/solution.pdf",
		FileSize:     2048,
		ContentType:  "application/pdf",
		SubmittedAt:  submittedAt,
		IsLate:       true,
	}
	stored, err := repo.Upsert(context.Background(), submission)
	require.NoError(t, err)
	require.Equal(t, "submission-1", stored.ID)
	require.Nil(t, stored.Grade)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpsertConflictReturnsStoredRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	// A resubmission hits ON CONFLICT DO UPDATE; the RETURNING clause hands
	// back the existing row so the caller never sees the candidate ID.
	submittedAt := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING id, assignment_id, student_id, file_name, file_path, file_size, content_type, submitted_at, is_late, grade, feedback, graded_at, graded_by")).
		WithArgs(sqlmock.AnyArg(), "assignment-1", "student-1", "solution.pdf", "assignment-1/student-1/solution.pdf", int64(2048), "application/pdf", submittedAt, true).
		WillReturnRows(submissionReturningRows("submission-existing", submittedAt))

	submission := &models.Submission{
		AssignmentID: "assignment-1",
		StudentID:    "student-1",
		FileName:     "solution.pdf",
		FilePath:     "assignment-1/student-1/solution.pdf",
		FileSize:     2048,
		ContentType:  "application/pdf",
		SubmittedAt:  submittedAt,
		IsLate:       true,
	}
	stored, err := repo.Upsert(context.Background(), submission)
	require.NoError(t, err)
	require.Equal(t, "submission-existing", stored.ID)
	require.NotEqual(t, submission.ID, stored.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositorySetGrade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	feedback := "solid work"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET grade = $2, feedback = $3, graded_by = $4, graded_at = NOW() WHERE id = $1")).
		WithArgs("submission-1", 47.5, feedback, "teacher-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetGrade(context.Background(), "submission-1", 47.5, &feedback, "teacher-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListGradedFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	graded := true
	rows := sqlmock.NewRows([]string{"id", "assignment_id", "student_id", "grade"}).
		AddRow("submission-1", "assignment-1", "student-1", 40.0)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.assignment_id = $1 AND s.grade IS NOT NULL ORDER BY s.submitted_at DESC")).
		WithArgs("assignment-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("assignment-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	submissions, total, err := repo.List(context.Background(), models.SubmissionFilter{AssignmentID: "assignment-1", Graded: &graded})
	require.NoError(t, err)
	require.Len(t, submissions, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListGradedByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "assignment_id", "student_id", "grade", "student_name", "assignment_title", "max_points"}).
		AddRow("submission-1", "assignment-1", "student-1", 40.0, "Ada Lovelace", "Problem Set 1", 50.0)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.course_id = $1")).
		WithArgs("course-1").
		WillReturnRows(rows)

	submissions, err := repo.ListGradedByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, submissions, 1)
	require.Equal(t, "Ada Lovelace", submissions[0].StudentName)
	require.NoError(t, mock.ExpectationsWereMet())
}
