package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/pkg/config"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/storage"
)

type submissionPair struct {
	assignmentID string
	studentID    string
}

type fakeSubmissionRepo struct {
	byID       map[string]*models.Submission
	byPair     map[submissionPair]string
	lastFilter models.SubmissionFilter
	seq        int
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		byID:   map[string]*models.Submission{},
		byPair: map[submissionPair]string{},
	}
}

func (r *fakeSubmissionRepo) List(_ context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	r.lastFilter = filter
	return nil, 0, nil
}

func (r *fakeSubmissionRepo) FindByID(_ context.Context, id string) (*models.Submission, error) {
	submission, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *submission
	return &cp, nil
}

func (r *fakeSubmissionRepo) Upsert(_ context.Context, submission *models.Submission) (*models.Submission, error) {
	pair := submissionPair{submission.AssignmentID, submission.StudentID}
	id, ok := r.byPair[pair]
	if !ok {
		r.seq++
		id = fmt.Sprintf("submission-%d", r.seq)
		r.byPair[pair] = id
	}
	// A resubmission replaces the row and clears any previous grade, and the
	// RETURNING scan hands back the stored row under its original ID.
	cp := *submission
	cp.ID = id
	cp.Grade = nil
	cp.Feedback = nil
	cp.GradedAt = nil
	cp.GradedBy = nil
	r.byID[id] = &cp
	stored := cp
	return &stored, nil
}

func (r *fakeSubmissionRepo) SetGrade(_ context.Context, id string, grade float64, feedback *string, gradedBy string) error {
	submission, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	submission.Grade = &grade
	submission.Feedback = feedback
	submission.GradedAt = &now
	submission.GradedBy = &gradedBy
	return nil
}

type fakeAssignmentFinder struct {
	assignments map[string]*models.Assignment
}

func (f *fakeAssignmentFinder) FindByID(_ context.Context, id string) (*models.Assignment, error) {
	assignment, ok := f.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *assignment
	return &cp, nil
}

type submissionFixture struct {
	svc         *SubmissionService
	repo        *fakeSubmissionRepo
	assignments *fakeAssignmentFinder
	store       *storage.LocalStorage
	dueDate     time.Time
}

func newSubmissionFixture(t *testing.T, instructorCourses, activeEnrollments map[string][]string) *submissionFixture {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	dueDate := time.Date(2026, time.March, 10, 23, 59, 0, 0, time.UTC)
	assignments := &fakeAssignmentFinder{assignments: map[string]*models.Assignment{
		"assignment-1": {
			ID:        "assignment-1",
			CourseID:  "course-1",
			Title:     "Problem Set 1",
			DueDate:   dueDate,
			MaxPoints: 50,
			Status:    models.AssignmentStatusPublished,
		},
	}}

	repo := newFakeSubmissionRepo()
	svc := NewSubmissionService(
		repo,
		assignments,
		newFakeUserRepo(),
		stubPolicy(instructorCourses, activeEnrollments),
		store,
		storage.NewSignedURLSigner("download_secret", 15*time.Minute),
		validator.New(),
		zap.NewNop(),
		config.SubmissionsConfig{MaxFileSizeBytes: 1 << 20},
	)
	return &submissionFixture{svc: svc, repo: repo, assignments: assignments, store: store, dueDate: dueDate}
}

func (f *submissionFixture) freezeAt(t time.Time) {
	f.svc.now = func() time.Time { return t }
}

func submitReq(content string) SubmitRequest {
	return SubmitRequest{
		AssignmentID: "assignment-1",
		FileName:     "solution.pdf",
		ContentType:  "application/pdf",
		Size:         int64(len(content)),
		File:         strings.NewReader(content),
	}
}

func TestSubmitBeforeDueDate(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	submission, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("my answers"))
	require.NoError(t, err)
	assert.False(t, submission.IsLate)
	assert.Equal(t, "solution.pdf", submission.FileName)
	assert.Equal(t, int64(len("my answers")), submission.FileSize)

	file, err := fixture.store.Open(submission.FilePath)
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "my answers", string(content))
}

func TestSubmitAfterDueDateFlaggedLate(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, map[string][]string{"student-1": {"course-1"}})
	fixture.assignments.assignments["assignment-1"].AllowLate = true
	fixture.freezeAt(fixture.dueDate.Add(2 * time.Hour))

	submission, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("late answers"))
	require.NoError(t, err)
	assert.True(t, submission.IsLate)
}

func TestSubmitAfterDueDateClosed(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(2 * time.Hour))

	_, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("too late"))
	requireErrCode(t, err, appErrors.ErrSubmissionClosed.Code)
	assert.Empty(t, fixture.repo.byID)
}

func TestSubmitDraftAssignmentHiddenFromStudents(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, map[string][]string{"student-1": {"course-1"}})
	fixture.assignments.assignments["assignment-1"].Status = models.AssignmentStatusDraft
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	_, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("eager"))
	requireErrCode(t, err, appErrors.ErrNotFound.Code)
}

func TestSubmitRequiresEnrollment(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, nil)
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	_, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("outsider"))
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
}

func TestSubmitOversizeRejected(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	req := submitReq("content")
	req.Size = 2 << 20
	_, err := fixture.svc.Submit(context.Background(), student("student-1"), req)
	requireErrCode(t, err, appErrors.ErrValidation.Code)
}

func TestResubmissionOverwritesAndClearsGrade(t *testing.T) {
	fixture := newSubmissionFixture(t, map[string][]string{"teacher-1": {"course-1"}}, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(-2 * time.Hour))

	first, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("draft answers"))
	require.NoError(t, err)

	instructor := &models.Identity{ID: "teacher-1", Role: models.RoleInstructor, Active: true}
	grade := 40.0
	_, err = fixture.svc.Grade(context.Background(), instructor, first.ID, models.GradeRequest{Grade: &grade})
	require.NoError(t, err)

	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))
	second, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("final answers"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	stored := fixture.repo.byID[second.ID]
	assert.Nil(t, stored.Grade)
	assert.Nil(t, stored.GradedAt)

	file, err := fixture.store.Open(second.FilePath)
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "final answers", string(content))
}

func TestGradeWithinBounds(t *testing.T) {
	fixture := newSubmissionFixture(t, map[string][]string{"teacher-1": {"course-1"}}, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	submission, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("answers"))
	require.NoError(t, err)

	instructor := &models.Identity{ID: "teacher-1", Role: models.RoleInstructor, Active: true}
	grade := 47.5
	feedback := "well done"
	graded, err := fixture.svc.Grade(context.Background(), instructor, submission.ID, models.GradeRequest{Grade: &grade, Feedback: &feedback})
	require.NoError(t, err)
	assert.Equal(t, 47.5, *graded.Grade)
	assert.Equal(t, "well done", *graded.Feedback)
	assert.Equal(t, "teacher-1", *graded.GradedBy)
}

func TestGradeOutOfBounds(t *testing.T) {
	fixture := newSubmissionFixture(t, map[string][]string{"teacher-1": {"course-1"}}, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	submission, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("answers"))
	require.NoError(t, err)

	instructor := &models.Identity{ID: "teacher-1", Role: models.RoleInstructor, Active: true}
	for _, grade := range []float64{-1, 50.5, 1000} {
		g := grade
		_, err := fixture.svc.Grade(context.Background(), instructor, submission.ID, models.GradeRequest{Grade: &g})
		requireErrCode(t, err, appErrors.ErrInvalidGrade.Code)
	}
	assert.Nil(t, fixture.repo.byID[submission.ID].Grade)
}

func TestGradeForeignCourseDenied(t *testing.T) {
	fixture := newSubmissionFixture(t, map[string][]string{"teacher-2": {"course-9"}}, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	submission, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("answers"))
	require.NoError(t, err)

	outsider := &models.Identity{ID: "teacher-2", Role: models.RoleInstructor, Active: true}
	grade := 30.0
	_, err = fixture.svc.Grade(context.Background(), outsider, submission.ID, models.GradeRequest{Grade: &grade})
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
}

func TestGetForeignSubmissionDenied(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, map[string][]string{
		"student-1": {"course-1"},
		"student-2": {"course-1"},
	})
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	submission, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("private"))
	require.NoError(t, err)

	_, err = fixture.svc.Get(context.Background(), student("student-2"), submission.ID)
	requireErrCode(t, err, appErrors.ErrForbidden.Code)

	own, err := fixture.svc.Get(context.Background(), student("student-1"), submission.ID)
	require.NoError(t, err)
	assert.Equal(t, submission.ID, own.ID)
}

func TestDownloadRoundTrip(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	submission, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("download me"))
	require.NoError(t, err)

	signed, err := fixture.svc.DownloadURL(context.Background(), student("student-1"), submission.ID)
	require.NoError(t, err)
	assert.Contains(t, signed.URL, signed.Token)

	result, err := fixture.svc.Download(context.Background(), signed.Token)
	require.NoError(t, err)
	defer result.File.Close()
	content, err := io.ReadAll(result.File)
	require.NoError(t, err)
	assert.Equal(t, "download me", string(content))
}

func TestDownloadStaleTokenAfterResubmission(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(-2 * time.Hour))

	submission, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("first upload"))
	require.NoError(t, err)
	signed, err := fixture.svc.DownloadURL(context.Background(), student("student-1"), submission.ID)
	require.NoError(t, err)

	resubmission := submitReq("second upload")
	resubmission.FileName = "solution_v2.pdf"
	_, err = fixture.svc.Submit(context.Background(), student("student-1"), resubmission)
	require.NoError(t, err)

	_, err = fixture.svc.Download(context.Background(), signed.Token)
	requireErrCode(t, err, appErrors.ErrUnauthorized.Code)
}

func TestDownloadTamperedToken(t *testing.T) {
	fixture := newSubmissionFixture(t, nil, map[string][]string{"student-1": {"course-1"}})
	fixture.freezeAt(fixture.dueDate.Add(-time.Hour))

	submission, err := fixture.svc.Submit(context.Background(), student("student-1"), submitReq("content"))
	require.NoError(t, err)
	signed, err := fixture.svc.DownloadURL(context.Background(), student("student-1"), submission.ID)
	require.NoError(t, err)

	_, err = fixture.svc.Download(context.Background(), signed.Token+"x")
	requireErrCode(t, err, appErrors.ErrUnauthorized.Code)
}
