package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/authz"
	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/pkg/config"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/storage"
)

type submissionRepository interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	Upsert(ctx context.Context, submission *models.Submission) (*models.Submission, error)
	SetGrade(ctx context.Context, id string, grade float64, feedback *string, gradedBy string) error
}

type assignmentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (int64, error)
	Open(filename string) (*os.File, error)
}

// SubmitRequest carries an upload. File is streamed to storage, never
// buffered whole.
type SubmitRequest struct {
	AssignmentID string
	FileName     string
	ContentType  string
	Size         int64
	File         io.Reader
}

// DownloadResult pairs a submission with an open handle on its stored file.
// The caller owns closing the file.
type DownloadResult struct {
	Submission *models.Submission
	File       *os.File
}

// SubmissionService manages student uploads and grading. A resubmission
// before the deadline overwrites the previous file and clears any grade.
type SubmissionService struct {
	submissions submissionRepository
	assignments assignmentFinder
	audits      auditWriter
	policy      *authz.Policy
	store       fileStore
	signer      *storage.SignedURLSigner
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         config.SubmissionsConfig
	now         func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(
	submissions submissionRepository,
	assignments assignmentFinder,
	audits auditWriter,
	policy *authz.Policy,
	store fileStore,
	signer *storage.SignedURLSigner,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg config.SubmissionsConfig,
) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		submissions: submissions,
		assignments: assignments,
		audits:      audits,
		policy:      policy,
		store:       store,
		signer:      signer,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores an upload against the (assignment, student) pair. Submitting
// after the due date is allowed only when the assignment accepts late work,
// and the row is then flagged late.
func (s *SubmissionService) Submit(ctx context.Context, actor *models.Identity, req SubmitRequest) (*models.Submission, error) {
	assignment, err := s.findAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}

	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceSubmission, authz.Scope{}); err != nil {
		return nil, err
	}
	rowFilter, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceAssignment, authz.Scope{CourseID: assignment.CourseID})
	if err != nil {
		return nil, err
	}
	if rowFilter.PublishedOnly && assignment.Status != models.AssignmentStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}

	now := s.now()
	if decision := authz.EvaluateSubmissionWrite(actor, assignment, now); !decision.Allowed {
		if actor.Role == models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrSubmissionClosed, decision.Reason)
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	fileName := filepath.Base(req.FileName)
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name required")
	}
	if req.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	if req.Size > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum size")
	}

	relPath := filepath.Join(assignment.ID, actor.ID, fileName)
	written, err := s.store.SaveStream(relPath, io.LimitReader(req.File, s.cfg.MaxFileSizeBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store submission file")
	}
	if written > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum size")
	}

	submission := &models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    actor.ID,
		FileName:     fileName,
		FilePath:     relPath,
		FileSize:     written,
		ContentType:  req.ContentType,
		SubmittedAt:  now,
		IsLate:       now.After(assignment.DueDate),
	}
	stored, err := s.submissions.Upsert(ctx, submission)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "save submission")
	}

	s.logger.Info("submission stored",
		zap.String("submission_id", stored.ID),
		zap.String("assignment_id", assignment.ID),
		zap.String("student_id", actor.ID),
		zap.Bool("is_late", stored.IsLate))
	return stored, nil
}

// List returns submissions within the actor's scope: students their own,
// course staff those of their courses.
func (s *SubmissionService) List(ctx context.Context, actor *models.Identity, filter models.SubmissionFilter) ([]models.SubmissionDetail, *models.Pagination, error) {
	rowFilter, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceSubmission, authz.Scope{})
	if err != nil {
		return nil, nil, err
	}
	if rowFilter.StudentID != "" {
		filter.StudentID = rowFilter.StudentID
	}
	if rowFilter.CourseIDs != nil {
		filter.CourseIDs = rowFilter.CourseIDs
	}

	submissions, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list submissions")
	}
	return submissions, &models.Pagination{
		Page:       normalizePage(filter.Page),
		PageSize:   normalizePageSize(filter.PageSize),
		TotalCount: total,
	}, nil
}

// Get returns a single submission the actor may see.
func (s *SubmissionService) Get(ctx context.Context, actor *models.Identity, id string) (*models.Submission, error) {
	submission, err := s.findSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, actor, submission); err != nil {
		return nil, err
	}
	return submission, nil
}

// Grade records a grade and optional feedback. The grade must fall within
// [0, max_points] of the assignment; regrading overwrites.
func (s *SubmissionService) Grade(ctx context.Context, actor *models.Identity, id string, req models.GradeRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	submission, err := s.findSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	assignment, err := s.findAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}
	if _, err := authorize(ctx, s.policy, actor, authz.ActionWrite, authz.ResourceGrade, authz.Scope{CourseID: assignment.CourseID}); err != nil {
		return nil, err
	}

	grade := *req.Grade
	if grade < 0 || grade > assignment.MaxPoints {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade,
			fmt.Sprintf("grade must be between 0 and %g", assignment.MaxPoints))
	}

	if err := s.submissions.SetGrade(ctx, submission.ID, grade, req.Feedback, actor.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "grade submission")
	}

	gradedAt := s.now()
	submission.Grade = &grade
	submission.Feedback = req.Feedback
	submission.GradedAt = &gradedAt
	submission.GradedBy = &actor.ID

	s.audit(ctx, actor.ID, models.AuditActionGradeSet, submission.ID, grade)
	s.logger.Info("submission graded",
		zap.String("submission_id", submission.ID),
		zap.Float64("grade", grade),
		zap.String("graded_by", actor.ID))
	return submission, nil
}

// DownloadURL issues a time-limited signed token for fetching the stored
// file, so the storage path itself is never exposed.
func (s *SubmissionService) DownloadURL(ctx context.Context, actor *models.Identity, id string) (*models.SignedDownload, error) {
	submission, err := s.findSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, actor, submission); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(submission.ID, submission.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign download url")
	}
	return &models.SignedDownload{
		Token:     token,
		URL:       "/submissions/download?token=" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Download resolves a signed token to an open file handle. The token is the
// credential here; no session is required. A token minted before a
// resubmission no longer matches the stored path and is rejected.
func (s *SubmissionService) Download(ctx context.Context, token string) (*DownloadResult, error) {
	submissionID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}

	submission, err := s.findSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token is stale")
	}

	file, err := s.store.Open(submission.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "open submission file")
	}
	return &DownloadResult{Submission: submission, File: file}, nil
}

func (s *SubmissionService) authorizeRead(ctx context.Context, actor *models.Identity, submission *models.Submission) error {
	scope := authz.Scope{OwnerID: submission.StudentID}
	if actor != nil && actor.Role == models.RoleInstructor {
		assignment, err := s.findAssignment(ctx, submission.AssignmentID)
		if err != nil {
			return err
		}
		scope.CourseID = assignment.CourseID
	}
	_, err := authorize(ctx, s.policy, actor, authz.ActionRead, authz.ResourceSubmission, scope)
	return err
}

func (s *SubmissionService) findSubmission(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get submission")
	}
	return submission, nil
}

func (s *SubmissionService) findAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "get assignment")
	}
	return assignment, nil
}

func (s *SubmissionService) audit(ctx context.Context, actorID, action, resourceID string, newValues interface{}) {
	payload, _ := json.Marshal(newValues)
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "submission",
		ResourceID: &resourceID,
		NewValues:  payload,
	}
	if err := s.audits.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
