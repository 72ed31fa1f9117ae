package models

import "time"

// Submission is a student's uploaded answer to an assignment. At most one
// row exists per (assignment_id, student_id); resubmitting overwrites it.
type Submission struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	FileName     string     `db:"file_name" json:"file_name"`
	FilePath     string     `db:"file_path" json:"-"`
	FileSize     int64      `db:"file_size" json:"file_size"`
	ContentType  string     `db:"content_type" json:"content_type"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	IsLate       bool       `db:"is_late" json:"is_late"`
	Grade        *float64   `db:"grade" json:"grade,omitempty"`
	Feedback     *string    `db:"feedback" json:"feedback,omitempty"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
	GradedBy     *string    `db:"graded_by" json:"graded_by,omitempty"`
}

// SubmissionDetail enriches Submission with joined context.
type SubmissionDetail struct {
	Submission
	StudentName     string  `db:"student_name" json:"student_name"`
	AssignmentTitle string  `db:"assignment_title" json:"assignment_title"`
	MaxPoints       float64 `db:"max_points" json:"max_points"`
}

// GradeRequest records a grade and optional feedback on a submission.
type GradeRequest struct {
	Grade    *float64 `json:"grade" validate:"required"`
	Feedback *string  `json:"feedback,omitempty"`
}

// SignedDownload is a time-limited token for fetching a submission file
// without exposing the storage path.
type SignedDownload struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SubmissionFilter provides filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
	CourseIDs    []string
	Graded       *bool
	Page         int
	PageSize     int
}
