package models

import "time"

// AssignmentStatus controls student visibility.
type AssignmentStatus string

const (
	AssignmentStatusDraft     AssignmentStatus = "draft"
	AssignmentStatusPublished AssignmentStatus = "published"
)

// Assignment is coursework attached to a course. Students only ever observe
// published assignments of courses they are actively enrolled in.
type Assignment struct {
	ID           string           `db:"id" json:"id"`
	CourseID     string           `db:"course_id" json:"course_id"`
	InstructorID string           `db:"instructor_id" json:"instructor_id"`
	Title        string           `db:"title" json:"title"`
	Description  string           `db:"description" json:"description"`
	DueDate      time.Time        `db:"due_date" json:"due_date"`
	MaxPoints    float64          `db:"max_points" json:"max_points"`
	AllowLate    bool             `db:"allow_late" json:"allow_late"`
	Status       AssignmentStatus `db:"status" json:"status"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AssignmentRequest carries the create payload for an assignment. New
// assignments start as drafts unless a status is given.
type AssignmentRequest struct {
	CourseID     string           `json:"course_id" validate:"required"`
	InstructorID string           `json:"instructor_id,omitempty"`
	Title        string           `json:"title" validate:"required"`
	Description  string           `json:"description"`
	DueDate      time.Time        `json:"due_date" validate:"required"`
	MaxPoints    float64          `json:"max_points" validate:"required,gt=0"`
	AllowLate    bool             `json:"allow_late"`
	Status       AssignmentStatus `json:"status,omitempty" validate:"omitempty,oneof=draft published"`
}

// UpdateAssignmentRequest carries partial assignment updates.
type UpdateAssignmentRequest struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	MaxPoints   *float64          `json:"max_points,omitempty" validate:"omitempty,gt=0"`
	AllowLate   *bool             `json:"allow_late,omitempty"`
	Status      *AssignmentStatus `json:"status,omitempty" validate:"omitempty,oneof=draft published"`
}

// AssignmentFilter provides filters for listing assignments. CourseIDs and
// PublishedOnly carry the policy row scope for non-admin callers.
type AssignmentFilter struct {
	CourseID      string
	CourseIDs     []string
	Status        AssignmentStatus
	PublishedOnly bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
