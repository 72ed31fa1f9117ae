package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// Enrollment captures a student's registration to a course. The
// (student_id, course_id) pair is unique at the storage layer.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledBy string           `db:"enrolled_by" json:"enrolled_by"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	FinalGrade *float64         `db:"final_grade" json:"final_grade,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	CourseName  string `db:"course_name" json:"course_name"`
	CourseCode  string `db:"course_code" json:"course_code"`
}

// EnrollRequest enrolls one student into one or more courses in a single
// call. Re-enrolling an existing pair reactivates it instead of failing.
type EnrollRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	CourseIDs []string `json:"course_ids" validate:"required,min=1,dive,required"`
}

// EnrollmentStatusRequest updates the lifecycle status of an enrollment.
type EnrollmentStatusRequest struct {
	Status EnrollmentStatus `json:"status" validate:"required,oneof=active dropped completed"`
}

// FinalGradeRequest records a course final grade on an enrollment.
type FinalGradeRequest struct {
	FinalGrade *float64 `json:"final_grade" validate:"required"`
}

// EnrollmentFilter provides filters for listing enrollments. StudentID and
// CourseIDs may be narrowed further by the policy row scope.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	CourseIDs []string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
