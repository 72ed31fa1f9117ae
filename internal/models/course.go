package models

import "time"

// Course belongs to exactly one department and has zero or one primary
// instructor plus any number of secondary instructor assignments.
type Course struct {
	ID                  string    `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	Code                string    `db:"code" json:"code"`
	Description         string    `db:"description" json:"description"`
	Credits             int       `db:"credits" json:"credits"`
	Semester            string    `db:"semester" json:"semester"`
	Year                int       `db:"year" json:"year"`
	DepartmentID        string    `db:"department_id" json:"department_id"`
	PrimaryInstructorID *string   `db:"primary_instructor_id" json:"primary_instructor_id,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with joined names.
type CourseDetail struct {
	Course
	DepartmentName    string  `db:"department_name" json:"department_name"`
	DepartmentCode    string  `db:"department_code" json:"department_code"`
	PrimaryInstructor *string `db:"primary_instructor_name" json:"primary_instructor_name,omitempty"`
}

// CourseInstructor is a secondary instructor assignment row.
type CourseInstructor struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	AssignedBy   string    `db:"assigned_by" json:"assigned_by"`
	AssignedAt   time.Time `db:"assigned_at" json:"assigned_at"`
}

// CourseRequest carries create/update payloads for courses.
type CourseRequest struct {
	Name                string  `json:"name" validate:"required"`
	Code                string  `json:"code" validate:"required,max=20"`
	Description         string  `json:"description"`
	Credits             int     `json:"credits" validate:"gte=0,lte=30"`
	Semester            string  `json:"semester" validate:"required"`
	Year                int     `json:"year" validate:"required,gte=2000,lte=2100"`
	DepartmentID        string  `json:"department_id" validate:"required"`
	PrimaryInstructorID *string `json:"primary_instructor_id,omitempty"`
}

// CourseFilter provides filters for listing courses. CourseIDs carries the
// policy row scope, not caller-supplied query input.
type CourseFilter struct {
	DepartmentID string
	Semester     string
	Year         int
	CourseIDs    []string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
