package models

import "time"

// UserRole represents the available roles for access decisions.
type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleInstructor UserRole = "instructor"
	RoleAdmin      UserRole = "admin"
)

// Identity represents a resolved user record stored in the profiles table.
// IsSystemAdmin is derived at resolve time from the configured system admin
// email and is never persisted.
type Identity struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	FullName      string    `db:"full_name" json:"full_name"`
	Role          UserRole  `db:"role" json:"role"`
	StudentNumber *string   `db:"student_number" json:"student_number,omitempty"`
	DepartmentID  *string   `db:"department_id" json:"department_id,omitempty"`
	Active        bool      `db:"active" json:"active"`
	IsSystemAdmin bool      `db:"-" json:"is_system_admin,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CreateUserRequest is the admin payload for creating an account.
type CreateUserRequest struct {
	Email         string   `json:"email" validate:"required,email"`
	Password      string   `json:"password" validate:"required,min=6"`
	FullName      string   `json:"full_name" validate:"required"`
	Role          UserRole `json:"role" validate:"required,oneof=student instructor admin"`
	StudentNumber *string  `json:"student_number,omitempty"`
	DepartmentID  *string  `json:"department_id,omitempty"`
}

// UpdateUserRequest carries partial profile updates. Role is absent on
// purpose; role changes have their own endpoint and rules.
type UpdateUserRequest struct {
	FullName      *string `json:"full_name,omitempty"`
	StudentNumber *string `json:"student_number,omitempty"`
	DepartmentID  *string `json:"department_id,omitempty"`
	Active        *bool   `json:"active,omitempty"`
}

// ChangeRoleRequest carries a role change for another user.
type ChangeRoleRequest struct {
	Role UserRole `json:"role" validate:"required,oneof=student instructor admin"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
