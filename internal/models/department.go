package models

import "time"

// Department groups courses and user affiliations. Code is unique,
// at most 10 characters and stored upper-cased.
type Department struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DepartmentRequest carries create/update payloads for departments.
type DepartmentRequest struct {
	Name        string `json:"name" validate:"required"`
	Code        string `json:"code" validate:"required,max=10,alphanum"`
	Description string `json:"description"`
}
