package service

import (
	"context"

	"github.com/edustack/campus-api/internal/authz"
)

type stubCourseAccess struct {
	courses map[string][]string // instructor ID -> course IDs
}

func (s *stubCourseAccess) IsCourseInstructor(_ context.Context, courseID, instructorID string) (bool, error) {
	for _, id := range s.courses[instructorID] {
		if id == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubCourseAccess) InstructorCourseIDs(_ context.Context, instructorID string) ([]string, error) {
	return s.courses[instructorID], nil
}

type stubEnrollmentAccess struct {
	active map[string][]string // student ID -> course IDs
}

func (s *stubEnrollmentAccess) IsActivelyEnrolled(_ context.Context, studentID, courseID string) (bool, error) {
	for _, id := range s.active[studentID] {
		if id == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubEnrollmentAccess) StudentActiveCourseIDs(_ context.Context, studentID string) ([]string, error) {
	return s.active[studentID], nil
}

func stubPolicy(courses map[string][]string, active map[string][]string) *authz.Policy {
	return authz.New(&stubCourseAccess{courses: courses}, &stubEnrollmentAccess{active: active})
}
