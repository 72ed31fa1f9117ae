package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/campus-api/internal/models"
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

func newTestPolicy(courses map[string][]string, active map[string][]string) *Policy {
	return New(&stubCourseAccess{courses: courses}, &stubEnrollmentAccess{active: active})
}

func identity(id string, role models.UserRole) *models.Identity {
	return &models.Identity{ID: id, Role: role, Active: true}
}

func TestEvaluateDeniesUnauthenticated(t *testing.T) {
	p := newTestPolicy(nil, nil)

	decision, err := p.Evaluate(context.Background(), nil, ActionRead, ResourceCourse, Scope{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestAdminIsUnrestricted(t *testing.T) {
	p := newTestPolicy(nil, nil)
	admin := identity("admin-1", models.RoleAdmin)

	for _, resource := range []Resource{ResourceCourse, ResourceEnrollment, ResourceAssignment, ResourceSubmission, ResourceGrade, ResourceUser} {
		decision, err := p.Evaluate(context.Background(), admin, ActionRead, resource, Scope{})
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "resource %s", resource)
		assert.Empty(t, decision.Filter.CourseIDs)
		assert.Empty(t, decision.Filter.StudentID)
	}
}

func TestStudentEnrollmentReadsScopedToSelf(t *testing.T) {
	p := newTestPolicy(nil, nil)
	student := identity("student-1", models.RoleStudent)

	decision, err := p.Evaluate(context.Background(), student, ActionRead, ResourceEnrollment, Scope{})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.Equal(t, "student-1", decision.Filter.StudentID)
}

func TestStudentAssignmentReadsArePublishedOnly(t *testing.T) {
	p := newTestPolicy(nil, map[string][]string{"student-1": {"course-1"}})
	student := identity("student-1", models.RoleStudent)

	decision, err := p.Evaluate(context.Background(), student, ActionRead, ResourceAssignment, Scope{CourseID: "course-1"})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.True(t, decision.Filter.PublishedOnly)
	assert.Equal(t, []string{"course-1"}, decision.Filter.CourseIDs)
}

func TestStudentDeniedOnForeignCourse(t *testing.T) {
	p := newTestPolicy(nil, map[string][]string{"student-1": {"course-1"}})
	student := identity("student-1", models.RoleStudent)

	decision, err := p.Evaluate(context.Background(), student, ActionRead, ResourceAssignment, Scope{CourseID: "course-2"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestStudentWithoutEnrollmentsMatchesNothing(t *testing.T) {
	p := newTestPolicy(nil, nil)
	student := identity("student-1", models.RoleStudent)

	decision, err := p.Evaluate(context.Background(), student, ActionRead, ResourceAssignment, Scope{})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	// Non-nil empty scope must mean "no rows", never "all rows".
	require.NotNil(t, decision.Filter.CourseIDs)
	assert.Len(t, decision.Filter.CourseIDs, 0)
}

func TestStudentCannotReadForeignSubmission(t *testing.T) {
	p := newTestPolicy(nil, nil)
	student := identity("student-1", models.RoleStudent)

	decision, err := p.Evaluate(context.Background(), student, ActionRead, ResourceSubmission, Scope{OwnerID: "student-2"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = p.Evaluate(context.Background(), student, ActionRead, ResourceSubmission, Scope{OwnerID: "student-1"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestInstructorScopedToTaughtCourses(t *testing.T) {
	p := newTestPolicy(map[string][]string{"teacher-1": {"course-1", "course-2"}}, nil)
	instructor := identity("teacher-1", models.RoleInstructor)

	decision, err := p.Evaluate(context.Background(), instructor, ActionRead, ResourceSubmission, Scope{})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.ElementsMatch(t, []string{"course-1", "course-2"}, decision.Filter.CourseIDs)
}

func TestInstructorCannotGradeForeignCourse(t *testing.T) {
	p := newTestPolicy(map[string][]string{"teacher-1": {"course-1"}}, nil)
	instructor := identity("teacher-1", models.RoleInstructor)

	decision, err := p.Evaluate(context.Background(), instructor, ActionWrite, ResourceGrade, Scope{CourseID: "course-9"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = p.Evaluate(context.Background(), instructor, ActionWrite, ResourceGrade, Scope{CourseID: "course-1"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestInstructorCannotModifyCoursesOrEnrollments(t *testing.T) {
	p := newTestPolicy(map[string][]string{"teacher-1": {"course-1"}}, nil)
	instructor := identity("teacher-1", models.RoleInstructor)

	decision, err := p.Evaluate(context.Background(), instructor, ActionWrite, ResourceCourse, Scope{CourseID: "course-1"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = p.Evaluate(context.Background(), instructor, ActionWrite, ResourceEnrollment, Scope{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestSelfRoleChangeDenied(t *testing.T) {
	p := newTestPolicy(nil, nil)
	admin := identity("admin-1", models.RoleAdmin)

	decision, err := p.Evaluate(context.Background(), admin, ActionWrite, ResourceUserRole, Scope{Target: admin})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestSystemAdminRoleIsImmutable(t *testing.T) {
	p := newTestPolicy(nil, nil)
	admin := identity("admin-1", models.RoleAdmin)
	systemAdmin := identity("root-1", models.RoleAdmin)
	systemAdmin.IsSystemAdmin = true

	decision, err := p.Evaluate(context.Background(), admin, ActionWrite, ResourceUserRole, Scope{Target: systemAdmin})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	other := identity("user-2", models.RoleStudent)
	decision, err = p.Evaluate(context.Background(), admin, ActionWrite, ResourceUserRole, Scope{Target: other})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestSystemAdminProtectedFromOtherAdmins(t *testing.T) {
	p := newTestPolicy(nil, nil)
	admin := identity("admin-1", models.RoleAdmin)
	systemAdmin := identity("root-1", models.RoleAdmin)
	systemAdmin.IsSystemAdmin = true

	decision, err := p.Evaluate(context.Background(), admin, ActionWrite, ResourceUser, Scope{Target: systemAdmin})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// The system admin may still edit its own profile.
	decision, err = p.Evaluate(context.Background(), systemAdmin, ActionWrite, ResourceUser, Scope{Target: systemAdmin})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestNonAdminUserManagementDenied(t *testing.T) {
	p := newTestPolicy(nil, nil)
	student := identity("student-1", models.RoleStudent)
	other := identity("student-2", models.RoleStudent)

	decision, err := p.Evaluate(context.Background(), student, ActionRead, ResourceUser, Scope{Target: other})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = p.Evaluate(context.Background(), student, ActionRead, ResourceUser, Scope{Target: student})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestSubmissionWriteWindows(t *testing.T) {
	due := time.Date(2026, time.March, 10, 23, 59, 0, 0, time.UTC)
	student := identity("student-1", models.RoleStudent)

	base := models.Assignment{
		ID:       "assignment-1",
		CourseID: "course-1",
		DueDate:  due,
		Status:   models.AssignmentStatusPublished,
	}

	t.Run("before due date", func(t *testing.T) {
		decision := EvaluateSubmissionWrite(student, &base, due.Add(-time.Hour))
		assert.True(t, decision.Allowed)
	})

	t.Run("after due date without late window", func(t *testing.T) {
		decision := EvaluateSubmissionWrite(student, &base, due.Add(time.Hour))
		assert.False(t, decision.Allowed)
	})

	t.Run("after due date with late window", func(t *testing.T) {
		late := base
		late.AllowLate = true
		decision := EvaluateSubmissionWrite(student, &late, due.Add(time.Hour))
		assert.True(t, decision.Allowed)
	})

	t.Run("draft assignment", func(t *testing.T) {
		draft := base
		draft.Status = models.AssignmentStatusDraft
		decision := EvaluateSubmissionWrite(student, &draft, due.Add(-time.Hour))
		assert.False(t, decision.Allowed)
	})

	t.Run("instructor cannot submit", func(t *testing.T) {
		decision := EvaluateSubmissionWrite(identity("teacher-1", models.RoleInstructor), &base, due.Add(-time.Hour))
		assert.False(t, decision.Allowed)
	})
}
