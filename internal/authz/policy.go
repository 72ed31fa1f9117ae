package authz

import (
	"context"
	"time"

	"github.com/edustack/campus-api/internal/models"
)

// Action distinguishes reads from writes.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Resource enumerates the protected resource types.
type Resource string

const (
	ResourceDepartment  Resource = "department"
	ResourceCourse      Resource = "course"
	ResourceEnrollment  Resource = "enrollment"
	ResourceAssignment  Resource = "assignment"
	ResourceSubmission  Resource = "submission"
	ResourceGrade       Resource = "grade"
	ResourceGradeReport Resource = "grade_report"
	ResourceUser        Resource = "user"
	ResourceUserRole    Resource = "user_role"
	ResourceMetrics     Resource = "metrics"
)

// Scope carries resource hints for a decision. CourseID narrows the check to
// a single course, OwnerID names the row owner (e.g. a submission's student),
// Target is the resolved identity a user-management operation acts on.
type Scope struct {
	CourseID string
	OwnerID  string
	Target   *models.Identity
}

// RowFilter is the scoping predicate attached to an Allow decision. Services
// fold it into repository filters so a caller can never receive or mutate
// rows outside their scope, whatever query they supplied.
type RowFilter struct {
	StudentID     string
	CourseIDs     []string
	PublishedOnly bool
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
	Filter  RowFilter
}

func allow(filter RowFilter) Decision {
	return Decision{Allowed: true, Filter: filter}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// CourseAccess reports instructor-course bindings.
type CourseAccess interface {
	IsCourseInstructor(ctx context.Context, courseID, instructorID string) (bool, error)
	InstructorCourseIDs(ctx context.Context, instructorID string) ([]string, error)
}

// EnrollmentAccess reports active student enrollments.
type EnrollmentAccess interface {
	IsActivelyEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
	StudentActiveCourseIDs(ctx context.Context, studentID string) ([]string, error)
}

// Policy is the single authorization decision point. Handlers and services
// never re-implement role checks; they ask the policy and apply its filter.
type Policy struct {
	courses     CourseAccess
	enrollments EnrollmentAccess
}

// New constructs a Policy backed by the given access readers.
func New(courses CourseAccess, enrollments EnrollmentAccess) *Policy {
	return &Policy{courses: courses, enrollments: enrollments}
}

// Evaluate applies the decision table for (actor, action, resource, scope).
// A nil actor is denied before any resource rule is considered.
func (p *Policy) Evaluate(ctx context.Context, actor *models.Identity, action Action, resource Resource, scope Scope) (Decision, error) {
	if actor == nil {
		return deny("authentication required"), nil
	}

	switch resource {
	case ResourceUser:
		return p.evaluateUser(actor, action, scope), nil
	case ResourceUserRole:
		return evaluateUserRole(actor, action, scope), nil
	case ResourceDepartment:
		return evaluateDepartment(actor, action), nil
	case ResourceCourse:
		return p.evaluateCourse(ctx, actor, action, scope)
	case ResourceEnrollment:
		return p.evaluateEnrollment(ctx, actor, action)
	case ResourceAssignment:
		return p.evaluateAssignment(ctx, actor, action, scope)
	case ResourceSubmission:
		return p.evaluateSubmission(ctx, actor, action, scope)
	case ResourceGrade, ResourceGradeReport:
		return p.evaluateCourseStaff(ctx, actor, scope)
	case ResourceMetrics:
		if actor.Role == models.RoleAdmin {
			return allow(RowFilter{}), nil
		}
		return deny("metrics require admin role"), nil
	default:
		return deny("unknown resource"), nil
	}
}

func (p *Policy) evaluateUser(actor *models.Identity, action Action, scope Scope) Decision {
	if actor.Role == models.RoleAdmin {
		if action == ActionWrite && scope.Target != nil && scope.Target.IsSystemAdmin && scope.Target.ID != actor.ID {
			return deny("the system admin identity is protected")
		}
		return allow(RowFilter{})
	}
	if action == ActionRead && scope.Target != nil && scope.Target.ID == actor.ID {
		return allow(RowFilter{StudentID: actor.ID})
	}
	return deny("user management requires admin role")
}

// evaluateUserRole enforces the two role invariants: nobody changes their own
// role, and nobody changes the system admin's role.
func evaluateUserRole(actor *models.Identity, action Action, scope Scope) Decision {
	if action == ActionRead {
		if actor.Role == models.RoleAdmin {
			return allow(RowFilter{})
		}
		return deny("role visibility requires admin role")
	}
	if actor.Role != models.RoleAdmin {
		return deny("role management requires admin role")
	}
	if scope.Target == nil {
		return deny("role change target missing")
	}
	if scope.Target.ID == actor.ID {
		return deny("callers may not change their own role")
	}
	if scope.Target.IsSystemAdmin {
		return deny("the system admin role is immutable")
	}
	return allow(RowFilter{})
}

func evaluateDepartment(actor *models.Identity, action Action) Decision {
	if action == ActionRead {
		return allow(RowFilter{})
	}
	if actor.Role == models.RoleAdmin {
		return allow(RowFilter{})
	}
	return deny("department changes require admin role")
}

func (p *Policy) evaluateCourse(ctx context.Context, actor *models.Identity, action Action, scope Scope) (Decision, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return allow(RowFilter{}), nil
	case models.RoleInstructor:
		if action == ActionWrite {
			return deny("course changes require admin role"), nil
		}
		return p.instructorCourseRead(ctx, actor, scope)
	case models.RoleStudent:
		if action == ActionWrite {
			return deny("course changes require admin role"), nil
		}
		return p.studentCourseRead(ctx, actor, scope)
	}
	return deny("unknown role"), nil
}

func (p *Policy) evaluateEnrollment(ctx context.Context, actor *models.Identity, action Action) (Decision, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return allow(RowFilter{}), nil
	case models.RoleInstructor:
		if action == ActionWrite {
			return deny("enrollment changes require admin role"), nil
		}
		courseIDs, err := p.courses.InstructorCourseIDs(ctx, actor.ID)
		if err != nil {
			return Decision{}, err
		}
		return allow(RowFilter{CourseIDs: emptyGuard(courseIDs)}), nil
	case models.RoleStudent:
		if action == ActionWrite {
			return deny("enrollment changes require admin role"), nil
		}
		return allow(RowFilter{StudentID: actor.ID}), nil
	}
	return deny("unknown role"), nil
}

func (p *Policy) evaluateAssignment(ctx context.Context, actor *models.Identity, action Action, scope Scope) (Decision, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return allow(RowFilter{}), nil
	case models.RoleInstructor:
		if scope.CourseID != "" {
			ok, err := p.courses.IsCourseInstructor(ctx, scope.CourseID, actor.ID)
			if err != nil {
				return Decision{}, err
			}
			if !ok {
				return deny("not an instructor of this course"), nil
			}
			return allow(RowFilter{CourseIDs: []string{scope.CourseID}}), nil
		}
		courseIDs, err := p.courses.InstructorCourseIDs(ctx, actor.ID)
		if err != nil {
			return Decision{}, err
		}
		return allow(RowFilter{CourseIDs: emptyGuard(courseIDs)}), nil
	case models.RoleStudent:
		if action == ActionWrite {
			return deny("students may not modify assignments"), nil
		}
		if scope.CourseID != "" {
			ok, err := p.enrollments.IsActivelyEnrolled(ctx, actor.ID, scope.CourseID)
			if err != nil {
				return Decision{}, err
			}
			if !ok {
				return deny("not enrolled in this course"), nil
			}
			return allow(RowFilter{CourseIDs: []string{scope.CourseID}, PublishedOnly: true}), nil
		}
		courseIDs, err := p.enrollments.StudentActiveCourseIDs(ctx, actor.ID)
		if err != nil {
			return Decision{}, err
		}
		return allow(RowFilter{CourseIDs: emptyGuard(courseIDs), PublishedOnly: true}), nil
	}
	return deny("unknown role"), nil
}

func (p *Policy) evaluateSubmission(ctx context.Context, actor *models.Identity, action Action, scope Scope) (Decision, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return allow(RowFilter{}), nil
	case models.RoleInstructor:
		if action == ActionWrite {
			return deny("only students create submissions"), nil
		}
		return p.evaluateCourseStaff(ctx, actor, scope)
	case models.RoleStudent:
		if scope.OwnerID != "" && scope.OwnerID != actor.ID {
			return deny("submissions are private to their owner"), nil
		}
		return allow(RowFilter{StudentID: actor.ID}), nil
	}
	return deny("unknown role"), nil
}

// evaluateCourseStaff allows admins everywhere and instructors on courses
// they are primary or secondary assigned to.
func (p *Policy) evaluateCourseStaff(ctx context.Context, actor *models.Identity, scope Scope) (Decision, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return allow(RowFilter{}), nil
	case models.RoleInstructor:
		if scope.CourseID != "" {
			ok, err := p.courses.IsCourseInstructor(ctx, scope.CourseID, actor.ID)
			if err != nil {
				return Decision{}, err
			}
			if !ok {
				return deny("not an instructor of this course"), nil
			}
			return allow(RowFilter{CourseIDs: []string{scope.CourseID}}), nil
		}
		courseIDs, err := p.courses.InstructorCourseIDs(ctx, actor.ID)
		if err != nil {
			return Decision{}, err
		}
		return allow(RowFilter{CourseIDs: emptyGuard(courseIDs)}), nil
	}
	return deny("course staff access required"), nil
}

func (p *Policy) instructorCourseRead(ctx context.Context, actor *models.Identity, scope Scope) (Decision, error) {
	if scope.CourseID != "" {
		ok, err := p.courses.IsCourseInstructor(ctx, scope.CourseID, actor.ID)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return deny("not an instructor of this course"), nil
		}
		return allow(RowFilter{CourseIDs: []string{scope.CourseID}}), nil
	}
	courseIDs, err := p.courses.InstructorCourseIDs(ctx, actor.ID)
	if err != nil {
		return Decision{}, err
	}
	return allow(RowFilter{CourseIDs: emptyGuard(courseIDs)}), nil
}

func (p *Policy) studentCourseRead(ctx context.Context, actor *models.Identity, scope Scope) (Decision, error) {
	if scope.CourseID != "" {
		ok, err := p.enrollments.IsActivelyEnrolled(ctx, actor.ID, scope.CourseID)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return deny("not enrolled in this course"), nil
		}
		return allow(RowFilter{CourseIDs: []string{scope.CourseID}}), nil
	}
	courseIDs, err := p.enrollments.StudentActiveCourseIDs(ctx, actor.ID)
	if err != nil {
		return Decision{}, err
	}
	return allow(RowFilter{CourseIDs: emptyGuard(courseIDs)}), nil
}

// EvaluateSubmissionWrite applies the due-date rules for a student creating
// or overwriting a submission at time now.
func EvaluateSubmissionWrite(actor *models.Identity, assignment *models.Assignment, now time.Time) Decision {
	if actor == nil {
		return deny("authentication required")
	}
	if actor.Role != models.RoleStudent {
		return deny("only students create submissions")
	}
	if assignment.Status != models.AssignmentStatusPublished {
		return deny("assignment is not published")
	}
	if now.After(assignment.DueDate) && !assignment.AllowLate {
		return deny("assignment no longer accepts submissions")
	}
	return allow(RowFilter{StudentID: actor.ID})
}

// emptyGuard keeps an empty scope list non-nil so repositories distinguish
// "restricted to nothing" from "unrestricted".
func emptyGuard(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
