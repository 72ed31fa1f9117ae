package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

type fakeUserRepo struct {
	byID        map[string]*models.Identity
	roleChanges map[string]models.UserRole
	deleted     []string
	audits      []*models.AuditLog
}

func newFakeUserRepo(identities ...*models.Identity) *fakeUserRepo {
	repo := &fakeUserRepo{
		byID:        map[string]*models.Identity{},
		roleChanges: map[string]models.UserRole{},
	}
	for _, identity := range identities {
		repo.byID[identity.ID] = identity
	}
	return repo
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	for _, identity := range r.byID {
		if identity.Email == email {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) List(_ context.Context, _ models.UserFilter) ([]models.Identity, int, error) {
	out := make([]models.Identity, 0, len(r.byID))
	for _, identity := range r.byID {
		out = append(out, *identity)
	}
	return out, len(out), nil
}

func (r *fakeUserRepo) Create(_ context.Context, identity *models.Identity) error {
	if identity.ID == "" {
		identity.ID = "generated-" + identity.Email
	}
	cp := *identity
	r.byID[identity.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, identity *models.Identity) error {
	cp := *identity
	r.byID[identity.ID] = &cp
	return nil
}

func (r *fakeUserRepo) UpdateRole(_ context.Context, id string, role models.UserRole) error {
	r.roleChanges[id] = role
	if stored, ok := r.byID[id]; ok {
		stored.Role = role
	}
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	if stored, ok := r.byID[id]; ok {
		stored.Active = false
	}
	return nil
}

func (r *fakeUserRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.audits = append(r.audits, log)
	return nil
}

const testSystemAdminEmail = "root@university.edu"

type fakeIdentityFinder struct {
	repo *fakeUserRepo
}

func (f *fakeIdentityFinder) FindIdentity(_ context.Context, userID string) (*models.Identity, error) {
	identity, ok := f.repo.byID[userID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	cp := *identity
	f.Decorate(&cp)
	return &cp, nil
}

func (f *fakeIdentityFinder) Decorate(identity *models.Identity) {
	if identity != nil && strings.EqualFold(identity.Email, testSystemAdminEmail) {
		identity.Role = models.RoleAdmin
		identity.IsSystemAdmin = true
	}
}

func newTestUserService(repo *fakeUserRepo) *UserService {
	return NewUserService(repo, &fakeIdentityFinder{repo: repo}, stubPolicy(nil, nil), validator.New(), zap.NewNop())
}

func admin(id string) *models.Identity {
	return &models.Identity{ID: id, Email: id + "@university.edu", Role: models.RoleAdmin, Active: true}
}

func student(id string) *models.Identity {
	return &models.Identity{ID: id, Email: id + "@university.edu", Role: models.RoleStudent, Active: true}
}

func TestChangeRoleByAdmin(t *testing.T) {
	target := student("student-1")
	repo := newFakeUserRepo(target)
	svc := newTestUserService(repo)

	updated, err := svc.ChangeRole(context.Background(), admin("admin-1"), "student-1", models.ChangeRoleRequest{Role: models.RoleInstructor})
	require.NoError(t, err)
	assert.Equal(t, models.RoleInstructor, updated.Role)
	assert.Equal(t, models.RoleInstructor, repo.roleChanges["student-1"])
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionRoleChange, repo.audits[0].Action)
}

func TestChangeOwnRoleDenied(t *testing.T) {
	actor := admin("admin-1")
	repo := newFakeUserRepo(actor)
	svc := newTestUserService(repo)

	_, err := svc.ChangeRole(context.Background(), actor, "admin-1", models.ChangeRoleRequest{Role: models.RoleStudent})
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
	assert.Empty(t, repo.roleChanges)
}

func TestChangeSystemAdminRoleDenied(t *testing.T) {
	systemAdmin := &models.Identity{ID: "root-1", Email: testSystemAdminEmail, Role: models.RoleAdmin, Active: true}
	repo := newFakeUserRepo(systemAdmin)
	svc := newTestUserService(repo)

	_, err := svc.ChangeRole(context.Background(), admin("admin-1"), "root-1", models.ChangeRoleRequest{Role: models.RoleStudent})
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
	assert.Empty(t, repo.roleChanges)
}

func TestChangeRoleByStudentDenied(t *testing.T) {
	target := student("student-2")
	repo := newFakeUserRepo(target)
	svc := newTestUserService(repo)

	_, err := svc.ChangeRole(context.Background(), student("student-1"), "student-2", models.ChangeRoleRequest{Role: models.RoleAdmin})
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
}

func TestDeleteSystemAdminDenied(t *testing.T) {
	systemAdmin := &models.Identity{ID: "root-1", Email: testSystemAdminEmail, Role: models.RoleAdmin, Active: true}
	repo := newFakeUserRepo(systemAdmin)
	svc := newTestUserService(repo)

	err := svc.Delete(context.Background(), admin("admin-1"), "root-1")
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
	assert.Empty(t, repo.deleted)
}

func TestDeleteDeactivatesAccount(t *testing.T) {
	target := student("student-1")
	repo := newFakeUserRepo(target)
	svc := newTestUserService(repo)

	err := svc.Delete(context.Background(), admin("admin-1"), "student-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"student-1"}, repo.deleted)
	assert.False(t, repo.byID["student-1"].Active)
}

func TestGetSelfAllowedForStudent(t *testing.T) {
	actor := student("student-1")
	repo := newFakeUserRepo(actor)
	svc := newTestUserService(repo)

	identity, err := svc.Get(context.Background(), actor, "student-1")
	require.NoError(t, err)
	assert.Equal(t, "student-1", identity.ID)
}

func TestGetOtherDeniedForStudent(t *testing.T) {
	repo := newFakeUserRepo(student("student-1"), student("student-2"))
	svc := newTestUserService(repo)

	_, err := svc.Get(context.Background(), repo.byID["student-1"], "student-2")
	requireErrCode(t, err, appErrors.ErrForbidden.Code)
}

func TestListRequiresAdmin(t *testing.T) {
	repo := newFakeUserRepo(student("student-1"))
	svc := newTestUserService(repo)

	_, _, err := svc.List(context.Background(), student("student-1"), models.UserFilter{})
	requireErrCode(t, err, appErrors.ErrForbidden.Code)

	identities, pagination, err := svc.List(context.Background(), admin("admin-1"), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, identities, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestCreateDuplicateEmailConflict(t *testing.T) {
	existing := student("student-1")
	existing.Email = "taken@university.edu"
	repo := newFakeUserRepo(existing)
	svc := newTestUserService(repo)

	_, err := svc.Create(context.Background(), admin("admin-1"), models.CreateUserRequest{
		Email:    "taken@university.edu",
		Password: "secret123",
		FullName: "Copy Cat",
		Role:     models.RoleStudent,
	})
	requireErrCode(t, err, appErrors.ErrConflict.Code)
}

func TestCreateUserWithRole(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestUserService(repo)

	identity, err := svc.Create(context.Background(), admin("admin-1"), models.CreateUserRequest{
		Email:    "new.teacher@university.edu",
		Password: "secret123",
		FullName: "New Teacher",
		Role:     models.RoleInstructor,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleInstructor, identity.Role)
	assert.True(t, identity.Active)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.audits[0].Action)
}
