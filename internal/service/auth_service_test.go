package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/pkg/config"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

type fakeAuthRepo struct {
	identities map[string]*models.Identity // keyed by ID
	audits     []*models.AuditLog
}

func newFakeAuthRepo(identities ...*models.Identity) *fakeAuthRepo {
	repo := &fakeAuthRepo{identities: map[string]*models.Identity{}}
	for _, identity := range identities {
		repo.identities[identity.ID] = identity
	}
	return repo
}

func (r *fakeAuthRepo) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	for _, identity := range r.identities {
		if identity.Email == email {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeAuthRepo) FindByID(_ context.Context, id string) (*models.Identity, error) {
	identity, ok := r.identities[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *identity
	return &cp, nil
}

func (r *fakeAuthRepo) Create(_ context.Context, identity *models.Identity) error {
	if identity.ID == "" {
		identity.ID = "generated-" + identity.Email
	}
	cp := *identity
	r.identities[identity.ID] = &cp
	return nil
}

func (r *fakeAuthRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.audits = append(r.audits, log)
	return nil
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		TokenSecret:      "test_secret",
		TokenExpiry:      24 * time.Hour,
		Issuer:           "campus-api-test",
		SystemAdminEmail: "root@university.edu",
	}
}

func newTestAuthService(repo *fakeAuthRepo, cfg config.AuthConfig) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), cfg)
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func requireErrCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, code, appErr.Code)
}

func TestLoginSuccess(t *testing.T) {
	repo := newFakeAuthRepo(&models.Identity{
		ID:           "user-1",
		Email:        "ada@university.edu",
		PasswordHash: hashPassword(t, "correct horse"),
		FullName:     "Ada Lovelace",
		Role:         models.RoleStudent,
		Active:       true,
	})
	svc := newTestAuthService(repo, testAuthConfig())

	result, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ada@university.edu",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, int64((24 * time.Hour).Seconds()), result.ExpiresIn)
	assert.Equal(t, "user-1", result.User.ID)
	assert.Equal(t, models.RoleStudent, result.User.Role)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionLogin, repo.audits[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newFakeAuthRepo(&models.Identity{
		ID:           "user-1",
		Email:        "ada@university.edu",
		PasswordHash: hashPassword(t, "correct horse"),
		Active:       true,
	})
	svc := newTestAuthService(repo, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ada@university.edu",
		Password: "wrong",
	})
	requireErrCode(t, err, appErrors.ErrInvalidCredentials.Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newTestAuthService(newFakeAuthRepo(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ghost@university.edu",
		Password: "whatever",
	})
	requireErrCode(t, err, appErrors.ErrInvalidCredentials.Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newFakeAuthRepo(&models.Identity{
		ID:           "user-1",
		Email:        "ada@university.edu",
		PasswordHash: hashPassword(t, "correct horse"),
		Active:       false,
	})
	svc := newTestAuthService(repo, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ada@university.edu",
		Password: "correct horse",
	})
	requireErrCode(t, err, appErrors.ErrInactiveAccount.Code)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestAuthService(newFakeAuthRepo(), testAuthConfig())

	token, issuedAt, err := svc.IssueToken("user-42")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), issuedAt, 5*time.Second)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, "campus-api-test", claims.Issuer)
}

func TestExpiredTokenIsDistinguishable(t *testing.T) {
	cfg := testAuthConfig()
	cfg.TokenExpiry = -time.Hour // already expired at issue time
	expiredIssuer := newTestAuthService(newFakeAuthRepo(), cfg)

	token, _, err := expiredIssuer.IssueToken("user-42")
	require.NoError(t, err)

	verifier := newTestAuthService(newFakeAuthRepo(), testAuthConfig())
	_, err = verifier.VerifyToken(token)
	requireErrCode(t, err, appErrors.ErrTokenExpired.Code)
}

func TestMalformedTokenIsUnauthorized(t *testing.T) {
	svc := newTestAuthService(newFakeAuthRepo(), testAuthConfig())

	_, err := svc.VerifyToken("not-a-token")
	requireErrCode(t, err, appErrors.ErrUnauthorized.Code)
}

func TestTokenSignedWithOtherSecretRejected(t *testing.T) {
	otherCfg := testAuthConfig()
	otherCfg.TokenSecret = "different_secret"
	other := newTestAuthService(newFakeAuthRepo(), otherCfg)

	token, _, err := other.IssueToken("user-42")
	require.NoError(t, err)

	svc := newTestAuthService(newFakeAuthRepo(), testAuthConfig())
	_, err = svc.VerifyToken(token)
	requireErrCode(t, err, appErrors.ErrUnauthorized.Code)
}

func TestResolveIdentityForcesSystemAdmin(t *testing.T) {
	repo := newFakeAuthRepo(&models.Identity{
		ID:     "root-1",
		Email:  "Root@University.edu",
		Role:   models.RoleStudent, // stored role is irrelevant for this account
		Active: true,
	})
	svc := newTestAuthService(repo, testAuthConfig())

	identity, err := svc.ResolveIdentity(context.Background(), "root-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, identity.Role)
	assert.True(t, identity.IsSystemAdmin)
}

func TestResolveIdentityRegularUserUntouched(t *testing.T) {
	repo := newFakeAuthRepo(&models.Identity{
		ID:     "user-1",
		Email:  "ada@university.edu",
		Role:   models.RoleInstructor,
		Active: true,
	})
	svc := newTestAuthService(repo, testAuthConfig())

	identity, err := svc.ResolveIdentity(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleInstructor, identity.Role)
	assert.False(t, identity.IsSystemAdmin)
}

func TestResolveIdentityUnknownUser(t *testing.T) {
	svc := newTestAuthService(newFakeAuthRepo(), testAuthConfig())

	_, err := svc.ResolveIdentity(context.Background(), "gone")
	requireErrCode(t, err, appErrors.ErrUnauthorized.Code)
}

func TestResolveIdentityInactiveUser(t *testing.T) {
	repo := newFakeAuthRepo(&models.Identity{
		ID:     "user-1",
		Email:  "ada@university.edu",
		Role:   models.RoleStudent,
		Active: false,
	})
	svc := newTestAuthService(repo, testAuthConfig())

	_, err := svc.ResolveIdentity(context.Background(), "user-1")
	requireErrCode(t, err, appErrors.ErrInactiveAccount.Code)
}

func TestSignupCreatesActiveStudent(t *testing.T) {
	repo := newFakeAuthRepo()
	svc := newTestAuthService(repo, testAuthConfig())

	result, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "new@university.edu",
		Password: "secret123",
		FullName: "New Student",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, result.User.Role)
	assert.NotEmpty(t, result.AccessToken)

	stored, err := repo.FindByEmail(context.Background(), "new@university.edu")
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.Equal(t, models.RoleStudent, stored.Role)
}

func TestSignupDuplicateEmail(t *testing.T) {
	repo := newFakeAuthRepo(&models.Identity{
		ID:    "user-1",
		Email: "taken@university.edu",
	})
	svc := newTestAuthService(repo, testAuthConfig())

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		Email:    "taken@university.edu",
		Password: "secret123",
		FullName: "Copy Cat",
	})
	requireErrCode(t, err, appErrors.ErrConflict.Code)
}
