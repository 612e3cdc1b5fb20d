package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
	"github.com/jwalitptl/mis-api/internal/repository/memory"
	"github.com/jwalitptl/mis-api/pkg/auth"
	apperrors "github.com/jwalitptl/mis-api/pkg/errors"
	"github.com/jwalitptl/mis-api/pkg/metrics"
	"github.com/jwalitptl/mis-api/pkg/security"
)

func newTestService(t *testing.T) (*Service, *repository.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(
		store.Users,
		auth.NewJWTService("test-secret", time.Hour, 24*time.Hour),
		security.NewBcryptHasher(4),
		NewMemoryBlacklist(),
		metrics.NewNop(),
	)
	return svc, store
}

func registerRequest(username string, role model.Role) *model.RegisterRequest {
	return &model.RegisterRequest{
		Username:  username,
		Password:  "strongpassword",
		Role:      role,
		FirstName: "Анна",
		LastName:  "Смирнова",
	}
}

func TestRegister_CreatesProfileByRole(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	patient, err := svc.Register(ctx, registerRequest("anna", model.RolePatient))
	require.NoError(t, err)
	assert.True(t, patient.IsActive)
	assert.False(t, patient.IsStaff)
	assert.NotEqual(t, "strongpassword", patient.PasswordHash)

	profile, err := store.Patients.GetByUserID(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, patient.ID, profile.UserID)

	doctor, err := svc.Register(ctx, registerRequest("alex", model.RoleDoctor))
	require.NoError(t, err)
	_, err = store.Doctors.GetByUserID(ctx, doctor.ID)
	require.NoError(t, err)
	_, err = store.Patients.GetByUserID(ctx, doctor.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRegister_AdminIsStaffAndSuperuser(t *testing.T) {
	svc, _ := newTestService(t)

	admin, err := svc.Register(context.Background(), registerRequest("root", model.RoleAdmin))
	require.NoError(t, err)
	assert.True(t, admin.IsStaff)
	assert.True(t, admin.IsSuperuser)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerRequest("anna", model.RolePatient))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerRequest("anna", model.RoleDoctor))
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	assert.Contains(t, appErr.Fields, "username")
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerRequest("anna", model.RolePatient))
	require.NoError(t, err)

	tokens, err := svc.Login(ctx, "anna", "strongpassword")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.Access)
	assert.NotEmpty(t, tokens.Refresh)

	user, err := svc.Authenticate(ctx, tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, "anna", user.Username)

	_, err = svc.Authenticate(ctx, tokens.Refresh)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))

	for _, creds := range [][2]string{{"anna", "wrong"}, {"nobody", "strongpassword"}} {
		_, err = svc.Login(ctx, creds[0], creds[1])
		require.Error(t, err)
		appErr, _ := apperrors.As(err)
		assert.Equal(t, apperrors.ErrUnauthorized, appErr.Code)
		assert.Equal(t, msgNoActiveAccount, appErr.Message)
	}
}

func TestRefresh_RotatesAndBlacklists(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerRequest("anna", model.RolePatient))
	require.NoError(t, err)
	tokens, err := svc.Login(ctx, "anna", "strongpassword")
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, tokens.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.Refresh, rotated.Refresh)

	_, err = svc.Refresh(ctx, tokens.Refresh)
	require.Error(t, err)
	appErr, _ := apperrors.As(err)
	assert.Equal(t, msgTokenBlacklist, appErr.Message)

	_, err = svc.Refresh(ctx, rotated.Refresh)
	assert.NoError(t, err)

	_, err = svc.Refresh(ctx, tokens.Access)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
}

func TestRefresh_ConcurrentReuse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerRequest("anna", model.RolePatient))
	require.NoError(t, err)
	tokens, err := svc.Login(ctx, "anna", "strongpassword")
	require.NoError(t, err)

	const workers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Refresh(ctx, tokens.Refresh); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestMemoryBlacklist(t *testing.T) {
	bl := NewMemoryBlacklist()
	ctx := context.Background()

	claimed, err := bl.Claim(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = bl.Claim(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = bl.Claim(ctx, "expired", 0)
	require.NoError(t, err)
	assert.False(t, claimed)

	found, err := bl.Contains(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = bl.Contains(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, found)
}
