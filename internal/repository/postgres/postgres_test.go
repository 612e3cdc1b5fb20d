package postgres

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
)

// openTestDB connects to TEST_DATABASE_URL, applies migrations and empties
// every table. Tests are skipped when the variable is unset.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = NewMigrator(db).Up(ctx)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `TRUNCATE consultations, doctor_clinics, doctors, patients, clinics, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}

func registerUser(t *testing.T, store *repository.Store, username string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		PasswordHash: "x",
		FirstName:    username,
		LastName:     "Test",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, store.Users.Register(context.Background(), u))
	return u
}

func subMigrations(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(migrationFiles, "migrations")
	require.NoError(t, err)
	return sub
}

func TestMigrator_LoadMigrations(t *testing.T) {
	migrations, err := (&Migrator{files: subMigrations(t)}).LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS consultations")
}

func TestMigrator_UpIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	count, err := NewMigrator(db).Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUserRepository_Register(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	doctor := registerUser(t, store, "alex", model.RoleDoctor)
	assert.NotZero(t, doctor.ID)

	profile, err := store.Doctors.GetByUserID(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, "alex", profile.User.Username)

	_, err = store.Patients.GetByUserID(ctx, doctor.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	dup := &model.User{Username: "alex", PasswordHash: "x", Role: model.RolePatient, IsActive: true}
	err = store.Users.Register(ctx, dup)
	assert.ErrorIs(t, err, repository.ErrIntegrity)

	var patients int
	require.NoError(t, db.GetContext(ctx, &patients, `SELECT COUNT(*) FROM patients`))
	assert.Equal(t, 0, patients)
}

func TestConsultationRepository(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	anna := registerUser(t, store, "anna", model.RolePatient)
	alex := registerUser(t, store, "alex", model.RoleDoctor)
	boris := registerUser(t, store, "boris", model.RoleDoctor)

	patient, err := store.Patients.GetByUserID(ctx, anna.ID)
	require.NoError(t, err)
	doctorA, err := store.Doctors.GetByUserID(ctx, alex.ID)
	require.NoError(t, err)
	doctorB, err := store.Doctors.GetByUserID(ctx, boris.ID)
	require.NoError(t, err)

	clinic := &model.Clinic{Name: "Medsi"}
	require.NoError(t, store.Clinics.Create(ctx, clinic))
	require.NoError(t, store.Clinics.AddDoctor(ctx, clinic.ID, doctorA.ID))
	require.NoError(t, store.Clinics.AddDoctor(ctx, clinic.ID, doctorA.ID))

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	first := &model.Consultation{
		DoctorID: doctorA.ID, PatientID: patient.ID, ClinicID: &clinic.ID,
		StartTime: start, EndTime: start.Add(30 * time.Minute),
		Status: model.ConsultationStatusPending,
	}
	require.NoError(t, store.Consultations.Create(ctx, first))
	second := &model.Consultation{
		DoctorID: doctorB.ID, PatientID: patient.ID,
		StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour),
		Status: model.ConsultationStatusPending,
	}
	require.NoError(t, store.Consultations.Create(ctx, second))

	t.Run("get loads relations", func(t *testing.T) {
		got, err := store.Consultations.Get(ctx, first.ID, model.Unrestricted())
		require.NoError(t, err)
		assert.Equal(t, "alex", got.Doctor.User.Username)
		assert.Equal(t, []int64{clinic.ID}, got.Doctor.ClinicIDs)
		assert.Equal(t, "anna", got.Patient.User.Username)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("scope", func(t *testing.T) {
		_, err := store.Consultations.Get(ctx, first.ID, model.Scope{Kind: model.ScopeDoctor, UserID: boris.ID})
		assert.ErrorIs(t, err, repository.ErrNotFound)

		items, err := store.Consultations.List(ctx, model.ConsultationFilter{Scope: model.Scope{Kind: model.ScopePatient, UserID: anna.ID}})
		require.NoError(t, err)
		assert.Len(t, items, 2)

		items, err = store.Consultations.List(ctx, model.ConsultationFilter{Scope: model.Scope{Kind: model.ScopeDoctor, UserID: alex.ID}})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, first.ID, items[0].ID)

		items, err = store.Consultations.List(ctx, model.ConsultationFilter{Scope: model.Scope{Kind: model.ScopeNone}})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("filters and ordering", func(t *testing.T) {
		items, err := store.Consultations.List(ctx, model.ConsultationFilter{
			Scope:    model.Unrestricted(),
			Search:   []string{"BOR"},
			Ordering: []model.OrderField{{Field: "start_time"}},
		})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, second.ID, items[0].ID)

		items, err = store.Consultations.List(ctx, model.ConsultationFilter{
			Scope:    model.Unrestricted(),
			Ordering: []model.OrderField{{Field: "start_time", Desc: true}},
		})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, second.ID, items[0].ID)

		items, err = store.Consultations.List(ctx, model.ConsultationFilter{Scope: model.Unrestricted(), ClinicID: &clinic.ID})
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("update keeps created_at", func(t *testing.T) {
		before, err := store.Consultations.Get(ctx, first.ID, model.Unrestricted())
		require.NoError(t, err)

		before.Notes = "updated"
		before.ClinicID = nil
		require.NoError(t, store.Consultations.Update(ctx, before))
		require.NoError(t, store.Consultations.UpdateStatus(ctx, first.ID, model.ConsultationStatusConfirmed))

		after, err := store.Consultations.Get(ctx, first.ID, model.Unrestricted())
		require.NoError(t, err)
		assert.Equal(t, "updated", after.Notes)
		assert.Nil(t, after.ClinicID)
		assert.Equal(t, model.ConsultationStatusConfirmed, after.Status)
		assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	})

	t.Run("constraints", func(t *testing.T) {
		bad := &model.Consultation{
			DoctorID: doctorA.ID, PatientID: patient.ID,
			StartTime: start, EndTime: start,
			Status: model.ConsultationStatusPending,
		}
		assert.ErrorIs(t, store.Consultations.Create(ctx, bad), repository.ErrIntegrity)

		bad.EndTime = start.Add(time.Hour)
		bad.DoctorID = 9999
		assert.ErrorIs(t, store.Consultations.Create(ctx, bad), repository.ErrIntegrity)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Consultations.Delete(ctx, second.ID))
		assert.ErrorIs(t, store.Consultations.Delete(ctx, second.ID), repository.ErrNotFound)
	})
}
