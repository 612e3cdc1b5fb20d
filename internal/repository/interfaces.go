package repository

import (
	"context"

	"github.com/jwalitptl/mis-api/internal/model"
)

type (
	UserRepository interface {
		// Register stores the user and, for doctor and patient roles, an
		// empty profile. Nothing is stored if any insert fails.
		Register(ctx context.Context, user *model.User) error
		GetByID(ctx context.Context, id int64) (*model.User, error)
		GetByUsername(ctx context.Context, username string) (*model.User, error)
	}

	ClinicRepository interface {
		Create(ctx context.Context, clinic *model.Clinic) error
		Get(ctx context.Context, id int64) (*model.Clinic, error)
		GetByName(ctx context.Context, name string) (*model.Clinic, error)
		AddDoctor(ctx context.Context, clinicID, doctorID int64) error
	}

	DoctorRepository interface {
		Get(ctx context.Context, id int64) (*model.Doctor, error)
		GetByUserID(ctx context.Context, userID int64) (*model.Doctor, error)
		Update(ctx context.Context, doctor *model.Doctor) error
	}

	PatientRepository interface {
		Get(ctx context.Context, id int64) (*model.Patient, error)
		GetByUserID(ctx context.Context, userID int64) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
	}

	ConsultationRepository interface {
		Create(ctx context.Context, consultation *model.Consultation) error
		// Get loads the consultation with its doctor and patient if it is
		// visible in scope.
		Get(ctx context.Context, id int64, scope model.Scope) (*model.Consultation, error)
		List(ctx context.Context, filter model.ConsultationFilter) ([]*model.Consultation, error)
		Update(ctx context.Context, consultation *model.Consultation) error
		UpdateStatus(ctx context.Context, id int64, status model.ConsultationStatus) error
		Delete(ctx context.Context, id int64) error
	}

	// Pinger reports storage liveness
	Pinger interface {
		PingContext(ctx context.Context) error
	}
)

// Store groups the repositories of one storage backend
type Store struct {
	Users         UserRepository
	Clinics       ClinicRepository
	Doctors       DoctorRepository
	Patients      PatientRepository
	Consultations ConsultationRepository
	Pinger        Pinger
}
