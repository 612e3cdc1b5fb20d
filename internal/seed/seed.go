package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
)

// Fixture describes the demo data. Every field can be overridden with a
// SEED_ environment variable, for example SEED_ADMIN_PASSWORD.
type Fixture struct {
	AdminUsername string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD" default:"123456"`
	AdminEmail    string `envconfig:"ADMIN_EMAIL" default:"admin@example.com"`

	ClinicName            string `envconfig:"CLINIC_NAME" default:"Medsi"`
	ClinicLegalAddress    string `envconfig:"CLINIC_LEGAL_ADDRESS" default:"Москва, ул. Ленина 1"`
	ClinicPhysicalAddress string `envconfig:"CLINIC_PHYSICAL_ADDRESS" default:"Москва, ул. Пушкина 10"`

	DoctorUsername       string `envconfig:"DOCTOR_USERNAME" default:"doctor_alex"`
	DoctorPassword       string `envconfig:"DOCTOR_PASSWORD" default:"doctor"`
	DoctorFirstName      string `envconfig:"DOCTOR_FIRST_NAME" default:"Алексей"`
	DoctorLastName       string `envconfig:"DOCTOR_LAST_NAME" default:"Иванов"`
	DoctorMiddleName     string `envconfig:"DOCTOR_MIDDLE_NAME" default:"Петрович"`
	DoctorEmail          string `envconfig:"DOCTOR_EMAIL" default:"dr.alex@example.com"`
	DoctorSpecialization string `envconfig:"DOCTOR_SPECIALIZATION" default:"Терапевт"`

	PatientUsername  string `envconfig:"PATIENT_USERNAME" default:"patient_anna"`
	PatientPassword  string `envconfig:"PATIENT_PASSWORD" default:"patient"`
	PatientFirstName string `envconfig:"PATIENT_FIRST_NAME" default:"Анна"`
	PatientLastName  string `envconfig:"PATIENT_LAST_NAME" default:"Смирнова"`
	PatientPhone     string `envconfig:"PATIENT_PHONE" default:"+79990001122"`
	PatientEmail     string `envconfig:"PATIENT_EMAIL" default:"anna@example.com"`

	ConsultationOffset   time.Duration `envconfig:"CONSULTATION_OFFSET" default:"24h"`
	ConsultationDuration time.Duration `envconfig:"CONSULTATION_DURATION" default:"30m"`
	ConsultationNotes    string        `envconfig:"CONSULTATION_NOTES" default:"Первичная консультация"`
}

// LoadFixture reads the fixture from SEED_* environment variables
func LoadFixture() (Fixture, error) {
	var f Fixture
	if err := envconfig.Process("seed", &f); err != nil {
		return f, fmt.Errorf("failed to read seed settings: %w", err)
	}
	return f, nil
}

// Registrar creates users together with their role profile
type Registrar interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error)
}

// Result holds what the seed created or found
type Result struct {
	Admin        *model.User
	Clinic       *model.Clinic
	Doctor       *model.Doctor
	Patient      *model.Patient
	Consultation *model.Consultation
}

type Seeder struct {
	store     *repository.Store
	registrar Registrar
	now       func() time.Time
}

func NewSeeder(store *repository.Store, registrar Registrar) *Seeder {
	return &Seeder{store: store, registrar: registrar, now: time.Now}
}

// Run creates whatever part of the fixture is missing. Existing users are
// left as they are, passwords included.
func (s *Seeder) Run(ctx context.Context, f Fixture) (*Result, error) {
	res := &Result{}
	var err error

	res.Admin, err = s.user(ctx, &model.RegisterRequest{
		Username: f.AdminUsername,
		Password: f.AdminPassword,
		Role:     model.RoleAdmin,
		Email:    f.AdminEmail,
	})
	if err != nil {
		return nil, err
	}

	res.Clinic, err = s.clinic(ctx, f)
	if err != nil {
		return nil, err
	}

	doctorUser, err := s.user(ctx, &model.RegisterRequest{
		Username:   f.DoctorUsername,
		Password:   f.DoctorPassword,
		Role:       model.RoleDoctor,
		FirstName:  f.DoctorFirstName,
		LastName:   f.DoctorLastName,
		MiddleName: f.DoctorMiddleName,
		Email:      f.DoctorEmail,
	})
	if err != nil {
		return nil, err
	}
	res.Doctor, err = s.store.Doctors.GetByUserID(ctx, doctorUser.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load doctor profile: %w", err)
	}
	if res.Doctor.Specialization == "" {
		res.Doctor.Specialization = f.DoctorSpecialization
		if err := s.store.Doctors.Update(ctx, res.Doctor); err != nil {
			return nil, fmt.Errorf("failed to update doctor profile: %w", err)
		}
	}
	if err := s.store.Clinics.AddDoctor(ctx, res.Clinic.ID, res.Doctor.ID); err != nil {
		return nil, fmt.Errorf("failed to add doctor to clinic: %w", err)
	}

	patientUser, err := s.user(ctx, &model.RegisterRequest{
		Username:  f.PatientUsername,
		Password:  f.PatientPassword,
		Role:      model.RolePatient,
		FirstName: f.PatientFirstName,
		LastName:  f.PatientLastName,
		Email:     f.PatientEmail,
	})
	if err != nil {
		return nil, err
	}
	res.Patient, err = s.store.Patients.GetByUserID(ctx, patientUser.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patient profile: %w", err)
	}
	if res.Patient.Phone == "" && res.Patient.Email == "" {
		res.Patient.Phone = f.PatientPhone
		res.Patient.Email = f.PatientEmail
		if err := s.store.Patients.Update(ctx, res.Patient); err != nil {
			return nil, fmt.Errorf("failed to update patient profile: %w", err)
		}
	}

	res.Consultation, err = s.consultation(ctx, f, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Seeder) user(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	existing, err := s.store.Users.GetByUsername(ctx, req.Username)
	if err == nil {
		log.Ctx(ctx).Info().Str("username", req.Username).Msg("user exists, skipping")
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user %s: %w", req.Username, err)
	}

	user, err := s.registrar.Register(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to register user %s: %w", req.Username, err)
	}
	log.Ctx(ctx).Info().Str("username", user.Username).Str("role", string(user.Role)).Msg("user created")
	return user, nil
}

func (s *Seeder) clinic(ctx context.Context, f Fixture) (*model.Clinic, error) {
	clinic, err := s.store.Clinics.GetByName(ctx, f.ClinicName)
	if err == nil {
		return clinic, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up clinic: %w", err)
	}

	clinic = &model.Clinic{
		Name:            f.ClinicName,
		LegalAddress:    f.ClinicLegalAddress,
		PhysicalAddress: f.ClinicPhysicalAddress,
	}
	if err := s.store.Clinics.Create(ctx, clinic); err != nil {
		return nil, fmt.Errorf("failed to create clinic: %w", err)
	}
	log.Ctx(ctx).Info().Str("clinic", clinic.Name).Msg("clinic created")
	return clinic, nil
}

// consultation books one visit unless the pair already has one
func (s *Seeder) consultation(ctx context.Context, f Fixture, res *Result) (*model.Consultation, error) {
	existing, err := s.store.Consultations.List(ctx, model.ConsultationFilter{
		Scope:     model.Unrestricted(),
		DoctorID:  &res.Doctor.ID,
		PatientID: &res.Patient.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations: %w", err)
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	start := s.now().UTC().Add(f.ConsultationOffset).Truncate(time.Minute)
	c := &model.Consultation{
		DoctorID:  res.Doctor.ID,
		PatientID: res.Patient.ID,
		ClinicID:  &res.Clinic.ID,
		StartTime: start,
		EndTime:   start.Add(f.ConsultationDuration),
		Status:    model.ConsultationStatusPending,
		Notes:     f.ConsultationNotes,
	}
	if err := s.store.Consultations.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create consultation: %w", err)
	}
	log.Ctx(ctx).Info().Int64("consultation_id", c.ID).Msg("consultation created")
	return c, nil
}
