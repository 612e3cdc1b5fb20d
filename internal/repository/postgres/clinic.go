package postgres

import (
	"context"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
)

type clinicRepository struct {
	BaseRepository
}

func NewClinicRepository(base BaseRepository) repository.ClinicRepository {
	return &clinicRepository{base}
}

func (r *clinicRepository) Create(ctx context.Context, clinic *model.Clinic) error {
	query := `
		INSERT INTO clinics (name, legal_address, physical_address)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, query,
		clinic.Name,
		clinic.LegalAddress,
		clinic.PhysicalAddress,
	).Scan(&clinic.ID)
	return mapError(err, "create clinic")
}

func (r *clinicRepository) Get(ctx context.Context, id int64) (*model.Clinic, error) {
	query := `SELECT id, name, legal_address, physical_address FROM clinics WHERE id = $1`

	var clinic model.Clinic
	if err := r.db.GetContext(ctx, &clinic, query, id); err != nil {
		return nil, mapError(err, "get clinic")
	}
	return &clinic, nil
}

func (r *clinicRepository) GetByName(ctx context.Context, name string) (*model.Clinic, error) {
	query := `
		SELECT id, name, legal_address, physical_address
		FROM clinics
		WHERE name = $1
		ORDER BY id
		LIMIT 1
	`

	var clinic model.Clinic
	if err := r.db.GetContext(ctx, &clinic, query, name); err != nil {
		return nil, mapError(err, "get clinic by name")
	}
	return &clinic, nil
}

func (r *clinicRepository) AddDoctor(ctx context.Context, clinicID, doctorID int64) error {
	query := `
		INSERT INTO doctor_clinics (doctor_id, clinic_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, doctorID, clinicID)
	return mapError(err, "add doctor to clinic")
}
