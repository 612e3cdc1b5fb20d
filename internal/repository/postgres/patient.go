package postgres

import (
	"context"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
)

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

var patientQuery = `
	SELECT p.id, p.user_id, '' AS specialization, p.phone, p.email, ` + userSelect("u", "u") + `
	FROM patients p
	JOIN users u ON u.id = p.user_id
`

func (r *patientRepository) Get(ctx context.Context, id int64) (*model.Patient, error) {
	return r.getOne(ctx, patientQuery+` WHERE p.id = $1`, id)
}

func (r *patientRepository) GetByUserID(ctx context.Context, userID int64) (*model.Patient, error) {
	return r.getOne(ctx, patientQuery+` WHERE p.user_id = $1`, userID)
}

func (r *patientRepository) getOne(ctx context.Context, query string, arg int64) (*model.Patient, error) {
	var row profileRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		return nil, mapError(err, "get patient")
	}

	user := row.User
	return &model.Patient{
		ID:     row.ID,
		UserID: row.UserID,
		Phone:  row.Phone,
		Email:  row.Email,
		User:   &user,
	}, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE patients SET phone = $1, email = $2 WHERE id = $3`,
		patient.Phone, patient.Email, patient.ID,
	)
	if err != nil {
		return mapError(err, "update patient")
	}
	return checkAffected(result, "update patient")
}
