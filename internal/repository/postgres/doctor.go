package postgres

import (
	"context"

	"github.com/lib/pq"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
)

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

// profileRow is a doctor or patient row joined with its user
type profileRow struct {
	ID             int64      `db:"id"`
	UserID         int64      `db:"user_id"`
	Specialization string     `db:"specialization"`
	Phone          string     `db:"phone"`
	Email          string     `db:"email"`
	User           model.User `db:"u"`
}

var doctorQuery = `
	SELECT d.id, d.user_id, d.specialization, '' AS phone, '' AS email, ` + userSelect("u", "u") + `
	FROM doctors d
	JOIN users u ON u.id = d.user_id
`

func (r *doctorRepository) Get(ctx context.Context, id int64) (*model.Doctor, error) {
	return r.getOne(ctx, doctorQuery+` WHERE d.id = $1`, id)
}

func (r *doctorRepository) GetByUserID(ctx context.Context, userID int64) (*model.Doctor, error) {
	return r.getOne(ctx, doctorQuery+` WHERE d.user_id = $1`, userID)
}

func (r *doctorRepository) getOne(ctx context.Context, query string, arg int64) (*model.Doctor, error) {
	var row profileRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		return nil, mapError(err, "get doctor")
	}

	user := row.User
	doctor := &model.Doctor{
		ID:             row.ID,
		UserID:         row.UserID,
		Specialization: row.Specialization,
		User:           &user,
	}

	clinics, err := r.clinicIDs(ctx, []int64{doctor.ID})
	if err != nil {
		return nil, err
	}
	doctor.ClinicIDs = clinics[doctor.ID]
	return doctor, nil
}

func (r *doctorRepository) Update(ctx context.Context, doctor *model.Doctor) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE doctors SET specialization = $1 WHERE id = $2`,
		doctor.Specialization, doctor.ID,
	)
	if err != nil {
		return mapError(err, "update doctor")
	}
	return checkAffected(result, "update doctor")
}

// clinicIDs loads clinic memberships for several doctors at once
func (r *BaseRepository) clinicIDs(ctx context.Context, doctorIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(doctorIDs))
	if len(doctorIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		DoctorID int64 `db:"doctor_id"`
		ClinicID int64 `db:"clinic_id"`
	}
	query := `
		SELECT doctor_id, clinic_id
		FROM doctor_clinics
		WHERE doctor_id = ANY($1)
		ORDER BY clinic_id
	`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(doctorIDs)); err != nil {
		return nil, mapError(err, "list doctor clinics")
	}

	for _, row := range rows {
		out[row.DoctorID] = append(out[row.DoctorID], row.ClinicID)
	}
	return out, nil
}
