package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
)

type consultationRepository struct {
	BaseRepository
}

func NewConsultationRepository(base BaseRepository) repository.ConsultationRepository {
	return &consultationRepository{base}
}

type consultationRow struct {
	ID                   int64                    `db:"id"`
	CreatedAt            time.Time                `db:"created_at"`
	StartTime            time.Time                `db:"start_time"`
	EndTime              time.Time                `db:"end_time"`
	Status               model.ConsultationStatus `db:"status"`
	DoctorID             int64                    `db:"doctor_id"`
	PatientID            int64                    `db:"patient_id"`
	ClinicID             *int64                   `db:"clinic_id"`
	Notes                string                   `db:"notes"`
	DoctorSpecialization string                   `db:"doctor_specialization"`
	PatientPhone         string                   `db:"patient_phone"`
	PatientEmail         string                   `db:"patient_email"`
	DoctorUser           model.User               `db:"du"`
	PatientUser          model.User               `db:"pu"`
}

func (row *consultationRow) toModel() *model.Consultation {
	doctorUser := row.DoctorUser
	patientUser := row.PatientUser
	return &model.Consultation{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		StartTime: row.StartTime,
		EndTime:   row.EndTime,
		Status:    row.Status,
		DoctorID:  row.DoctorID,
		PatientID: row.PatientID,
		ClinicID:  row.ClinicID,
		Notes:     row.Notes,
		Doctor: &model.Doctor{
			ID:             row.DoctorID,
			UserID:         doctorUser.ID,
			Specialization: row.DoctorSpecialization,
			User:           &doctorUser,
		},
		Patient: &model.Patient{
			ID:     row.PatientID,
			UserID: patientUser.ID,
			Phone:  row.PatientPhone,
			Email:  row.PatientEmail,
			User:   &patientUser,
		},
	}
}

var consultationSelect = `
	SELECT c.id, c.created_at, c.start_time, c.end_time, c.status,
	       c.doctor_id, c.patient_id, c.clinic_id, c.notes,
	       d.specialization AS doctor_specialization,
	       p.phone AS patient_phone, p.email AS patient_email,
	       ` + userSelect("du", "du") + `,
	       ` + userSelect("pu", "pu") + `
	FROM consultations c
	JOIN doctors d ON d.id = c.doctor_id
	JOIN users du ON du.id = d.user_id
	JOIN patients p ON p.id = c.patient_id
	JOIN users pu ON pu.id = p.user_id
	WHERE 1 = 1
`

var orderColumns = map[string]string{
	"created_at": "c.created_at",
	"start_time": "c.start_time",
}

var searchColumns = []string{
	"du.first_name", "du.last_name", "du.middle_name",
	"pu.first_name", "pu.last_name", "pu.middle_name",
}

// scopeClause restricts the query to rows visible in scope. ok is false
// when the scope can see nothing.
func scopeClause(scope model.Scope, args []interface{}) (clause string, out []interface{}, ok bool) {
	switch scope.Kind {
	case model.ScopeAll:
		return "", args, true
	case model.ScopeDoctor:
		args = append(args, scope.UserID)
		return fmt.Sprintf(" AND d.user_id = $%d", len(args)), args, true
	case model.ScopePatient:
		args = append(args, scope.UserID)
		return fmt.Sprintf(" AND p.user_id = $%d", len(args)), args, true
	}
	return "", args, false
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	query := `
		INSERT INTO consultations (
			start_time, end_time, status, doctor_id, patient_id, clinic_id, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	if c.Status == "" {
		c.Status = model.ConsultationStatusPending
	}

	err := r.db.QueryRowxContext(ctx, query,
		c.StartTime,
		c.EndTime,
		c.Status,
		c.DoctorID,
		c.PatientID,
		c.ClinicID,
		c.Notes,
	).Scan(&c.ID, &c.CreatedAt)
	return mapError(err, "create consultation")
}

func (r *consultationRepository) Get(ctx context.Context, id int64, scope model.Scope) (*model.Consultation, error) {
	args := []interface{}{id}
	query := consultationSelect + " AND c.id = $1"

	clause, args, ok := scopeClause(scope, args)
	if !ok {
		return nil, repository.ErrNotFound
	}
	query += clause

	var row consultationRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, mapError(err, "get consultation")
	}

	consultation := row.toModel()
	if err := r.attachClinics(ctx, []*model.Consultation{consultation}); err != nil {
		return nil, err
	}
	return consultation, nil
}

func (r *consultationRepository) List(ctx context.Context, filter model.ConsultationFilter) ([]*model.Consultation, error) {
	query := consultationSelect
	clause, args, ok := scopeClause(filter.Scope, nil)
	if !ok {
		return []*model.Consultation{}, nil
	}
	query += clause

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND c.status = $%d", len(args))
	}
	if filter.ClinicID != nil {
		args = append(args, *filter.ClinicID)
		query += fmt.Sprintf(" AND c.clinic_id = $%d", len(args))
	}
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		query += fmt.Sprintf(" AND c.doctor_id = $%d", len(args))
	}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		query += fmt.Sprintf(" AND c.patient_id = $%d", len(args))
	}

	// every term must match at least one name column
	for _, term := range filter.Search {
		args = append(args, "%"+escapeLike(term)+"%")
		matches := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			matches[i] = fmt.Sprintf("%s ILIKE $%d", col, len(args))
		}
		query += " AND (" + strings.Join(matches, " OR ") + ")"
	}

	query += orderByClause(filter.Ordering)

	var rows []consultationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err, "list consultations")
	}

	consultations := make([]*model.Consultation, 0, len(rows))
	for i := range rows {
		consultations = append(consultations, rows[i].toModel())
	}
	if err := r.attachClinics(ctx, consultations); err != nil {
		return nil, err
	}
	return consultations, nil
}

func orderByClause(fields []model.OrderField) string {
	if len(fields) == 0 {
		fields = model.DefaultConsultationOrdering
	}

	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		col, ok := orderColumns[f.Field]
		if !ok {
			continue
		}
		if f.Desc {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	if len(parts) == 0 {
		return orderByClause(model.DefaultConsultationOrdering)
	}
	parts = append(parts, "c.id DESC")
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (r *consultationRepository) attachClinics(ctx context.Context, consultations []*model.Consultation) error {
	seen := make(map[int64]bool)
	var ids []int64
	for _, c := range consultations {
		if !seen[c.DoctorID] {
			seen[c.DoctorID] = true
			ids = append(ids, c.DoctorID)
		}
	}

	clinics, err := r.clinicIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, c := range consultations {
		c.Doctor.ClinicIDs = clinics[c.DoctorID]
	}
	return nil
}

func (r *consultationRepository) Update(ctx context.Context, c *model.Consultation) error {
	query := `
		UPDATE consultations
		SET start_time = $1, end_time = $2, status = $3, doctor_id = $4,
		    patient_id = $5, clinic_id = $6, notes = $7
		WHERE id = $8
	`
	result, err := r.db.ExecContext(ctx, query,
		c.StartTime,
		c.EndTime,
		c.Status,
		c.DoctorID,
		c.PatientID,
		c.ClinicID,
		c.Notes,
		c.ID,
	)
	if err != nil {
		return mapError(err, "update consultation")
	}
	return checkAffected(result, "update consultation")
}

func (r *consultationRepository) UpdateStatus(ctx context.Context, id int64, status model.ConsultationStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE consultations SET status = $1 WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return mapError(err, "update consultation status")
	}
	return checkAffected(result, "update consultation status")
}

func (r *consultationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM consultations WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete consultation")
	}
	return checkAffected(result, "delete consultation")
}
