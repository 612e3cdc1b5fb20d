package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
)

const userColumns = `
	id, username, password_hash, first_name, last_name, middle_name,
	email, role, is_staff, is_superuser, is_active, date_joined
`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Register(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			username, password_hash, first_name, last_name, middle_name,
			email, role, is_staff, is_superuser, is_active, date_joined
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, query,
			user.Username,
			user.PasswordHash,
			user.FirstName,
			user.LastName,
			user.MiddleName,
			user.Email,
			user.Role,
			user.IsStaff,
			user.IsSuperuser,
			user.IsActive,
			user.DateJoined,
		).Scan(&user.ID)
		if err != nil {
			return mapError(err, "create user")
		}

		switch user.Role {
		case model.RoleDoctor:
			_, err = tx.ExecContext(ctx, `INSERT INTO doctors (user_id) VALUES ($1)`, user.ID)
			return mapError(err, "create doctor profile")
		case model.RolePatient:
			_, err = tx.ExecContext(ctx, `INSERT INTO patients (user_id) VALUES ($1)`, user.ID)
			return mapError(err, "create patient profile")
		}
		return nil
	})
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, mapError(err, "get user")
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		return nil, mapError(err, "get user by username")
	}
	return &user, nil
}
