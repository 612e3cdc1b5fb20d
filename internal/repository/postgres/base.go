package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/mis-api/internal/repository"
)

// integrityClass is the SQLSTATE class of constraint violations
const integrityClass = "23"

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err, "commit transaction")
	}
	return nil
}

// mapError turns driver errors into repository errors. Constraint
// violations become *repository.IntegrityError, missing rows
// repository.ErrNotFound.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == integrityClass {
		detail := pqErr.Detail
		if detail == "" {
			detail = pqErr.Message
		}
		return &repository.IntegrityError{
			Constraint: pqErr.Constraint,
			Detail:     detail,
		}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

// checkAffected returns repository.ErrNotFound when nothing was written
func checkAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var userFields = []string{
	"id", "username", "password_hash", "first_name", "last_name", "middle_name",
	"email", "role", "is_staff", "is_superuser", "is_active", "date_joined",
}

// userSelect lists the user columns of table aliased as "prefix.column"
// so sqlx scans them into a nested model.User.
func userSelect(table, prefix string) string {
	parts := make([]string, len(userFields))
	for i, f := range userFields {
		parts[i] = fmt.Sprintf(`%s.%s AS "%s.%s"`, table, f, prefix, f)
	}
	return strings.Join(parts, ", ")
}
