package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrIntegrity = errors.New("integrity constraint violated")
)

// IntegrityError is a unique, foreign-key or check violation
type IntegrityError struct {
	Constraint string
	Detail     string
}

func (e *IntegrityError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s)", e.Detail, e.Constraint)
	}
	return fmt.Sprintf("constraint %s violated", e.Constraint)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}
