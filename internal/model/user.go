package model

import (
	"time"
)

// Role is the single role a user holds
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Roles lists every role accepted at registration
var Roles = []Role{RoleAdmin, RoleDoctor, RolePatient}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// User represents a system user
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	MiddleName   string    `json:"middle_name" db:"middle_name"`
	Email        string    `json:"email" db:"email"`
	Role         Role      `json:"role" db:"role"`
	IsStaff      bool      `json:"is_staff" db:"is_staff"`
	IsSuperuser  bool      `json:"is_superuser" db:"is_superuser"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	DateJoined   time.Time `json:"date_joined" db:"date_joined"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

func (u *User) IsDoctor() bool {
	return u != nil && u.Role == RoleDoctor
}

func (u *User) IsPatient() bool {
	return u != nil && u.Role == RolePatient
}

// UserSummary is the nested read-only user representation
type UserSummary struct {
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
}

func NewUserSummary(u *User) UserSummary {
	if u == nil {
		return UserSummary{}
	}
	return UserSummary{
		Username:   u.Username,
		FirstName:  u.FirstName,
		MiddleName: u.MiddleName,
		LastName:   u.LastName,
		Email:      u.Email,
		Role:       u.Role,
	}
}

// fullName joins last, first and middle names, skipping empty parts
func fullName(u *User) string {
	if u == nil {
		return ""
	}
	name := ""
	for _, part := range []string{u.LastName, u.FirstName, u.MiddleName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}
