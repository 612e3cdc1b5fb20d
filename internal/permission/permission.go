// Package permission holds the role and ownership rules for consultations.
package permission

import "github.com/jwalitptl/mis-api/internal/model"

// Action names an operation on the consultation collection
type Action string

const (
	ActionCreate        Action = "create"
	ActionList          Action = "list"
	ActionRetrieve      Action = "retrieve"
	ActionUpdate        Action = "update"
	ActionPartialUpdate Action = "partial_update"
	ActionDestroy       Action = "destroy"
	ActionChangeStatus  Action = "change_status"
)

func IsAdmin(u *model.User) bool   { return u.IsAdmin() }
func IsDoctor(u *model.User) bool  { return u.IsDoctor() }
func IsPatient(u *model.User) bool { return u.IsPatient() }

// Allowed applies the collection-level rule, before any row is loaded.
func Allowed(u *model.User, action Action) bool {
	if u == nil {
		return false
	}
	if IsAdmin(u) {
		return true
	}

	switch action {
	case ActionCreate:
		return IsPatient(u)
	case ActionList, ActionRetrieve, ActionChangeStatus:
		return true
	case ActionUpdate, ActionPartialUpdate:
		return IsDoctor(u)
	case ActionDestroy:
		return IsPatient(u)
	}
	return false
}

// CanAccess applies the object-level rule. A consultation whose owning
// profile is not loaded is denied.
func CanAccess(u *model.User, c *model.Consultation) bool {
	if u == nil || c == nil {
		return false
	}
	if IsAdmin(u) {
		return true
	}

	switch {
	case IsPatient(u):
		return c.Patient != nil && c.Patient.UserID == u.ID
	case IsDoctor(u):
		return c.Doctor != nil && c.Doctor.UserID == u.ID
	}
	return false
}

// CanChangeStatus reports whether u is the admin or a party to c
func CanChangeStatus(u *model.User, c *model.Consultation) bool {
	return CanAccess(u, c)
}

// ScopeFor returns the rows u may read
func ScopeFor(u *model.User) model.Scope {
	switch {
	case IsAdmin(u):
		return model.Unrestricted()
	case IsDoctor(u):
		return model.Scope{Kind: model.ScopeDoctor, UserID: u.ID}
	case IsPatient(u):
		return model.Scope{Kind: model.ScopePatient, UserID: u.ID}
	}
	return model.Scope{Kind: model.ScopeNone}
}
