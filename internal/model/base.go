package model

// ScopeKind selects which consultations a query may see
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeAll
	ScopeDoctor
	ScopePatient
)

// Scope restricts consultation reads to the rows an actor may see.
// UserID is the owning user of the doctor or patient profile.
type Scope struct {
	Kind   ScopeKind
	UserID int64
}

// Unrestricted returns a scope that sees every row
func Unrestricted() Scope {
	return Scope{Kind: ScopeAll}
}
