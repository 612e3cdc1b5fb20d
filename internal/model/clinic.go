package model

type Clinic struct {
	ID              int64  `db:"id" json:"id"`
	Name            string `db:"name" json:"name"`
	LegalAddress    string `db:"legal_address" json:"legal_address"`
	PhysicalAddress string `db:"physical_address" json:"physical_address"`
}
