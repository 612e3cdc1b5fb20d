package model

// Patient is the profile owned 1:1 by a user with the patient role
type Patient struct {
	ID     int64  `db:"id" json:"id"`
	UserID int64  `db:"user_id" json:"user_id"`
	Phone  string `db:"phone" json:"phone"`
	Email  string `db:"email" json:"email"`
	User   *User  `db:"-" json:"-"`
}

func (p *Patient) FullName() string {
	return fullName(p.User)
}

type PatientResponse struct {
	ID         int64       `json:"id"`
	User       UserSummary `json:"user"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	MiddleName string      `json:"middle_name"`
	FullName   string      `json:"full_name"`
	Phone      string      `json:"phone"`
	Email      string      `json:"email"`
}

func NewPatientResponse(p *Patient) *PatientResponse {
	if p == nil {
		return nil
	}
	resp := &PatientResponse{
		ID:       p.ID,
		User:     NewUserSummary(p.User),
		FullName: p.FullName(),
		Phone:    p.Phone,
		Email:    p.Email,
	}
	if p.User != nil {
		resp.FirstName = p.User.FirstName
		resp.LastName = p.User.LastName
		resp.MiddleName = p.User.MiddleName
	}
	return resp
}
