package model

// Doctor is the profile owned 1:1 by a user with the doctor role
type Doctor struct {
	ID             int64   `db:"id" json:"id"`
	UserID         int64   `db:"user_id" json:"user_id"`
	Specialization string  `db:"specialization" json:"specialization"`
	User           *User   `db:"-" json:"-"`
	ClinicIDs      []int64 `db:"-" json:"clinics"`
}

func (d *Doctor) FullName() string {
	return fullName(d.User)
}

type DoctorResponse struct {
	ID             int64       `json:"id"`
	User           UserSummary `json:"user"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	MiddleName     string      `json:"middle_name"`
	FullName       string      `json:"full_name"`
	Specialization string      `json:"specialization"`
	Clinics        []int64     `json:"clinics"`
}

func NewDoctorResponse(d *Doctor) *DoctorResponse {
	if d == nil {
		return nil
	}
	resp := &DoctorResponse{
		ID:             d.ID,
		User:           NewUserSummary(d.User),
		FullName:       d.FullName(),
		Specialization: d.Specialization,
		Clinics:        d.ClinicIDs,
	}
	if d.User != nil {
		resp.FirstName = d.User.FirstName
		resp.LastName = d.User.LastName
		resp.MiddleName = d.User.MiddleName
	}
	if resp.Clinics == nil {
		resp.Clinics = []int64{}
	}
	return resp
}
