// Package memory is an in-process storage driver with the same
// semantics as the Postgres repositories. It backs tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/repository"
)

type db struct {
	mu sync.RWMutex

	users         map[int64]model.User
	clinics       map[int64]model.Clinic
	doctors       map[int64]model.Doctor
	patients      map[int64]model.Patient
	consultations map[int64]model.Consultation
	doctorClinics map[int64][]int64

	seq map[string]int64
}

// NewStore returns an empty store with every repository wired
func NewStore() *repository.Store {
	d := &db{
		users:         make(map[int64]model.User),
		clinics:       make(map[int64]model.Clinic),
		doctors:       make(map[int64]model.Doctor),
		patients:      make(map[int64]model.Patient),
		consultations: make(map[int64]model.Consultation),
		doctorClinics: make(map[int64][]int64),
		seq:           make(map[string]int64),
	}
	return &repository.Store{
		Users:         &userRepository{d},
		Clinics:       &clinicRepository{d},
		Doctors:       &doctorRepository{d},
		Patients:      &patientRepository{d},
		Consultations: &consultationRepository{d},
		Pinger:        d,
	}
}

func (d *db) PingContext(ctx context.Context) error {
	return ctx.Err()
}

func (d *db) next(table string) int64 {
	d.seq[table]++
	return d.seq[table]
}

func integrity(constraint, format string, args ...interface{}) error {
	return &repository.IntegrityError{
		Constraint: constraint,
		Detail:     fmt.Sprintf(format, args...),
	}
}

type userRepository struct{ *db }

func (r *userRepository) Register(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return integrity("users_username_key", "Key (username)=(%s) already exists.", user.Username)
		}
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}

	user.ID = r.next("users")
	r.users[user.ID] = *user

	switch user.Role {
	case model.RoleDoctor:
		id := r.next("doctors")
		r.doctors[id] = model.Doctor{ID: id, UserID: user.ID}
	case model.RolePatient:
		id := r.next("patients")
		r.patients[id] = model.Patient{ID: id, UserID: user.ID}
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

type clinicRepository struct{ *db }

func (r *clinicRepository) Create(ctx context.Context, clinic *model.Clinic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clinic.ID = r.next("clinics")
	r.clinics[clinic.ID] = *clinic
	return nil
}

func (r *clinicRepository) Get(ctx context.Context, id int64) (*model.Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clinics[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *clinicRepository) GetByName(ctx context.Context, name string) (*model.Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *model.Clinic
	for _, c := range r.clinics {
		if c.Name == name && (found == nil || c.ID < found.ID) {
			c := c
			found = &c
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (r *clinicRepository) AddDoctor(ctx context.Context, clinicID, doctorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clinics[clinicID]; !ok {
		return integrity("doctor_clinics_clinic_id_fkey", "Key (clinic_id)=(%d) is not present in table \"clinics\".", clinicID)
	}
	if _, ok := r.doctors[doctorID]; !ok {
		return integrity("doctor_clinics_doctor_id_fkey", "Key (doctor_id)=(%d) is not present in table \"doctors\".", doctorID)
	}
	for _, id := range r.doctorClinics[doctorID] {
		if id == clinicID {
			return nil
		}
	}
	ids := append(r.doctorClinics[doctorID], clinicID)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	r.doctorClinics[doctorID] = ids
	return nil
}

type doctorRepository struct{ *db }

func (r *doctorRepository) Get(ctx context.Context, id int64) (*model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.loadDoctor(d), nil
}

func (r *doctorRepository) GetByUserID(ctx context.Context, userID int64) (*model.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.doctors {
		if d.UserID == userID {
			return r.loadDoctor(d), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *doctorRepository) Update(ctx context.Context, doctor *model.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[doctor.ID]
	if !ok {
		return repository.ErrNotFound
	}
	d.Specialization = doctor.Specialization
	r.doctors[d.ID] = d
	return nil
}

type patientRepository struct{ *db }

func (r *patientRepository) Get(ctx context.Context, id int64) (*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.loadPatient(p), nil
}

func (r *patientRepository) GetByUserID(ctx context.Context, userID int64) (*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.patients {
		if p.UserID == userID {
			return r.loadPatient(p), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[patient.ID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Phone = patient.Phone
	p.Email = patient.Email
	r.patients[p.ID] = p
	return nil
}

// loadDoctor and loadPatient expect the read lock to be held

func (d *db) loadDoctor(doc model.Doctor) *model.Doctor {
	if u, ok := d.users[doc.UserID]; ok {
		doc.User = &u
	}
	doc.ClinicIDs = append([]int64(nil), d.doctorClinics[doc.ID]...)
	return &doc
}

func (d *db) loadPatient(p model.Patient) *model.Patient {
	if u, ok := d.users[p.UserID]; ok {
		p.User = &u
	}
	return &p
}

type consultationRepository struct{ *db }

// checkRefs mirrors the foreign keys and the time check constraint
func (r *consultationRepository) checkRefs(c *model.Consultation) error {
	if !c.HasValidTimes() {
		return integrity("consultations_time_check", "Failing row violates check constraint.")
	}
	if _, ok := r.doctors[c.DoctorID]; !ok {
		return integrity("consultations_doctor_id_fkey", "Key (doctor_id)=(%d) is not present in table \"doctors\".", c.DoctorID)
	}
	if _, ok := r.patients[c.PatientID]; !ok {
		return integrity("consultations_patient_id_fkey", "Key (patient_id)=(%d) is not present in table \"patients\".", c.PatientID)
	}
	if c.ClinicID != nil {
		if _, ok := r.clinics[*c.ClinicID]; !ok {
			return integrity("consultations_clinic_id_fkey", "Key (clinic_id)=(%d) is not present in table \"clinics\".", *c.ClinicID)
		}
	}
	return nil
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Status == "" {
		c.Status = model.ConsultationStatusPending
	}
	if err := r.checkRefs(c); err != nil {
		return err
	}

	c.ID = r.next("consultations")
	c.CreatedAt = time.Now().UTC()
	r.consultations[c.ID] = stripped(c)
	return nil
}

func (r *consultationRepository) Get(ctx context.Context, id int64, scope model.Scope) (*model.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.consultations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	loaded := r.load(c)
	if !visible(loaded, scope) {
		return nil, repository.ErrNotFound
	}
	return loaded, nil
}

func (r *consultationRepository) List(ctx context.Context, filter model.ConsultationFilter) ([]*model.Consultation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Consultation, 0)
	for _, c := range r.consultations {
		loaded := r.load(c)
		if !visible(loaded, filter.Scope) || !matches(loaded, filter) {
			continue
		}
		out = append(out, loaded)
	}

	sortConsultations(out, filter.Ordering)
	return out, nil
}

func (r *consultationRepository) Update(ctx context.Context, c *model.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.consultations[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if err := r.checkRefs(c); err != nil {
		return err
	}

	c.CreatedAt = existing.CreatedAt
	r.consultations[c.ID] = stripped(c)
	return nil
}

func (r *consultationRepository) UpdateStatus(ctx context.Context, id int64, status model.ConsultationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consultations[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	r.consultations[id] = c
	return nil
}

func (r *consultationRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.consultations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.consultations, id)
	return nil
}

func (r *consultationRepository) load(c model.Consultation) *model.Consultation {
	if doc, ok := r.doctors[c.DoctorID]; ok {
		c.Doctor = r.loadDoctor(doc)
	}
	if p, ok := r.patients[c.PatientID]; ok {
		c.Patient = r.loadPatient(p)
	}
	if c.ClinicID != nil {
		id := *c.ClinicID
		c.ClinicID = &id
	}
	return &c
}

// stripped copies c without its loaded relations
func stripped(c *model.Consultation) model.Consultation {
	out := *c
	out.Doctor = nil
	out.Patient = nil
	if c.ClinicID != nil {
		id := *c.ClinicID
		out.ClinicID = &id
	}
	return out
}

func visible(c *model.Consultation, scope model.Scope) bool {
	switch scope.Kind {
	case model.ScopeAll:
		return true
	case model.ScopeDoctor:
		return c.Doctor != nil && c.Doctor.UserID == scope.UserID
	case model.ScopePatient:
		return c.Patient != nil && c.Patient.UserID == scope.UserID
	}
	return false
}

func matches(c *model.Consultation, f model.ConsultationFilter) bool {
	if f.Status != "" && string(c.Status) != f.Status {
		return false
	}
	if f.ClinicID != nil && (c.ClinicID == nil || *c.ClinicID != *f.ClinicID) {
		return false
	}
	if f.DoctorID != nil && c.DoctorID != *f.DoctorID {
		return false
	}
	if f.PatientID != nil && c.PatientID != *f.PatientID {
		return false
	}

	var names []string
	for _, u := range []*model.User{userOf(c.Doctor), patientUser(c.Patient)} {
		if u != nil {
			names = append(names, strings.ToLower(u.FirstName), strings.ToLower(u.LastName), strings.ToLower(u.MiddleName))
		}
	}
	for _, term := range f.Search {
		term = strings.ToLower(term)
		found := false
		for _, name := range names {
			if strings.Contains(name, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func userOf(d *model.Doctor) *model.User {
	if d == nil {
		return nil
	}
	return d.User
}

func patientUser(p *model.Patient) *model.User {
	if p == nil {
		return nil
	}
	return p.User
}

func sortConsultations(items []*model.Consultation, ordering []model.OrderField) {
	var fields []model.OrderField
	for _, f := range ordering {
		if model.ConsultationOrderFields[f.Field] {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		fields = model.DefaultConsultationOrdering
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		for _, f := range fields {
			var ta, tb time.Time
			switch f.Field {
			case "created_at":
				ta, tb = a.CreatedAt, b.CreatedAt
			case "start_time":
				ta, tb = a.StartTime, b.StartTime
			}
			if ta.Equal(tb) {
				continue
			}
			if f.Desc {
				return ta.After(tb)
			}
			return ta.Before(tb)
		}
		return a.ID > b.ID
	})
}
