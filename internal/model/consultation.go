package model

import (
	"bytes"
	"encoding/json"
	"time"
)

type ConsultationStatus string

const (
	ConsultationStatusPending   ConsultationStatus = "pending"
	ConsultationStatusConfirmed ConsultationStatus = "confirmed"
	ConsultationStatusStarted   ConsultationStatus = "started"
	ConsultationStatusCompleted ConsultationStatus = "completed"
	ConsultationStatusPaid      ConsultationStatus = "paid"
)

// ConsultationStatuses lists every accepted status. No transition order is implied.
var ConsultationStatuses = []ConsultationStatus{
	ConsultationStatusPending,
	ConsultationStatusConfirmed,
	ConsultationStatusStarted,
	ConsultationStatusCompleted,
	ConsultationStatusPaid,
}

func (s ConsultationStatus) Valid() bool {
	for _, v := range ConsultationStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Consultation is a scheduled visit of a patient to a doctor
type Consultation struct {
	ID        int64              `db:"id" json:"id"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	StartTime time.Time          `db:"start_time" json:"start_time"`
	EndTime   time.Time          `db:"end_time" json:"end_time"`
	Status    ConsultationStatus `db:"status" json:"status"`
	DoctorID  int64              `db:"doctor_id" json:"doctor_id"`
	PatientID int64              `db:"patient_id" json:"patient_id"`
	ClinicID  *int64             `db:"clinic_id" json:"clinic"`
	Notes     string             `db:"notes" json:"notes"`

	Doctor  *Doctor  `db:"-" json:"-"`
	Patient *Patient `db:"-" json:"-"`
}

// HasValidTimes reports whether the consultation starts before it ends
func (c *Consultation) HasValidTimes() bool {
	return c.StartTime.Before(c.EndTime)
}

// ConsultationResponse is the read representation with nested profiles
type ConsultationResponse struct {
	ID        int64              `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Status    ConsultationStatus `json:"status"`
	Doctor    *DoctorResponse    `json:"doctor"`
	Patient   *PatientResponse   `json:"patient"`
	Clinic    *int64             `json:"clinic"`
	Notes     string             `json:"notes"`
}

func NewConsultationResponse(c *Consultation) *ConsultationResponse {
	return &ConsultationResponse{
		ID:        c.ID,
		CreatedAt: c.CreatedAt,
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
		Status:    c.Status,
		Doctor:    NewDoctorResponse(c.Doctor),
		Patient:   NewPatientResponse(c.Patient),
		Clinic:    c.ClinicID,
		Notes:     c.Notes,
	}
}

func NewConsultationListResponse(items []*Consultation) []*ConsultationResponse {
	resp := make([]*ConsultationResponse, 0, len(items))
	for _, c := range items {
		resp = append(resp, NewConsultationResponse(c))
	}
	return resp
}

type CreateConsultationRequest struct {
	DoctorID  int64              `json:"doctor_id" binding:"required"`
	PatientID int64              `json:"patient_id" binding:"required"`
	ClinicID  *int64             `json:"clinic"`
	StartTime *time.Time         `json:"start_time" binding:"required"`
	EndTime   *time.Time         `json:"end_time" binding:"required"`
	Status    ConsultationStatus `json:"status" binding:"omitempty,consultation_status"`
	Notes     string             `json:"notes"`
}

// UpdateConsultationRequest is the body of PUT. Optional fields left out
// of the body keep their stored values.
type UpdateConsultationRequest struct {
	DoctorID  int64              `json:"doctor_id" binding:"required"`
	PatientID int64              `json:"patient_id" binding:"required"`
	ClinicID  OptionalID         `json:"clinic"`
	StartTime *time.Time         `json:"start_time" binding:"required"`
	EndTime   *time.Time         `json:"end_time" binding:"required"`
	Status    ConsultationStatus `json:"status" binding:"omitempty,consultation_status"`
	Notes     *string            `json:"notes"`
}

// PatchConsultationRequest carries only the fields present in the body
type PatchConsultationRequest struct {
	DoctorID  OptionalID          `json:"doctor_id"`
	PatientID OptionalID          `json:"patient_id"`
	ClinicID  OptionalID          `json:"clinic"`
	StartTime *time.Time          `json:"start_time"`
	EndTime   *time.Time          `json:"end_time"`
	Status    *ConsultationStatus `json:"status" binding:"omitempty,consultation_status"`
	Notes     *string             `json:"notes"`
}

// OptionalID distinguishes an absent id from an explicit null
type OptionalID struct {
	Set   bool
	Value *int64
}

func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// ConsultationFilter is the parsed list query
type ConsultationFilter struct {
	Scope     Scope
	Status    string
	ClinicID  *int64
	DoctorID  *int64
	PatientID *int64
	Search    []string
	Ordering  []OrderField
}

// OrderField is one validated ordering column
type OrderField struct {
	Field string
	Desc  bool
}

// ConsultationOrderFields are the columns a list may be ordered by
var ConsultationOrderFields = map[string]bool{
	"created_at": true,
	"start_time": true,
}

// DefaultConsultationOrdering is newest created first
var DefaultConsultationOrdering = []OrderField{{Field: "created_at", Desc: true}}
