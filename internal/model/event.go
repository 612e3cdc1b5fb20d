package model

import "time"

const (
	EventConsultationCreated       = "consultation.created"
	EventConsultationUpdated       = "consultation.updated"
	EventConsultationDeleted       = "consultation.deleted"
	EventConsultationStatusChanged = "consultation.status_changed"
)

// ConsultationEvent is published after a consultation changes
type ConsultationEvent struct {
	Type           string             `json:"type"`
	ConsultationID int64              `json:"consultation_id"`
	Status         ConsultationStatus `json:"status"`
	PreviousStatus ConsultationStatus `json:"previous_status,omitempty"`
	DoctorID       int64              `json:"doctor_id"`
	PatientID      int64              `json:"patient_id"`
	PatientEmail   string             `json:"patient_email,omitempty"`
	PatientName    string             `json:"patient_name,omitempty"`
	StartTime      time.Time          `json:"start_time"`
	ActorID        int64              `json:"actor_id"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

func NewConsultationEvent(eventType string, c *Consultation, actor *User) *ConsultationEvent {
	evt := &ConsultationEvent{
		Type:           eventType,
		ConsultationID: c.ID,
		Status:         c.Status,
		DoctorID:       c.DoctorID,
		PatientID:      c.PatientID,
		StartTime:      c.StartTime,
		OccurredAt:     time.Now().UTC(),
	}
	if actor != nil {
		evt.ActorID = actor.ID
	}
	if c.Patient != nil {
		evt.PatientEmail = c.Patient.Email
		if evt.PatientEmail == "" && c.Patient.User != nil {
			evt.PatientEmail = c.Patient.User.Email
		}
		evt.PatientName = c.Patient.FullName()
	}
	return evt
}
