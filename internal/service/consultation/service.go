package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/mis-api/internal/model"
	"github.com/jwalitptl/mis-api/internal/permission"
	"github.com/jwalitptl/mis-api/internal/repository"
	apperrors "github.com/jwalitptl/mis-api/pkg/errors"
	"github.com/jwalitptl/mis-api/pkg/messaging"
	"github.com/jwalitptl/mis-api/pkg/metrics"
)

const (
	msgStatusRequired   = "Status is required"
	msgInvalidStatus    = "Invalid status value"
	msgPermissionDenied = "Permission denied"
	msgEndBeforeStart   = "end_time must be after start_time"
	msgNotNull          = "This field may not be null."
)

type Service struct {
	consultations repository.ConsultationRepository
	doctors       repository.DoctorRepository
	patients      repository.PatientRepository
	clinics       repository.ClinicRepository
	publisher     messaging.Publisher
	metrics       *metrics.Metrics
}

func NewService(store *repository.Store, publisher messaging.Publisher, m *metrics.Metrics) *Service {
	if publisher == nil {
		publisher = messaging.NopPublisher()
	}
	return &Service{
		consultations: store.Consultations,
		doctors:       store.Doctors,
		patients:      store.Patients,
		clinics:       store.Clinics,
		publisher:     publisher,
		metrics:       m,
	}
}

// Authorize applies the collection rule for action
func (s *Service) Authorize(actor *model.User, action permission.Action) error {
	if !permission.Allowed(actor, action) {
		return apperrors.Forbidden("")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor *model.User, req *model.CreateConsultationRequest) (*model.Consultation, error) {
	if err := s.Authorize(actor, permission.ActionCreate); err != nil {
		return nil, err
	}

	c := &model.Consultation{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		ClinicID:  req.ClinicID,
		StartTime: *req.StartTime,
		EndTime:   *req.EndTime,
		Status:    req.Status,
		Notes:     req.Notes,
	}
	if c.Status == "" {
		c.Status = model.ConsultationStatusPending
	}

	if err := s.validate(ctx, c); err != nil {
		return nil, err
	}

	if err := s.consultations.Create(ctx, c); err != nil {
		s.metrics.ObserveConsultation("create", err)
		return nil, storageError(err)
	}

	created, err := s.consultations.Get(ctx, c.ID, model.Unrestricted())
	s.metrics.ObserveConsultation("create", err)
	if err != nil {
		return nil, storageError(err)
	}

	s.publish(ctx, model.EventConsultationCreated, created, actor, "")
	return created, nil
}

// List returns the consultations visible to actor that match filter
func (s *Service) List(ctx context.Context, actor *model.User, filter model.ConsultationFilter) ([]*model.Consultation, error) {
	if err := s.Authorize(actor, permission.ActionList); err != nil {
		return nil, err
	}

	filter.Scope = permission.ScopeFor(actor)
	items, err := s.consultations.List(ctx, filter)
	if err != nil {
		return nil, storageError(err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, actor *model.User, id int64) (*model.Consultation, error) {
	return s.load(ctx, actor, id, permission.ActionRetrieve)
}

// Update replaces the required fields. Clinic, notes and status keep
// their stored values when the body leaves them out.
func (s *Service) Update(ctx context.Context, actor *model.User, id int64, req *model.UpdateConsultationRequest) (*model.Consultation, error) {
	c, err := s.load(ctx, actor, id, permission.ActionUpdate)
	if err != nil {
		return nil, err
	}

	c.DoctorID = req.DoctorID
	c.PatientID = req.PatientID
	c.StartTime = *req.StartTime
	c.EndTime = *req.EndTime
	if req.ClinicID.Set {
		c.ClinicID = req.ClinicID.Value
	}
	if req.Notes != nil {
		c.Notes = *req.Notes
	}
	if req.Status != "" {
		c.Status = req.Status
	}

	return s.save(ctx, actor, c)
}

// PartialUpdate changes only the fields present in req
func (s *Service) PartialUpdate(ctx context.Context, actor *model.User, id int64, req *model.PatchConsultationRequest) (*model.Consultation, error) {
	c, err := s.load(ctx, actor, id, permission.ActionPartialUpdate)
	if err != nil {
		return nil, err
	}

	nulls := make(map[string][]string)
	if req.DoctorID.Set && req.DoctorID.Value == nil {
		nulls["doctor_id"] = []string{msgNotNull}
	}
	if req.PatientID.Set && req.PatientID.Value == nil {
		nulls["patient_id"] = []string{msgNotNull}
	}
	if len(nulls) > 0 {
		return nil, apperrors.Validation(nulls)
	}

	if req.DoctorID.Set {
		c.DoctorID = *req.DoctorID.Value
	}
	if req.PatientID.Set {
		c.PatientID = *req.PatientID.Value
	}
	if req.ClinicID.Set {
		c.ClinicID = req.ClinicID.Value
	}
	if req.StartTime != nil {
		c.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		c.EndTime = *req.EndTime
	}
	if req.Status != nil {
		c.Status = *req.Status
	}
	if req.Notes != nil {
		c.Notes = *req.Notes
	}

	return s.save(ctx, actor, c)
}

func (s *Service) save(ctx context.Context, actor *model.User, c *model.Consultation) (*model.Consultation, error) {
	if err := s.validate(ctx, c); err != nil {
		return nil, err
	}

	if err := s.consultations.Update(ctx, c); err != nil {
		s.metrics.ObserveConsultation("update", err)
		return nil, storageError(err)
	}

	updated, err := s.consultations.Get(ctx, c.ID, model.Unrestricted())
	s.metrics.ObserveConsultation("update", err)
	if err != nil {
		return nil, storageError(err)
	}

	s.publish(ctx, model.EventConsultationUpdated, updated, actor, "")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor *model.User, id int64) error {
	c, err := s.load(ctx, actor, id, permission.ActionDestroy)
	if err != nil {
		return err
	}

	err = s.consultations.Delete(ctx, id)
	s.metrics.ObserveConsultation("delete", err)
	if err != nil {
		return storageError(err)
	}

	s.publish(ctx, model.EventConsultationDeleted, c, actor, "")
	return nil
}

// ChangeStatus sets the status of any existing consultation the actor
// is a party to. Any status may follow any other.
func (s *Service) ChangeStatus(ctx context.Context, actor *model.User, id int64, status string) (*model.Consultation, error) {
	if err := s.Authorize(actor, permission.ActionChangeStatus); err != nil {
		return nil, err
	}

	// Unscoped on purpose: a consultation outside the actor's scope
	// answers 403 here rather than 404.
	c, err := s.consultations.Get(ctx, id, model.Unrestricted())
	if err != nil {
		return nil, storageError(err)
	}

	if status == "" {
		return nil, apperrors.BadRequest(msgStatusRequired, nil)
	}
	next := model.ConsultationStatus(status)
	if !next.Valid() {
		return nil, apperrors.BadRequest(msgInvalidStatus, nil)
	}
	if !permission.CanChangeStatus(actor, c) {
		return nil, apperrors.Forbidden(msgPermissionDenied)
	}

	err = s.consultations.UpdateStatus(ctx, id, next)
	s.metrics.ObserveConsultation("change_status", err)
	if err != nil {
		return nil, storageError(err)
	}
	if s.metrics != nil {
		s.metrics.StatusChanges.WithLabelValues(status).Inc()
	}

	previous := c.Status
	c.Status = next
	s.publish(ctx, model.EventConsultationStatusChanged, c, actor, previous)
	return c, nil
}

// load applies the collection rule, the read scope and then the object rule
func (s *Service) load(ctx context.Context, actor *model.User, id int64, action permission.Action) (*model.Consultation, error) {
	if err := s.Authorize(actor, action); err != nil {
		return nil, err
	}

	c, err := s.consultations.Get(ctx, id, permission.ScopeFor(actor))
	if err != nil {
		return nil, storageError(err)
	}
	if !permission.CanAccess(actor, c) {
		return nil, apperrors.Forbidden("")
	}
	return c, nil
}

// validate checks references first, then the time window
func (s *Service) validate(ctx context.Context, c *model.Consultation) error {
	fields := make(map[string][]string)

	if _, err := s.doctors.Get(ctx, c.DoctorID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return storageError(err)
		}
		fields["doctor_id"] = []string{invalidPK(c.DoctorID)}
	}
	if _, err := s.patients.Get(ctx, c.PatientID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return storageError(err)
		}
		fields["patient_id"] = []string{invalidPK(c.PatientID)}
	}
	if c.ClinicID != nil {
		if _, err := s.clinics.Get(ctx, *c.ClinicID); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return storageError(err)
			}
			fields["clinic"] = []string{invalidPK(*c.ClinicID)}
		}
	}
	if !c.Status.Valid() {
		fields["status"] = []string{fmt.Sprintf("%q is not a valid choice.", c.Status)}
	}
	if len(fields) > 0 {
		return apperrors.Validation(fields)
	}

	if !c.HasValidTimes() {
		return apperrors.Validation(map[string][]string{
			"non_field_errors": {msgEndBeforeStart},
		})
	}
	return nil
}

func invalidPK(id int64) string {
	return fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id)
}

func (s *Service) publish(ctx context.Context, eventType string, c *model.Consultation, actor *model.User, previous model.ConsultationStatus) {
	evt := model.NewConsultationEvent(eventType, c, actor)
	evt.PreviousStatus = previous

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	err := s.publisher.Publish(pubCtx, evt)
	s.metrics.ObservePublish(eventType, err)
	if err != nil {
		log.Ctx(ctx).Warn().
			Err(err).
			Str("event_type", eventType).
			Int64("consultation_id", c.ID).
			Msg("failed to publish consultation event")
	}
}

// storageError maps repository errors onto application errors
func storageError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(err)
	case errors.Is(err, repository.ErrIntegrity):
		return apperrors.Integrity(err)
	default:
		return apperrors.Internal(err)
	}
}
