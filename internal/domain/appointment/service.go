package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
)

type Service struct {
	repo      Repository
	publisher broadcast.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, publisher broadcast.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("component", "appointment").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CreateInput struct {
	PatientID   uuid.UUID `json:"patient_id"`
	PhysicianID uuid.UUID `json:"physician_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Reason      string    `json:"reason,omitempty"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	fe := apperr.NewFieldErrors()
	if in.PatientID == uuid.Nil {
		fe.Add("patient_id", "le patient est requis")
	}
	if in.PhysicianID == uuid.Nil {
		fe.Add("physician_id", "le médecin est requis")
	}
	if in.ScheduledAt.IsZero() {
		fe.Add("scheduled_at", "la date du rendez-vous est requise")
	} else if in.ScheduledAt.Before(s.now()) {
		fe.Add("scheduled_at", "le rendez-vous ne peut pas être dans le passé")
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:   in.PatientID,
		PhysicianID: in.PhysicianID,
		ScheduledAt: in.ScheduledAt,
		Status:      StatusPending,
		Reason:      in.Reason,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	_ = s.publisher.Publish(ctx, broadcast.NewEvent("appointment", broadcast.ActionCreated, a.ID.String(), a))
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("rendez-vous introuvable")
	}
	return a, nil
}

// SetStatus moves the appointment between pending, honoured and cancelled.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	if !validStatuses[status] {
		return nil, apperr.Validation(
			fmt.Sprintf("statut %q invalide (pending, honoured ou cancelled)", status))
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Status = status
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	_ = s.publisher.Publish(ctx, broadcast.NewEvent("appointment", broadcast.ActionUpdated, a.ID.String(), a))
	return a, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) ListByPhysician(ctx context.Context, physicianID uuid.UUID) ([]*Appointment, error) {
	return s.repo.ListByPhysician(ctx, physicianID)
}
