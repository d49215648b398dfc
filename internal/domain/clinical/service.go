package clinical

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/session"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
)

// SessionGuard is the slice of the coordinator the clinical record needs:
// refuse writes against terminated sessions, and report activity so the
// idle sweep sees it.
type SessionGuard interface {
	EnsureOpen(ctx context.Context, sessionID uuid.UUID) (*session.Session, error)
	Touch(ctx context.Context, sessionID uuid.UUID) error
}

type Service struct {
	repo      Repository
	sessions  SessionGuard
	publisher broadcast.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, sessions SessionGuard, publisher broadcast.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger.With().Str("component", "clinical").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) AddObservation(ctx context.Context, authorID, sessionID uuid.UUID, content string) (*Observation, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("le contenu de l'observation est requis")
	}
	if _, err := s.sessions.EnsureOpen(ctx, sessionID); err != nil {
		return nil, err
	}

	o := &Observation{SessionID: sessionID, AuthorID: authorID, Content: content}
	if err := s.repo.CreateObservation(ctx, o); err != nil {
		return nil, fmt.Errorf("create observation: %w", err)
	}
	s.touch(ctx, sessionID)
	s.publish(ctx, "observation", o.ID, o)
	return o, nil
}

type MedicationInput struct {
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	DurationDays int    `json:"duration_days"`
	Notes        string `json:"notes,omitempty"`
}

func (s *Service) PrescribeMedication(ctx context.Context, authorID, sessionID uuid.UUID, in MedicationInput) (*MedicationPrescription, error) {
	fe := apperr.NewFieldErrors()
	if strings.TrimSpace(in.Medication) == "" {
		fe.Add("medication", "le médicament est requis")
	}
	if strings.TrimSpace(in.Dosage) == "" {
		fe.Add("dosage", "la posologie est requise")
	}
	if in.DurationDays < 0 {
		fe.Add("duration_days", "la durée ne peut pas être négative")
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}
	if _, err := s.sessions.EnsureOpen(ctx, sessionID); err != nil {
		return nil, err
	}

	p := &MedicationPrescription{
		SessionID:    sessionID,
		AuthorID:     authorID,
		Medication:   in.Medication,
		Dosage:       in.Dosage,
		Frequency:    in.Frequency,
		DurationDays: in.DurationDays,
		Notes:        in.Notes,
	}
	if err := s.repo.CreateMedicationPrescription(ctx, p); err != nil {
		return nil, fmt.Errorf("create medication prescription: %w", err)
	}
	s.touch(ctx, sessionID)
	s.publish(ctx, "medication_prescription", p.ID, p)
	return p, nil
}

func (s *Service) PrescribeExam(ctx context.Context, authorID, sessionID uuid.UUID, examType, notes string) (*ExamPrescription, error) {
	if strings.TrimSpace(examType) == "" {
		return nil, apperr.Validation("le type d'examen est requis")
	}
	if _, err := s.sessions.EnsureOpen(ctx, sessionID); err != nil {
		return nil, err
	}

	p := &ExamPrescription{SessionID: sessionID, AuthorID: authorID, ExamType: examType, Notes: notes}
	if err := s.repo.CreateExamPrescription(ctx, p); err != nil {
		return nil, fmt.Errorf("create exam prescription: %w", err)
	}
	s.touch(ctx, sessionID)
	s.publish(ctx, "exam_prescription", p.ID, p)
	return p, nil
}

type ExamResultInput struct {
	PrescriptionID uuid.UUID  `json:"prescription_id"`
	Content        string     `json:"content"`
	PerformedAt    *time.Time `json:"performed_at,omitempty"`
}

// RecordExamResult appends a result to its prescription. The session comes
// from the prescription, and the result instant may not precede the
// prescription's.
func (s *Service) RecordExamResult(ctx context.Context, authorID uuid.UUID, in ExamResultInput) (*ExamResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, apperr.Validation("le contenu du résultat est requis")
	}
	prescription, err := s.repo.GetExamPrescription(ctx, in.PrescriptionID)
	if err != nil {
		return nil, apperr.NotFound("prescription d'examen introuvable")
	}
	if _, err := s.sessions.EnsureOpen(ctx, prescription.SessionID); err != nil {
		return nil, err
	}

	performedAt := s.now()
	if in.PerformedAt != nil {
		performedAt = *in.PerformedAt
	}
	if performedAt.Before(prescription.CreatedAt) {
		return nil, apperr.Validation("le résultat ne peut pas précéder la prescription")
	}

	res := &ExamResult{
		PrescriptionID: prescription.ID,
		SessionID:      prescription.SessionID,
		AuthorID:       authorID,
		Content:        in.Content,
		PerformedAt:    performedAt,
	}
	if err := s.repo.CreateExamResult(ctx, res); err != nil {
		return nil, fmt.Errorf("create exam result: %w", err)
	}
	s.touch(ctx, prescription.SessionID)
	s.publish(ctx, "exam_result", res.ID, res)
	return res, nil
}

// SessionRecord returns everything appended to one session.
func (s *Service) SessionRecord(ctx context.Context, sessionID uuid.UUID) (*History, error) {
	observations, err := s.repo.ListObservationsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	medications, err := s.repo.ListMedicationsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	exams, err := s.repo.ListExamsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	results, err := s.repo.ListResultsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return &History{Observations: observations, Medications: medications, Exams: exams, Results: results}, nil
}

// PatientHistory aggregates across all of a patient's sessions, newest
// first.
func (s *Service) PatientHistory(ctx context.Context, patientID uuid.UUID) (*History, error) {
	observations, err := s.repo.ListObservationsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	medications, err := s.repo.ListMedicationsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	exams, err := s.repo.ListExamsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	results, err := s.repo.ListResultsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return &History{Observations: observations, Medications: medications, Exams: exams, Results: results}, nil
}

func (s *Service) touch(ctx context.Context, sessionID uuid.UUID) {
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("session touch failed")
	}
}

func (s *Service) publish(ctx context.Context, model string, id uuid.UUID, payload any) {
	_ = s.publisher.Publish(ctx, broadcast.NewEvent(model, broadcast.ActionCreated, id.String(), payload))
}
