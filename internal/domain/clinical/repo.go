package clinical

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists the four append-only record kinds. Patient-scoped
// lists join through the session table and order by created_at descending.
type Repository interface {
	CreateObservation(ctx context.Context, o *Observation) error
	ListObservationsBySession(ctx context.Context, sessionID uuid.UUID) ([]*Observation, error)
	ListObservationsByPatient(ctx context.Context, patientID uuid.UUID) ([]*Observation, error)

	CreateMedicationPrescription(ctx context.Context, p *MedicationPrescription) error
	ListMedicationsBySession(ctx context.Context, sessionID uuid.UUID) ([]*MedicationPrescription, error)
	ListMedicationsByPatient(ctx context.Context, patientID uuid.UUID) ([]*MedicationPrescription, error)

	CreateExamPrescription(ctx context.Context, p *ExamPrescription) error
	GetExamPrescription(ctx context.Context, id uuid.UUID) (*ExamPrescription, error)
	ListExamsBySession(ctx context.Context, sessionID uuid.UUID) ([]*ExamPrescription, error)
	ListExamsByPatient(ctx context.Context, patientID uuid.UUID) ([]*ExamPrescription, error)

	CreateExamResult(ctx context.Context, r *ExamResult) error
	ListResultsBySession(ctx context.Context, sessionID uuid.UUID) ([]*ExamResult, error)
	ListResultsByPatient(ctx context.Context, patientID uuid.UUID) ([]*ExamResult, error)
}
