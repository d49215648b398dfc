package clinical

import (
	"time"

	"github.com/google/uuid"
)

// All clinical records are append-only: no update, no delete. Corrections
// are new entries.

type Observation struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type MedicationPrescription struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	AuthorID     uuid.UUID `json:"author_id"`
	Medication   string    `json:"medication"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	DurationDays int       `json:"duration_days"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ExamPrescription struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	ExamType  string    `json:"exam_type"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExamResult binds to its prescription; the session is copied from the
// prescription so the two can never disagree.
type ExamResult struct {
	ID             uuid.UUID `json:"id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	SessionID      uuid.UUID `json:"session_id"`
	AuthorID       uuid.UUID `json:"author_id"`
	Content        string    `json:"content"`
	PerformedAt    time.Time `json:"performed_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// History is a patient's clinical past, every list newest first.
type History struct {
	Observations []*Observation            `json:"observations"`
	Medications  []*MedicationPrescription `json:"medication_prescriptions"`
	Exams        []*ExamPrescription       `json:"exam_prescriptions"`
	Results      []*ExamResult             `json:"exam_results"`
}
