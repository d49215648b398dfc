package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// GetByIDForUpdate takes the per-session row lock; only meaningful
	// inside a transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Session, error)
	// LockPatient takes the patient row lock so concurrent opens for the
	// same patient serialise. Only meaningful inside a transaction.
	LockPatient(ctx context.Context, patientID uuid.UUID) error
	// FindActiveByPatient returns the patient's session with
	// status <> terminated, if any; NotFound when there is none.
	FindActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Session, error)
	// Update persists every mutable column, last_action_at included, from
	// the struct as-is.
	Update(ctx context.Context, s *Session) error
	// MarkReceived flips patient_situation waiting -> received and touches
	// last_action_at in one guarded statement. Reports whether the row was
	// won.
	MarkReceived(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// Queue returns the (service, role) work queue ordered by opened_at
	// ascending, ties by session id.
	Queue(ctx context.Context, service, role string) ([]QueueRow, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Session, error)
	// ListIdle returns open sessions whose last_action_at is before the
	// cutoff.
	ListIdle(ctx context.Context, cutoff time.Time) ([]*Session, error)
}
