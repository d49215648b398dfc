package hospitalisation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, h *Hospitalisation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospitalisation, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Hospitalisation, error)
	ListOpenBySession(ctx context.Context, sessionID uuid.UUID) ([]*Hospitalisation, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*Hospitalisation, error)
	Update(ctx context.Context, h *Hospitalisation) error
}
