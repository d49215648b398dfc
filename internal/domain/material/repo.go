package material

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Material) error
	GetByID(ctx context.Context, id uuid.UUID) (*Material, error)
	GetByCode(ctx context.Context, code string) (*Material, error)
	List(ctx context.Context, kind string) ([]*Material, error)
	Update(ctx context.Context, m *Material) error
	// AddStock increments the stock level.
	AddStock(ctx context.Context, id uuid.UUID, qty int) error
	// RemoveStock decrements the stock level only if enough remains,
	// reporting whether the decrement happened.
	RemoveStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

type MovementRepository interface {
	Create(ctx context.Context, mv *Movement) error
	ListByMaterial(ctx context.Context, materialID uuid.UUID) ([]*Movement, error)
}
