package registry

import (
	"context"

	"github.com/google/uuid"
)

type ServiceRepository interface {
	Create(ctx context.Context, s *Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*Service, error)
	GetByName(ctx context.Context, name string) (*Service, error)
	List(ctx context.Context) ([]*Service, error)
	Update(ctx context.Context, s *Service) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	GetByNumber(ctx context.Context, number string) (*Room, error)
	List(ctx context.Context) ([]*Room, error)
	ListByService(ctx context.Context, serviceID uuid.UUID) ([]*Room, error)
	Update(ctx context.Context, r *Room) error
	Delete(ctx context.Context, id uuid.UUID) error
	// FindWithFreeSeat returns a room with seats_free > 0, optionally
	// restricted to a service.
	FindWithFreeSeat(ctx context.Context, serviceID *uuid.UUID) (*Room, error)
	// DecrementSeats takes one seat. Returns false when the room had none
	// free; the guard and the update are one statement.
	DecrementSeats(ctx context.Context, roomID uuid.UUID) (bool, error)
	// IncrementSeats releases one seat, clamped to seats_total.
	IncrementSeats(ctx context.Context, roomID uuid.UUID) error
}

// MatriculeRepository owns the per-prefix per-year counters behind matricule
// allocation.
type MatriculeRepository interface {
	// NextSequence atomically increments and returns the counter for
	// (prefix, year). Concurrent callers never observe the same value.
	NextSequence(ctx context.Context, prefix string, year int) (int, error)
}
