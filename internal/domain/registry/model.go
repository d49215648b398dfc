package registry

import (
	"time"

	"github.com/google/uuid"
)

// Service is a hospital service (department). The name is unique and is what
// sessions carry as their denormalised current_service.
type Service struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	HeadOfService *uuid.UUID `db:"head_of_service_id" json:"head_of_service_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Room maps to the room table. seats_free is the shared counter the
// hospitalisation ledger mutates; 0 <= seats_free <= seats_total always.
type Room struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Number       string    `db:"number" json:"number"`
	SeatsTotal   int       `db:"seats_total" json:"seats_total"`
	SeatsFree    int       `db:"seats_free" json:"seats_free"`
	TariffPerDay float64   `db:"tariff_per_day" json:"tariff_per_day"`
	ServiceID    uuid.UUID `db:"service_id" json:"service_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
