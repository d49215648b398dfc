package hospitalisation

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusInProgress = "in-progress"
	StatusTerminated = "terminated"
)

// Hospitalisation is one stay in one room, bounded by the owning session.
// The per-day tariff is copied from the room at admission so later tariff
// changes do not rewrite past stays.
type Hospitalisation struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    uuid.UUID  `json:"session_id"`
	RoomID       uuid.UUID  `json:"room_id"`
	PhysicianID  uuid.UUID  `json:"physician_id"`
	Status       string     `json:"status"`
	TariffPerDay float64    `json:"tariff_per_day"`
	Reason       string     `json:"reason,omitempty"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

func (h *Hospitalisation) Terminated() bool { return h.Status == StatusTerminated }
