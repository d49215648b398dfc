package material

import (
	"time"

	"github.com/google/uuid"
)

const (
	KindMedical = "medical"
	KindDurable = "durable"
)

// Material is the shared base record. Exactly one specialisation is set,
// matching Kind.
type Material struct {
	ID        uuid.UUID      `json:"id"`
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	UnitPrice float64        `json:"unit_price"`
	Stock     int            `json:"stock"`
	Kind      string         `json:"kind"`
	Medical   *MedicalSpec   `json:"medical,omitempty"`
	Durable   *DurableSpec   `json:"durable,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MedicalSpec holds the fields of dispensable stock.
type MedicalSpec struct {
	Category       string  `json:"category"`
	DispensingUnit string  `json:"dispensing_unit"`
	SalePrice      float64 `json:"sale_price"`
}

// DurableSpec holds the fields of equipment tracked by location.
type DurableSpec struct {
	Condition string `json:"condition"`
	Location  string `json:"location"`
}

// Movement directions.
const (
	MovementIn  = "in"
	MovementOut = "out"
)

// Movement is one stock-level change, kept for audit.
type Movement struct {
	ID         uuid.UUID `json:"id"`
	MaterialID uuid.UUID `json:"material_id"`
	Direction  string    `json:"direction"`
	Quantity   int       `json:"quantity"`
	Reference  string    `json:"reference,omitempty"`
	RecordedBy uuid.UUID `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"`
}
