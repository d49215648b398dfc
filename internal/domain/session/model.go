package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/patient"
)

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in-progress"
	StatusTerminated = "terminated"
)

const (
	SituationWaiting  = "waiting"
	SituationReceived = "received"
)

// ServiceCashier is the denormalised pseudo-service the cashier queue keys
// on; it never appears in the service registry.
const ServiceCashier = "Cashier"

const (
	RoleNurse        = "nurse"
	RolePhysician    = "physician"
	RoleLabTech      = "lab-tech"
	RoleReceptionist = "receptionist"
)

var validResponsibleRoles = map[string]bool{
	RoleNurse:        true,
	RolePhysician:    true,
	RoleLabTech:      true,
	RoleReceptionist: true,
}

func ValidResponsibleRole(role string) bool { return validResponsibleRoles[role] }

// Session is one patient visit. current_service and responsible_role are
// strings on purpose: they survive renames and deletions of the reference
// rows and are the source of truth for the queue predicate.
type Session struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	OpenedBy         uuid.UUID  `json:"opened_by"`
	CurrentService   string     `json:"current_service"`
	ResponsibleRole  string     `json:"responsible_role"`
	Status           string     `json:"status"`
	PatientSituation string     `json:"patient_situation"`
	OpenedAt         time.Time  `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	LastActionAt     time.Time  `json:"last_action_at"`
}

func (s *Session) Terminated() bool { return s.Status == StatusTerminated }

// QueueRow is one entry of a (service, role) work queue.
type QueueRow struct {
	SessionID uuid.UUID       `json:"id_session"`
	Patient   patient.Summary `json:"patient"`
	Situation string          `json:"patient_situation"`
	OpenedAt  time.Time       `json:"opened_at"`
}
