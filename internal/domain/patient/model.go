package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the admission-desk record. The matricule is allocated once at
// registration and never changes.
type Patient struct {
	ID               uuid.UUID `json:"id"`
	Matricule        string    `json:"matricule"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	BirthDate        time.Time `json:"birth_date"`
	Contact          string    `json:"contact"`
	NextOfKinName    string    `json:"next_of_kin_name"`
	NextOfKinContact string    `json:"next_of_kin_contact"`
	Email            *string   `json:"email,omitempty"`
	RegisteredBy     uuid.UUID `json:"registered_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Summary is the shape queue rows and history views embed.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Matricule string    `json:"matricule"`
	FullName  string    `json:"full_name"`
	BirthDate time.Time `json:"birth_date"`
	Contact   string    `json:"contact"`
}

func (p *Patient) Summary() Summary {
	return Summary{
		ID:        p.ID,
		Matricule: p.Matricule,
		FullName:  p.FullName(),
		BirthDate: p.BirthDate,
		Contact:   p.Contact,
	}
}

// MedicalRecord holds the patient's standing clinical baseline. Exactly one
// per patient, created lazily the first time a clinician needs it.
type MedicalRecord struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	BloodGroup  string    `json:"blood_group,omitempty"`
	Rhesus      string    `json:"rhesus,omitempty"`
	WeightKg    *float64  `json:"weight_kg,omitempty"`
	HeightCm    *float64  `json:"height_cm,omitempty"`
	Allergies   string    `json:"allergies,omitempty"`
	Antecedents string    `json:"antecedents,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var validBloodGroups = map[string]bool{
	"A": true, "B": true, "AB": true, "O": true,
}

var validRhesus = map[string]bool{
	"+": true, "-": true,
}
