package patient

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/pkg/pagination"
)

const matriculePrefix = "PAT"

// MatriculeAllocator hands out the next patient matricule. Satisfied by the
// registry service.
type MatriculeAllocator interface {
	NextMatricule(ctx context.Context, prefix string, width int) (string, error)
}

var phonePattern = regexp.MustCompile(`^6\d{8}$`)

type Service struct {
	patients   Repository
	records    RecordRepository
	matricules MatriculeAllocator
	tx         db.TxRunner
	publisher  broadcast.Publisher
	logger     zerolog.Logger
}

func NewService(
	patients Repository,
	records RecordRepository,
	matricules MatriculeAllocator,
	tx db.TxRunner,
	publisher broadcast.Publisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		patients:   patients,
		records:    records,
		matricules: matricules,
		tx:         tx,
		publisher:  publisher,
		logger:     logger.With().Str("component", "patient").Logger(),
	}
}

type CreateInput struct {
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	BirthDate        time.Time `json:"birth_date"`
	Contact          string    `json:"contact"`
	NextOfKinName    string    `json:"next_of_kin_name"`
	NextOfKinContact string    `json:"next_of_kin_contact"`
	Email            *string   `json:"email,omitempty"`
}

func (in *CreateInput) validate() error {
	fe := apperr.NewFieldErrors()
	if strings.TrimSpace(in.LastName) == "" {
		fe.Add("last_name", "le nom est requis")
	}
	if in.BirthDate.IsZero() {
		fe.Add("birth_date", "la date de naissance est requise")
	} else if in.BirthDate.After(time.Now()) {
		fe.Add("birth_date", "la date de naissance est dans le futur")
	}
	if !phonePattern.MatchString(in.Contact) {
		fe.Add("contact", "le numéro doit commencer par 6 et compter 9 chiffres")
	}
	if !phonePattern.MatchString(in.NextOfKinContact) {
		fe.Add("next_of_kin_contact", "le numéro doit commencer par 6 et compter 9 chiffres")
	}
	if in.Contact != "" && in.Contact == in.NextOfKinContact {
		fe.Add("next_of_kin_contact", "le contact du proche doit différer de celui du patient")
	}
	if in.Email != nil && !strings.Contains(*in.Email, "@") {
		fe.Add("email", "adresse email invalide")
	}
	return fe.Err()
}

// Create registers a patient and allocates the matricule in the same
// transaction.
func (s *Service) Create(ctx context.Context, registrarID uuid.UUID, in CreateInput) (*Patient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	for _, phone := range []string{in.Contact, in.NextOfKinContact} {
		if _, err := s.patients.FindByContact(ctx, phone); err == nil {
			return nil, apperr.Validation(
				fmt.Sprintf("le numéro %s est déjà enregistré pour un autre patient", phone))
		}
	}
	if in.Email != nil {
		if _, err := s.patients.FindByEmail(ctx, *in.Email); err == nil {
			return nil, apperr.Validation("cette adresse email est déjà enregistrée")
		}
	}

	p := &Patient{
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		BirthDate:        in.BirthDate,
		Contact:          in.Contact,
		NextOfKinName:    strings.TrimSpace(in.NextOfKinName),
		NextOfKinContact: in.NextOfKinContact,
		Email:            in.Email,
		RegisteredBy:     registrarID,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		matricule, err := s.matricules.NextMatricule(ctx, matriculePrefix, 5)
		if err != nil {
			return err
		}
		p.Matricule = matricule
		return s.patients.Create(ctx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	s.publish(ctx, broadcast.ActionCreated, p)
	s.logger.Info().Str("matricule", p.Matricule).Msg("patient registered")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("patient introuvable")
	}
	return p, nil
}

func (s *Service) GetByMatricule(ctx context.Context, matricule string) (*Patient, error) {
	p, err := s.patients.GetByMatricule(ctx, matricule)
	if err != nil {
		return nil, apperr.NotFound("patient introuvable")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, query string, params pagination.Params) ([]*Patient, int, error) {
	if query = strings.TrimSpace(query); query != "" {
		return s.patients.Search(ctx, query, params)
	}
	return s.patients.List(ctx, params)
}

type UpdateInput struct {
	FirstName        *string    `json:"first_name,omitempty"`
	LastName         *string    `json:"last_name,omitempty"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	Contact          *string    `json:"contact,omitempty"`
	NextOfKinName    *string    `json:"next_of_kin_name,omitempty"`
	NextOfKinContact *string    `json:"next_of_kin_contact,omitempty"`
	Email            *string    `json:"email,omitempty"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Patient, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Contact != nil && *in.Contact != p.Contact {
		if !phonePattern.MatchString(*in.Contact) {
			return nil, apperr.Validation("le numéro doit commencer par 6 et compter 9 chiffres")
		}
		if other, err := s.patients.FindByContact(ctx, *in.Contact); err == nil && other.ID != p.ID {
			return nil, apperr.Validation("ce numéro est déjà enregistré pour un autre patient")
		}
		p.Contact = *in.Contact
	}
	if in.NextOfKinContact != nil && *in.NextOfKinContact != p.NextOfKinContact {
		if !phonePattern.MatchString(*in.NextOfKinContact) {
			return nil, apperr.Validation("le numéro doit commencer par 6 et compter 9 chiffres")
		}
		if other, err := s.patients.FindByContact(ctx, *in.NextOfKinContact); err == nil && other.ID != p.ID {
			return nil, apperr.Validation("ce numéro est déjà enregistré pour un autre patient")
		}
		p.NextOfKinContact = *in.NextOfKinContact
	}
	if in.Email != nil {
		if !strings.Contains(*in.Email, "@") {
			return nil, apperr.Validation("adresse email invalide")
		}
		if other, err := s.patients.FindByEmail(ctx, *in.Email); err == nil && other.ID != p.ID {
			return nil, apperr.Validation("cette adresse email est déjà enregistrée")
		}
		p.Email = in.Email
	}
	if in.FirstName != nil {
		p.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		if strings.TrimSpace(*in.LastName) == "" {
			return nil, apperr.Validation("le nom est requis")
		}
		p.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.BirthDate != nil {
		p.BirthDate = *in.BirthDate
	}
	if in.NextOfKinName != nil {
		p.NextOfKinName = strings.TrimSpace(*in.NextOfKinName)
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	s.publish(ctx, broadcast.ActionUpdated, p)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.patients.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	_ = s.publisher.Publish(ctx, broadcast.NewEvent("patient", broadcast.ActionDeleted, id.String(), nil))
	return nil
}

// StaffReferenced reports whether the staff member registered at least one
// patient. Registering staff cannot be deleted while referenced.
func (s *Service) StaffReferenced(ctx context.Context, staffID uuid.UUID) (bool, error) {
	n, err := s.patients.CountByRegistrar(ctx, staffID)
	if err != nil {
		return false, fmt.Errorf("count patients by registrar: %w", err)
	}
	return n > 0, nil
}

// GetOrCreateRecord returns the patient's medical record, creating the empty
// record on first clinical need.
func (s *Service) GetOrCreateRecord(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	if _, err := s.Get(ctx, patientID); err != nil {
		return nil, err
	}
	if rec, err := s.records.GetByPatient(ctx, patientID); err == nil {
		return rec, nil
	}
	rec := &MedicalRecord{PatientID: patientID}
	if err := s.records.Create(ctx, rec); err != nil {
		// Lost a race against a concurrent lazy create; re-read.
		if existing, getErr := s.records.GetByPatient(ctx, patientID); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create medical record: %w", err)
	}
	return rec, nil
}

type RecordInput struct {
	BloodGroup  *string  `json:"blood_group,omitempty"`
	Rhesus      *string  `json:"rhesus,omitempty"`
	WeightKg    *float64 `json:"weight_kg,omitempty"`
	HeightCm    *float64 `json:"height_cm,omitempty"`
	Allergies   *string  `json:"allergies,omitempty"`
	Antecedents *string  `json:"antecedents,omitempty"`
}

func (s *Service) UpdateRecord(ctx context.Context, patientID uuid.UUID, in RecordInput) (*MedicalRecord, error) {
	rec, err := s.GetOrCreateRecord(ctx, patientID)
	if err != nil {
		return nil, err
	}
	fe := apperr.NewFieldErrors()
	if in.BloodGroup != nil {
		bg := strings.ToUpper(strings.TrimSpace(*in.BloodGroup))
		if !validBloodGroups[bg] {
			fe.Add("blood_group", "groupe sanguin invalide (A, B, AB ou O)")
		} else {
			rec.BloodGroup = bg
		}
	}
	if in.Rhesus != nil {
		if !validRhesus[*in.Rhesus] {
			fe.Add("rhesus", "rhésus invalide (+ ou -)")
		} else {
			rec.Rhesus = *in.Rhesus
		}
	}
	if in.WeightKg != nil {
		if *in.WeightKg <= 0 {
			fe.Add("weight_kg", "le poids doit être positif")
		} else {
			rec.WeightKg = in.WeightKg
		}
	}
	if in.HeightCm != nil {
		if *in.HeightCm <= 0 {
			fe.Add("height_cm", "la taille doit être positive")
		} else {
			rec.HeightCm = in.HeightCm
		}
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}
	if in.Allergies != nil {
		rec.Allergies = *in.Allergies
	}
	if in.Antecedents != nil {
		rec.Antecedents = *in.Antecedents
	}

	if err := s.records.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update medical record: %w", err)
	}
	_ = s.publisher.Publish(ctx, broadcast.NewEvent("medical_record", broadcast.ActionUpdated, rec.ID.String(), rec))
	return rec, nil
}

func (s *Service) publish(ctx context.Context, action string, p *Patient) {
	_ = s.publisher.Publish(ctx, broadcast.NewEvent("patient", action, p.ID.String(), p))
}
