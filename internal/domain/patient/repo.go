package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMatricule(ctx context.Context, matricule string) (*Patient, error)
	// FindByContact matches either the contact or next-of-kin phone, or the
	// email, against any patient; used for uniqueness checks.
	FindByContact(ctx context.Context, phone string) (*Patient, error)
	FindByEmail(ctx context.Context, email string) (*Patient, error)
	List(ctx context.Context, params pagination.Params) ([]*Patient, int, error)
	Search(ctx context.Context, query string, params pagination.Params) ([]*Patient, int, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// CountByRegistrar reports how many patients a staff member registered.
	CountByRegistrar(ctx context.Context, staffID uuid.UUID) (int, error)
}

type RecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
}
