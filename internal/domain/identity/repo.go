package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type StaffRepository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	// GetByPrincipal resolves a staff member by email or matricule,
	// case-insensitively.
	GetByPrincipal(ctx context.Context, principal string) (*Staff, error)
	GetByEmail(ctx context.Context, email string) (*Staff, error)
	Update(ctx context.Context, s *Staff) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Staff, int, error)
	ListByRole(ctx context.Context, role string, limit, offset int) ([]*Staff, int, error)
	ListPhysicians(ctx context.Context, specialty string) ([]*Staff, error)
	// ListExpiredCredentials returns staff whose initial-password window has
	// lapsed without a first login.
	ListExpiredCredentials(ctx context.Context, now time.Time) ([]*Staff, error)
	// ClearService nulls the service reference of every staff posted to it.
	ClearService(ctx context.Context, serviceID uuid.UUID) error
}

type AdminRepository interface {
	Get(ctx context.Context) (*Admin, error)
	GetByLogin(ctx context.Context, login string) (*Admin, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, a *Admin) error
	Update(ctx context.Context, a *Admin) error
	DeleteAll(ctx context.Context) error
}
