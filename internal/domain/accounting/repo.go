package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AccountRepository interface {
	Create(ctx context.Context, a *ChartAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*ChartAccount, error)
	GetByNumber(ctx context.Context, number string) (*ChartAccount, error)
	List(ctx context.Context, class *int) ([]*ChartAccount, error)
	Update(ctx context.Context, a *ChartAccount) error
}

type JournalRepository interface {
	Create(ctx context.Context, j *Journal) error
	GetByID(ctx context.Context, id uuid.UUID) (*Journal, error)
	GetByCode(ctx context.Context, code string) (*Journal, error)
	List(ctx context.Context) ([]*Journal, error)
}

type ReceiptRepository interface {
	Create(ctx context.Context, r *Receipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error)
	List(ctx context.Context, from, to time.Time) ([]*Receipt, error)
	ListOutstandingCheques(ctx context.Context) ([]*Receipt, error)
	Update(ctx context.Context, r *Receipt) error
}

// RevenueMappingRepository maps a receipt reason to the revenue account
// it credits.
type RevenueMappingRepository interface {
	Get(ctx context.Context, reason string) (uuid.UUID, error)
	Set(ctx context.Context, reason string, accountID uuid.UUID) error
	List(ctx context.Context) (map[string]uuid.UUID, error)
}

type EntryRepository interface {
	Create(ctx context.Context, e *JournalEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	List(ctx context.Context, from, to time.Time) ([]*JournalEntry, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	// LinesByAccount returns the posted lines touching one account,
	// ordered by entry date then entry number.
	LinesByAccount(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]LedgerLine, error)
	// SumsByAccount aggregates posted debits and credits per account
	// over the window, optionally restricted to one class.
	SumsByAccount(ctx context.Context, from, to time.Time, class *int) ([]TrialBalanceRow, error)
}

// SequenceRepository hands out the yearly monotonic sequences backing
// entry and receipt numbers. Holes are fine, reuse is not.
type SequenceRepository interface {
	Next(ctx context.Context, scope string, year int) (int, error)
}
