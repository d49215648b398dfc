package material

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// Service keeps the two material families and their stock levels. Stock
// never drops below zero.
type Service struct {
	repo      Repository
	movements MovementRepository
	tx        db.TxRunner
	publisher broadcast.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(
	repo Repository,
	movements MovementRepository,
	tx db.TxRunner,
	publisher broadcast.Publisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		movements: movements,
		tx:        tx,
		publisher: publisher,
		logger:    logger.With().Str("component", "material").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

type CreateInput struct {
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	UnitPrice float64      `json:"unit_price"`
	Kind      string       `json:"kind"`
	Medical   *MedicalSpec `json:"medical"`
	Durable   *DurableSpec `json:"durable"`
}

func (in *CreateInput) validate() error {
	errs := apperr.NewFieldErrors()
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" {
		errs.Add("code", "le code est requis")
	}
	if in.Name == "" {
		errs.Add("name", "le nom est requis")
	}
	if in.UnitPrice < 0 {
		errs.Add("unit_price", "le prix unitaire ne peut être négatif")
	}
	switch in.Kind {
	case KindMedical:
		if in.Medical == nil {
			errs.Add("medical", "les champs du matériel médical sont requis")
		} else if in.Medical.SalePrice < 0 {
			errs.Add("medical", "le prix de vente ne peut être négatif")
		}
	case KindDurable:
		if in.Durable == nil {
			errs.Add("durable", "les champs du matériel durable sont requis")
		}
	default:
		errs.Add("kind", "famille de matériel inconnue")
	}
	return errs.Err()
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Material, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if existing, err := s.repo.GetByCode(ctx, in.Code); err == nil && existing != nil {
		return nil, apperr.Conflict(fmt.Sprintf("le matériel %s existe déjà", in.Code))
	}
	m := &Material{
		Code:      in.Code,
		Name:      in.Name,
		UnitPrice: in.UnitPrice,
		Kind:      in.Kind,
	}
	switch in.Kind {
	case KindMedical:
		spec := *in.Medical
		m.Medical = &spec
	case KindDurable:
		spec := *in.Durable
		m.Durable = &spec
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	s.publish(ctx, broadcast.ActionCreated, m)
	return m, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Material, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("matériel introuvable")
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, kind string) ([]*Material, error) {
	if kind != "" && kind != KindMedical && kind != KindDurable {
		return nil, apperr.Validation("famille de matériel inconnue")
	}
	return s.repo.List(ctx, kind)
}

type MovementInput struct {
	Quantity  int    `json:"quantity"`
	Reference string `json:"reference"`
}

// StockIn records a delivery.
func (s *Service) StockIn(ctx context.Context, actorID, id uuid.UUID, in MovementInput) (*Material, error) {
	return s.move(ctx, actorID, id, MovementIn, in)
}

// StockOut records an issue; refused when the stock would go negative.
func (s *Service) StockOut(ctx context.Context, actorID, id uuid.UUID, in MovementInput) (*Material, error) {
	return s.move(ctx, actorID, id, MovementOut, in)
}

func (s *Service) move(ctx context.Context, actorID, id uuid.UUID, direction string, in MovementInput) (*Material, error) {
	if in.Quantity <= 0 {
		return nil, apperr.Validation("la quantité doit être strictement positive")
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, apperr.NotFound("matériel introuvable")
	}
	var out *Material
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		switch direction {
		case MovementIn:
			if err := s.repo.AddStock(ctx, id, in.Quantity); err != nil {
				return err
			}
		case MovementOut:
			taken, err := s.repo.RemoveStock(ctx, id, in.Quantity)
			if err != nil {
				return err
			}
			if !taken {
				return apperr.Conflict("stock insuffisant pour cette sortie")
			}
		}
		if err := s.movements.Create(ctx, &Movement{
			MaterialID: id,
			Direction:  direction,
			Quantity:   in.Quantity,
			Reference:  strings.TrimSpace(in.Reference),
			RecordedBy: actorID,
			CreatedAt:  s.now(),
		}); err != nil {
			return err
		}
		var err error
		out, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, broadcast.ActionUpdated, out)
	return out, nil
}

func (s *Service) Movements(ctx context.Context, id uuid.UUID) ([]*Movement, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, apperr.NotFound("matériel introuvable")
	}
	return s.movements.ListByMaterial(ctx, id)
}

func (s *Service) publish(ctx context.Context, action string, m *Material) {
	_ = s.publisher.Publish(ctx, broadcast.NewEvent("material", action, m.ID.String(), m))
}
