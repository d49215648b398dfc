package hospitalisation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/registry"
	"github.com/clinicore/clinicore/internal/domain/session"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// RoomLedger is the slice of the room repository the ledger mutates: the
// guarded seat counter. Satisfied by registry's room repository.
type RoomLedger interface {
	GetByID(ctx context.Context, id uuid.UUID) (*registry.Room, error)
	DecrementSeats(ctx context.Context, id uuid.UUID) (bool, error)
	IncrementSeats(ctx context.Context, id uuid.UUID) error
}

// SessionGuard refuses admissions against terminated sessions.
type SessionGuard interface {
	EnsureOpen(ctx context.Context, sessionID uuid.UUID) (*session.Session, error)
}

type Service struct {
	repo      Repository
	rooms     RoomLedger
	sessions  SessionGuard
	tx        db.TxRunner
	publisher broadcast.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(
	repo Repository,
	rooms RoomLedger,
	sessions SessionGuard,
	tx db.TxRunner,
	publisher broadcast.Publisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		rooms:     rooms,
		sessions:  sessions,
		tx:        tx,
		publisher: publisher,
		logger:    logger.With().Str("component", "hospitalisation").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

type OpenInput struct {
	SessionID uuid.UUID `json:"session_id"`
	RoomID    uuid.UUID `json:"room_id"`
	Reason    string    `json:"reason,omitempty"`
}

// Open admits the session's patient into a room under the supervising
// physician, taking one seat atomically. The guarded decrement is what
// makes overbooking impossible.
func (s *Service) Open(ctx context.Context, physicianID uuid.UUID, in OpenInput) (*Hospitalisation, error) {
	if physicianID == uuid.Nil {
		return nil, apperr.Validation("médecin responsable requis")
	}
	if _, err := s.sessions.EnsureOpen(ctx, in.SessionID); err != nil {
		return nil, err
	}

	var h *Hospitalisation
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		room, err := s.rooms.GetByID(ctx, in.RoomID)
		if err != nil {
			return apperr.NotFound("chambre introuvable")
		}
		taken, err := s.rooms.DecrementSeats(ctx, in.RoomID)
		if err != nil {
			return fmt.Errorf("take seat: %w", err)
		}
		if !taken {
			return apperr.NoFreeSeats(
				fmt.Sprintf("aucun lit disponible dans la chambre %s", room.Number))
		}
		h = &Hospitalisation{
			SessionID:    in.SessionID,
			RoomID:       in.RoomID,
			PhysicianID:  physicianID,
			Status:       StatusInProgress,
			TariffPerDay: room.TariffPerDay,
			Reason:       in.Reason,
			OpenedAt:     s.now(),
		}
		return s.repo.Create(ctx, h)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, broadcast.ActionCreated, h)
	return h, nil
}

// Close discharges the stay, giving the seat back. Closing an already
// terminated hospitalisation is a no-op.
func (s *Service) Close(ctx context.Context, id uuid.UUID) (*Hospitalisation, error) {
	var h *Hospitalisation
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		h, err = s.repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.NotFound("hospitalisation introuvable")
		}
		if h.Terminated() {
			return nil
		}
		return s.close(ctx, h, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, broadcast.ActionUpdated, h)
	return h, nil
}

// CloseForSession terminates every open stay of a session. Called from the
// coordinator's terminate transaction.
func (s *Service) CloseForSession(ctx context.Context, sessionID uuid.UUID, closedAt time.Time) error {
	open, err := s.repo.ListOpenBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list open hospitalisations: %w", err)
	}
	for _, h := range open {
		if err := s.close(ctx, h, closedAt); err != nil {
			return err
		}
		s.publish(ctx, broadcast.ActionUpdated, h)
	}
	return nil
}

func (s *Service) close(ctx context.Context, h *Hospitalisation, closedAt time.Time) error {
	h.Status = StatusTerminated
	h.ClosedAt = &closedAt
	if err := s.repo.Update(ctx, h); err != nil {
		return fmt.Errorf("close hospitalisation: %w", err)
	}
	if err := s.rooms.IncrementSeats(ctx, h.RoomID); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Hospitalisation, error) {
	h, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("hospitalisation introuvable")
	}
	return h, nil
}

func (s *Service) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*Hospitalisation, error) {
	return s.repo.ListByRoom(ctx, roomID)
}

func (s *Service) publish(ctx context.Context, action string, h *Hospitalisation) {
	_ = s.publisher.Publish(ctx, broadcast.NewEvent("hospitalisation", action, h.ID.String(), h))
}
