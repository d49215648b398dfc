package registry

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

// StaffPostings is the slice of the identity package the registry needs when
// a service disappears: staff posted to it fall back to no service.
type StaffPostings interface {
	ClearService(ctx context.Context, serviceID uuid.UUID) error
}

// Registry is the reference-data service: hospital services, rooms and the
// matricule counters.
type Registry struct {
	services   ServiceRepository
	rooms      RoomRepository
	matricules MatriculeRepository
	postings   StaffPostings
	tx         db.TxRunner
	publisher  broadcast.Publisher
	logger     zerolog.Logger
	now        func() time.Time
}

func NewRegistry(
	services ServiceRepository,
	rooms RoomRepository,
	matricules MatriculeRepository,
	postings StaffPostings,
	tx db.TxRunner,
	publisher broadcast.Publisher,
	logger zerolog.Logger,
) *Registry {
	return &Registry{
		services:   services,
		rooms:      rooms,
		matricules: matricules,
		postings:   postings,
		tx:         tx,
		publisher:  publisher,
		logger:     logger.With().Str("component", "registry").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the clock used for matricule years. Test hook.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// NextMatricule formats `YY<PREFIX><seq>` from the per-prefix per-year
// counter. Width is the zero-padded sequence width (4 for staff, 5 for
// patients).
func (r *Registry) NextMatricule(ctx context.Context, prefix string, width int) (string, error) {
	if prefix == "" {
		return "", apperr.Validation("préfixe de matricule manquant")
	}
	year := r.now().Year()
	seq, err := r.matricules.NextSequence(ctx, prefix, year)
	if err != nil {
		return "", fmt.Errorf("next matricule sequence: %w", err)
	}
	return fmt.Sprintf("%02d%s%0*d", year%100, prefix, width, seq), nil
}

// ResolveService finds a service by name, case-insensitively.
func (r *Registry) ResolveService(ctx context.Context, name string) (*Service, error) {
	svc, err := r.services.GetByName(ctx, name)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, apperr.TagUnknownService,
			fmt.Sprintf("service %q inconnu", name))
	}
	return svc, nil
}

// ResolveServiceName returns the canonical service name for a
// case-insensitive match.
func (r *Registry) ResolveServiceName(ctx context.Context, name string) (string, error) {
	svc, err := r.ResolveService(ctx, name)
	if err != nil {
		return "", err
	}
	return svc.Name, nil
}

// ServiceNameByID returns the service name for an id.
func (r *Registry) ServiceNameByID(ctx context.Context, id uuid.UUID) (string, error) {
	svc, err := r.GetService(ctx, id)
	if err != nil {
		return "", err
	}
	return svc.Name, nil
}

func (r *Registry) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	svc, err := r.services.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, apperr.TagUnknownService, "service introuvable")
	}
	return svc, nil
}

func (r *Registry) ListServices(ctx context.Context) ([]*Service, error) {
	return r.services.List(ctx)
}

func (r *Registry) CreateService(ctx context.Context, name string, head *uuid.UUID) (*Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("le nom du service est requis")
	}
	if _, err := r.services.GetByName(ctx, name); err == nil {
		return nil, apperr.Conflict(fmt.Sprintf("un service %q existe déjà", name))
	}

	svc := &Service{Name: name, HeadOfService: head}
	if err := r.services.Create(ctx, svc); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	r.publish(ctx, "service", broadcast.ActionCreated, svc.ID.String(), svc)
	return svc, nil
}

func (r *Registry) UpdateService(ctx context.Context, id uuid.UUID, name string, head *uuid.UUID) (*Service, error) {
	svc, err := r.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		svc.Name = name
	}
	if head != nil {
		svc.HeadOfService = head
	}
	if err := r.services.Update(ctx, svc); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	r.publish(ctx, "service", broadcast.ActionUpdated, svc.ID.String(), svc)
	return svc, nil
}

// DeleteService removes a service. Staff posted to it keep their rows with a
// null service; sessions are untouched because they carry the service name,
// not the id.
func (r *Registry) DeleteService(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetService(ctx, id); err != nil {
		return err
	}
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := r.postings.ClearService(ctx, id); err != nil {
			return fmt.Errorf("clear staff postings: %w", err)
		}
		return r.services.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	r.publish(ctx, "service", broadcast.ActionDeleted, id.String(), nil)
	return nil
}

// -- Rooms --

func (r *Registry) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	room, err := r.rooms.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("chambre introuvable")
	}
	return room, nil
}

func (r *Registry) ListRooms(ctx context.Context, serviceID *uuid.UUID) ([]*Room, error) {
	if serviceID != nil {
		return r.rooms.ListByService(ctx, *serviceID)
	}
	return r.rooms.List(ctx)
}

// FindRoomWithFreeSeat picks any room with a free seat, optionally within a
// service.
func (r *Registry) FindRoomWithFreeSeat(ctx context.Context, serviceID *uuid.UUID) (*Room, error) {
	room, err := r.rooms.FindWithFreeSeat(ctx, serviceID)
	if err != nil {
		return nil, apperr.NoFreeSeats("aucune chambre avec un lit disponible")
	}
	return room, nil
}

type RoomInput struct {
	Number       string    `json:"number"`
	SeatsTotal   int       `json:"seats_total"`
	TariffPerDay float64   `json:"tariff_per_day"`
	ServiceID    uuid.UUID `json:"service_id"`
}

func (r *Registry) CreateRoom(ctx context.Context, in RoomInput) (*Room, error) {
	fe := apperr.NewFieldErrors()
	if strings.TrimSpace(in.Number) == "" {
		fe.Add("number", "le numéro de chambre est requis")
	}
	if in.SeatsTotal <= 0 {
		fe.Add("seats_total", "une chambre compte au moins un lit")
	}
	if in.TariffPerDay < 0 {
		fe.Add("tariff_per_day", "le tarif ne peut pas être négatif")
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}
	if _, err := r.rooms.GetByNumber(ctx, in.Number); err == nil {
		return nil, apperr.Conflict(fmt.Sprintf("une chambre %q existe déjà", in.Number))
	}
	if _, err := r.GetService(ctx, in.ServiceID); err != nil {
		return nil, err
	}

	room := &Room{
		Number:       strings.TrimSpace(in.Number),
		SeatsTotal:   in.SeatsTotal,
		SeatsFree:    in.SeatsTotal,
		TariffPerDay: in.TariffPerDay,
		ServiceID:    in.ServiceID,
	}
	if err := r.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	r.publish(ctx, "room", broadcast.ActionCreated, room.ID.String(), room)
	return room, nil
}

func (r *Registry) UpdateRoom(ctx context.Context, id uuid.UUID, tariff *float64) (*Room, error) {
	room, err := r.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if tariff != nil {
		if *tariff < 0 {
			return nil, apperr.Validation("le tarif ne peut pas être négatif")
		}
		room.TariffPerDay = *tariff
	}
	if err := r.rooms.Update(ctx, room); err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	r.publish(ctx, "room", broadcast.ActionUpdated, room.ID.String(), room)
	return room, nil
}

// DeleteRoom refuses to remove an occupied room.
func (r *Registry) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	room, err := r.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	if room.SeatsFree < room.SeatsTotal {
		return apperr.Conflict("la chambre est occupée").
			WithSuggestion("terminez les hospitalisations en cours avant de supprimer la chambre")
	}
	if err := r.rooms.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	r.publish(ctx, "room", broadcast.ActionDeleted, id.String(), nil)
	return nil
}

func (r *Registry) publish(ctx context.Context, model, action, id string, payload any) {
	_ = r.publisher.Publish(ctx, broadcast.NewEvent(model, action, id, payload))
}
