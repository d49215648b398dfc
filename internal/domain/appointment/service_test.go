package appointment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
)

type mockRepo struct {
	appointments map[uuid.UUID]*Appointment
}

func newMockRepo() *mockRepo {
	return &mockRepo{appointments: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.appointments[a.ID] = a
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return a, nil
}

func (m *mockRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepo) ListByPhysician(ctx context.Context, physicianID uuid.UUID) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.appointments {
		if a.PhysicianID == physicianID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepo) Update(ctx context.Context, a *Appointment) error {
	m.appointments[a.ID] = a
	return nil
}

func newService() *Service {
	return NewService(newMockRepo(), broadcast.NopPublisher{}, zerolog.Nop())
}

func TestCreate(t *testing.T) {
	svc := newService()

	a, err := svc.Create(context.Background(), CreateInput{
		PatientID:   uuid.New(),
		PhysicianID: uuid.New(),
		ScheduledAt: time.Now().Add(48 * time.Hour),
		Reason:      "contrôle post-opératoire",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Status != StatusPending {
		t.Fatalf("status = %q, want pending", a.Status)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newService()

	_, err := svc.Create(context.Background(), CreateInput{
		PatientID:   uuid.New(),
		PhysicianID: uuid.New(),
		ScheduledAt: time.Now().Add(-time.Hour),
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("past date err = %v, want KindValidation", err)
	}

	_, err = svc.Create(context.Background(), CreateInput{
		ScheduledAt: time.Now().Add(time.Hour),
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("missing ids err = %v, want KindValidation", err)
	}
}

func TestSetStatus(t *testing.T) {
	svc := newService()
	a, err := svc.Create(context.Background(), CreateInput{
		PatientID:   uuid.New(),
		PhysicianID: uuid.New(),
		ScheduledAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.SetStatus(context.Background(), a.ID, StatusHonoured)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if updated.Status != StatusHonoured {
		t.Fatalf("status = %q, want honoured", updated.Status)
	}

	if _, err := svc.SetStatus(context.Background(), a.ID, "done"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("invalid status err = %v, want KindValidation", err)
	}
	if _, err := svc.SetStatus(context.Background(), uuid.New(), StatusCancelled); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("unknown id err = %v, want KindNotFound", err)
	}
}
