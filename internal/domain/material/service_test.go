package material

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
)

var errNotFound = errors.New("not found")

type mockRepo struct {
	byID map[uuid.UUID]*Material
}

func newMockRepo() *mockRepo {
	return &mockRepo{byID: make(map[uuid.UUID]*Material)}
}

func copyMaterial(m *Material) *Material {
	cp := *m
	if m.Medical != nil {
		spec := *m.Medical
		cp.Medical = &spec
	}
	if m.Durable != nil {
		spec := *m.Durable
		cp.Durable = &spec
	}
	return &cp
}

func (r *mockRepo) Create(_ context.Context, m *Material) error {
	m.ID = uuid.New()
	r.byID[m.ID] = copyMaterial(m)
	return nil
}

func (r *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Material, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, errNotFound
	}
	return copyMaterial(m), nil
}

func (r *mockRepo) GetByCode(_ context.Context, code string) (*Material, error) {
	for _, m := range r.byID {
		if m.Code == code {
			return copyMaterial(m), nil
		}
	}
	return nil, errNotFound
}

func (r *mockRepo) List(_ context.Context, kind string) ([]*Material, error) {
	var out []*Material
	for _, m := range r.byID {
		if kind != "" && m.Kind != kind {
			continue
		}
		out = append(out, copyMaterial(m))
	}
	return out, nil
}

func (r *mockRepo) Update(_ context.Context, m *Material) error {
	if _, ok := r.byID[m.ID]; !ok {
		return errNotFound
	}
	r.byID[m.ID] = copyMaterial(m)
	return nil
}

func (r *mockRepo) AddStock(_ context.Context, id uuid.UUID, qty int) error {
	m, ok := r.byID[id]
	if !ok {
		return errNotFound
	}
	m.Stock += qty
	return nil
}

func (r *mockRepo) RemoveStock(_ context.Context, id uuid.UUID, qty int) (bool, error) {
	m, ok := r.byID[id]
	if !ok {
		return false, errNotFound
	}
	if m.Stock < qty {
		return false, nil
	}
	m.Stock -= qty
	return true, nil
}

type mockMovements struct {
	items []*Movement
}

func (r *mockMovements) Create(_ context.Context, mv *Movement) error {
	mv.ID = uuid.New()
	cp := *mv
	r.items = append(r.items, &cp)
	return nil
}

func (r *mockMovements) ListByMaterial(_ context.Context, materialID uuid.UUID) ([]*Movement, error) {
	var out []*Movement
	for _, mv := range r.items {
		if mv.MaterialID == materialID {
			cp := *mv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newTestService() (*Service, *mockRepo, *mockMovements) {
	repo := newMockRepo()
	movements := &mockMovements{}
	svc := NewService(repo, movements, db.NopRunner{}, broadcast.NopPublisher{}, zerolog.Nop())
	svc.SetClock(func() time.Time {
		return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	})
	return svc, repo, movements
}

func TestCreate_TaggedVariant(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	med, err := svc.Create(ctx, CreateInput{
		Code: "MED-001", Name: "Paracétamol 500mg", UnitPrice: 50, Kind: KindMedical,
		Medical: &MedicalSpec{Category: "antalgique", DispensingUnit: "comprimé", SalePrice: 100},
	})
	if err != nil {
		t.Fatalf("création médical: %v", err)
	}
	if med.Medical == nil || med.Durable != nil {
		t.Fatal("un matériel médical porte uniquement la spécialisation médicale")
	}
	if med.Stock != 0 {
		t.Fatalf("stock initial %d, attendu 0", med.Stock)
	}

	dur, err := svc.Create(ctx, CreateInput{
		Code: "DUR-001", Name: "Lit médicalisé", UnitPrice: 250000, Kind: KindDurable,
		Durable: &DurableSpec{Condition: "neuf", Location: "Cardiologie"},
	})
	if err != nil {
		t.Fatalf("création durable: %v", err)
	}
	if dur.Durable == nil || dur.Medical != nil {
		t.Fatal("un matériel durable porte uniquement la spécialisation durable")
	}

	if _, err := svc.Create(ctx, CreateInput{
		Code: "MED-001", Name: "Doublon", Kind: KindMedical, Medical: &MedicalSpec{},
	}); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("code en double : attendu un conflit, obtenu %v", err)
	}

	if _, err := svc.Create(ctx, CreateInput{
		Code: "X-1", Name: "Sans famille", Kind: "consumable",
	}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("famille inconnue : attendu une erreur de validation, obtenu %v", err)
	}

	if _, err := svc.Create(ctx, CreateInput{
		Code: "MED-002", Name: "Sans spécialisation", Kind: KindMedical,
	}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("spécialisation manquante : attendu une erreur de validation, obtenu %v", err)
	}
}

func TestStock_NeverNegative(t *testing.T) {
	svc, _, movements := newTestService()
	ctx := context.Background()
	keeper := uuid.New()

	m, err := svc.Create(ctx, CreateInput{
		Code: "MED-010", Name: "Gants stériles", UnitPrice: 10, Kind: KindMedical,
		Medical: &MedicalSpec{Category: "consommable", DispensingUnit: "paire", SalePrice: 25},
	})
	if err != nil {
		t.Fatalf("création: %v", err)
	}

	m, err = svc.StockIn(ctx, keeper, m.ID, MovementInput{Quantity: 100, Reference: "BL-2025-17"})
	if err != nil {
		t.Fatalf("entrée: %v", err)
	}
	if m.Stock != 100 {
		t.Fatalf("stock %d, attendu 100", m.Stock)
	}

	m, err = svc.StockOut(ctx, keeper, m.ID, MovementInput{Quantity: 60})
	if err != nil {
		t.Fatalf("sortie: %v", err)
	}
	if m.Stock != 40 {
		t.Fatalf("stock %d, attendu 40", m.Stock)
	}

	if _, err := svc.StockOut(ctx, keeper, m.ID, MovementInput{Quantity: 41}); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("sortie au-delà du stock : attendu un conflit, obtenu %v", err)
	}
	got, _ := svc.Get(ctx, m.ID)
	if got.Stock != 40 {
		t.Fatalf("le refus ne doit pas toucher le stock, obtenu %d", got.Stock)
	}

	if _, err := svc.StockOut(ctx, keeper, m.ID, MovementInput{Quantity: 0}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("quantité nulle : attendu une erreur de validation, obtenu %v", err)
	}

	history, err := svc.Movements(ctx, m.ID)
	if err != nil {
		t.Fatalf("mouvements: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("%d mouvements, attendu 2 (le refus n'en laisse aucun)", len(history))
	}
	if len(movements.items) != 2 {
		t.Fatalf("%d mouvements persistés, attendu 2", len(movements.items))
	}
}
