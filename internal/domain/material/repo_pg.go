package material

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, code, name, unit_price, stock, kind,
	category, dispensing_unit, sale_price, condition, location,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, m *Material) error {
	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()
	m.UpdatedAt = m.CreatedAt
	var category, dispensingUnit, condition, location *string
	var salePrice *float64
	if m.Medical != nil {
		category = &m.Medical.Category
		dispensingUnit = &m.Medical.DispensingUnit
		salePrice = &m.Medical.SalePrice
	}
	if m.Durable != nil {
		condition = &m.Durable.Condition
		location = &m.Durable.Location
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO material (
			id, code, name, unit_price, stock, kind,
			category, dispensing_unit, sale_price, condition, location,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		m.ID, m.Code, m.Name, m.UnitPrice, m.Stock, m.Kind,
		category, dispensingUnit, salePrice, condition, location,
		m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Material, error) {
	return scanMaterial(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM material WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Material, error) {
	return scanMaterial(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM material WHERE code = $1`, code))
}

func (r *repoPG) List(ctx context.Context, kind string) ([]*Material, error) {
	q := `SELECT ` + cols + ` FROM material`
	args := []interface{}{}
	if kind != "" {
		q += ` WHERE kind = $1`
		args = append(args, kind)
	}
	q += ` ORDER BY code ASC`
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, m *Material) error {
	m.UpdatedAt = time.Now().UTC()
	var category, dispensingUnit, condition, location *string
	var salePrice *float64
	if m.Medical != nil {
		category = &m.Medical.Category
		dispensingUnit = &m.Medical.DispensingUnit
		salePrice = &m.Medical.SalePrice
	}
	if m.Durable != nil {
		condition = &m.Durable.Condition
		location = &m.Durable.Location
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE material SET name=$2, unit_price=$3,
			category=$4, dispensing_unit=$5, sale_price=$6,
			condition=$7, location=$8, updated_at=$9
		WHERE id = $1`,
		m.ID, m.Name, m.UnitPrice,
		category, dispensingUnit, salePrice, condition, location, m.UpdatedAt)
	return err
}

func (r *repoPG) AddStock(ctx context.Context, id uuid.UUID, qty int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE material SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1`, id, qty)
	return err
}

func (r *repoPG) RemoveStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE material SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanMaterial(row pgx.Row) (*Material, error) {
	var m Material
	var category, dispensingUnit, condition, location *string
	var salePrice *float64
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.UnitPrice, &m.Stock, &m.Kind,
		&category, &dispensingUnit, &salePrice, &condition, &location,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if m.Kind == KindMedical {
		m.Medical = &MedicalSpec{}
		if category != nil {
			m.Medical.Category = *category
		}
		if dispensingUnit != nil {
			m.Medical.DispensingUnit = *dispensingUnit
		}
		if salePrice != nil {
			m.Medical.SalePrice = *salePrice
		}
	}
	if m.Kind == KindDurable {
		m.Durable = &DurableSpec{}
		if condition != nil {
			m.Durable.Condition = *condition
		}
		if location != nil {
			m.Durable.Location = *location
		}
	}
	return &m, nil
}

type movementRepoPG struct {
	pool *pgxpool.Pool
}

func NewMovementRepo(pool *pgxpool.Pool) MovementRepository {
	return &movementRepoPG{pool: pool}
}

func (r *movementRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *movementRepoPG) Create(ctx context.Context, mv *Movement) error {
	mv.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO material_movement (
			id, material_id, direction, quantity, reference, recorded_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		mv.ID, mv.MaterialID, mv.Direction, mv.Quantity, mv.Reference,
		mv.RecordedBy, mv.CreatedAt)
	return err
}

func (r *movementRepoPG) ListByMaterial(ctx context.Context, materialID uuid.UUID) ([]*Movement, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, material_id, direction, quantity, reference, recorded_by, created_at
		FROM material_movement
		WHERE material_id = $1 ORDER BY created_at DESC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Movement
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.ID, &mv.MaterialID, &mv.Direction, &mv.Quantity,
			&mv.Reference, &mv.RecordedBy, &mv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &mv)
	}
	return out, rows.Err()
}
