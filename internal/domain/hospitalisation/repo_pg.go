package hospitalisation

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, session_id, room_id, physician_id, status, tariff_per_day, reason, opened_at, closed_at`

func (r *repoPG) Create(ctx context.Context, h *Hospitalisation) error {
	h.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospitalisation (
			id, session_id, room_id, physician_id, status, tariff_per_day, reason, opened_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		h.ID, h.SessionID, h.RoomID, h.PhysicianID, h.Status, h.TariffPerDay, h.Reason, h.OpenedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospitalisation, error) {
	return scanOne(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM hospitalisation WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Hospitalisation, error) {
	return scanOne(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM hospitalisation WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) ListOpenBySession(ctx context.Context, sessionID uuid.UUID) ([]*Hospitalisation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+cols+` FROM hospitalisation
		WHERE session_id = $1 AND status <> $2
		FOR UPDATE`, sessionID, StatusTerminated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMany(rows)
}

func (r *repoPG) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*Hospitalisation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+cols+` FROM hospitalisation
		WHERE room_id = $1 ORDER BY opened_at DESC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMany(rows)
}

func (r *repoPG) Update(ctx context.Context, h *Hospitalisation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospitalisation SET status=$2, closed_at=$3 WHERE id = $1`,
		h.ID, h.Status, h.ClosedAt)
	return err
}

func scanOne(row pgx.Row) (*Hospitalisation, error) {
	var h Hospitalisation
	err := row.Scan(&h.ID, &h.SessionID, &h.RoomID, &h.PhysicianID, &h.Status,
		&h.TariffPerDay, &h.Reason, &h.OpenedAt, &h.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanMany(rows pgx.Rows) ([]*Hospitalisation, error) {
	var out []*Hospitalisation
	for rows.Next() {
		var h Hospitalisation
		if err := rows.Scan(&h.ID, &h.SessionID, &h.RoomID, &h.PhysicianID, &h.Status,
			&h.TariffPerDay, &h.Reason, &h.OpenedAt, &h.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
