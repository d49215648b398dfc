package registry

import (
	"context"

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

// -- Service repository --

type serviceRepoPG struct {
	pool *pgxpool.Pool
}

func NewServiceRepo(pool *pgxpool.Pool) ServiceRepository {
	return &serviceRepoPG{pool: pool}
}

func (r *serviceRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const serviceCols = `id, name, head_of_service_id, created_at, updated_at`

func (r *serviceRepoPG) Create(ctx context.Context, s *Service) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO service (id, name, head_of_service_id) VALUES ($1,$2,$3)`,
		s.ID, s.Name, s.HeadOfService)
	return err
}

func (r *serviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	return scanService(r.conn(ctx).QueryRow(ctx, `SELECT `+serviceCols+` FROM service WHERE id = $1`, id))
}

func (r *serviceRepoPG) GetByName(ctx context.Context, name string) (*Service, error) {
	return scanService(r.conn(ctx).QueryRow(ctx,
		`SELECT `+serviceCols+` FROM service WHERE LOWER(name) = LOWER($1)`, name))
}

func (r *serviceRepoPG) List(ctx context.Context) ([]*Service, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+serviceCols+` FROM service ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []*Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.HeadOfService, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		services = append(services, &s)
	}
	return services, nil
}

func (r *serviceRepoPG) Update(ctx context.Context, s *Service) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE service SET name=$2, head_of_service_id=$3, updated_at=NOW() WHERE id = $1`,
		s.ID, s.Name, s.HeadOfService)
	return err
}

func (r *serviceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM service WHERE id = $1`, id)
	return err
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	if err := row.Scan(&s.ID, &s.Name, &s.HeadOfService, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// -- Room repository --

type roomRepoPG struct {
	pool *pgxpool.Pool
}

func NewRoomRepo(pool *pgxpool.Pool) RoomRepository {
	return &roomRepoPG{pool: pool}
}

func (r *roomRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const roomCols = `id, number, seats_total, seats_free, tariff_per_day, service_id, created_at, updated_at`

func (r *roomRepoPG) Create(ctx context.Context, rm *Room) error {
	rm.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO room (id, number, seats_total, seats_free, tariff_per_day, service_id)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rm.ID, rm.Number, rm.SeatsTotal, rm.SeatsFree, rm.TariffPerDay, rm.ServiceID)
	return err
}

func (r *roomRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	return scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE id = $1`, id))
}

func (r *roomRepoPG) GetByNumber(ctx context.Context, number string) (*Room, error) {
	return scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE number = $1`, number))
}

func (r *roomRepoPG) List(ctx context.Context) ([]*Room, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+roomCols+` FROM room ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

func (r *roomRepoPG) ListByService(ctx context.Context, serviceID uuid.UUID) ([]*Room, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+roomCols+` FROM room WHERE service_id = $1 ORDER BY number`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

func (r *roomRepoPG) Update(ctx context.Context, rm *Room) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE room SET number=$2, seats_total=$3, seats_free=$4, tariff_per_day=$5,
			service_id=$6, updated_at=NOW()
		WHERE id = $1`,
		rm.ID, rm.Number, rm.SeatsTotal, rm.SeatsFree, rm.TariffPerDay, rm.ServiceID)
	return err
}

func (r *roomRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM room WHERE id = $1`, id)
	return err
}

func (r *roomRepoPG) FindWithFreeSeat(ctx context.Context, serviceID *uuid.UUID) (*Room, error) {
	q := `SELECT ` + roomCols + ` FROM room WHERE seats_free > 0`
	args := []interface{}{}
	if serviceID != nil {
		q += ` AND service_id = $1`
		args = append(args, *serviceID)
	}
	q += ` ORDER BY number LIMIT 1`
	return scanRoom(r.conn(ctx).QueryRow(ctx, q, args...))
}

func (r *roomRepoPG) DecrementSeats(ctx context.Context, roomID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE room SET seats_free = seats_free - 1, updated_at = NOW()
		WHERE id = $1 AND seats_free > 0`, roomID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *roomRepoPG) IncrementSeats(ctx context.Context, roomID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE room SET seats_free = LEAST(seats_free + 1, seats_total), updated_at = NOW()
		WHERE id = $1`, roomID)
	return err
}

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	err := row.Scan(&rm.ID, &rm.Number, &rm.SeatsTotal, &rm.SeatsFree,
		&rm.TariffPerDay, &rm.ServiceID, &rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func collectRooms(rows pgx.Rows) ([]*Room, error) {
	var rooms []*Room
	for rows.Next() {
		var rm Room
		err := rows.Scan(&rm.ID, &rm.Number, &rm.SeatsTotal, &rm.SeatsFree,
			&rm.TariffPerDay, &rm.ServiceID, &rm.CreatedAt, &rm.UpdatedAt)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, &rm)
	}
	return rooms, nil
}

// -- Matricule counters --

type matriculeRepoPG struct {
	pool *pgxpool.Pool
}

func NewMatriculeRepo(pool *pgxpool.Pool) MatriculeRepository {
	return &matriculeRepoPG{pool: pool}
}

func (r *matriculeRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// NextSequence relies on the upsert taking a row lock: two concurrent
// allocations for the same (prefix, year) serialise on the counter row.
func (r *matriculeRepoPG) NextSequence(ctx context.Context, prefix string, year int) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO matricule_counter (prefix, year, seq) VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year) DO UPDATE SET seq = matricule_counter.seq + 1
		RETURNING seq`, prefix, year).Scan(&seq)
	return seq, err
}
