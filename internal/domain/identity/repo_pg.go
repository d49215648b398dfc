package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type staffRepoPG struct {
	pool *pgxpool.Pool
}

func NewStaffRepo(pool *pgxpool.Pool) StaffRepository {
	return &staffRepoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *staffRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const staffCols = `id, matricule, first_name, last_name, email, phone, birth_date,
	role, specialty, service_id, employment_status,
	password_hash, password_expiry, first_login_done, connection_status,
	created_at, updated_at`

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO staff (
			id, matricule, first_name, last_name, email, phone, birth_date,
			role, specialty, service_id, employment_status,
			password_hash, password_expiry, first_login_done, connection_status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		s.ID, s.Matricule, s.FirstName, s.LastName, s.Email, s.Phone, s.BirthDate,
		s.Role, s.Specialty, s.ServiceID, s.EmploymentStatus,
		s.PasswordHash, s.PasswordExpiry, s.FirstLoginDone, s.ConnectionStatus,
	)
	return err
}

func (r *staffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id))
}

func (r *staffRepoPG) GetByPrincipal(ctx context.Context, principal string) (*Staff, error) {
	return scanStaff(r.conn(ctx).QueryRow(ctx, `
		SELECT `+staffCols+` FROM staff
		WHERE LOWER(email) = LOWER($1) OR LOWER(matricule) = LOWER($1)`, principal))
}

func (r *staffRepoPG) GetByEmail(ctx context.Context, email string) (*Staff, error) {
	return scanStaff(r.conn(ctx).QueryRow(ctx, `
		SELECT `+staffCols+` FROM staff WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *staffRepoPG) Update(ctx context.Context, s *Staff) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE staff SET
			first_name=$2, last_name=$3, email=$4, phone=$5, birth_date=$6,
			role=$7, specialty=$8, service_id=$9, employment_status=$10,
			password_hash=$11, password_expiry=$12, first_login_done=$13,
			connection_status=$14, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.FirstName, s.LastName, s.Email, s.Phone, s.BirthDate,
		s.Role, s.Specialty, s.ServiceID, s.EmploymentStatus,
		s.PasswordHash, s.PasswordExpiry, s.FirstLoginDone,
		s.ConnectionStatus,
	)
	return err
}

func (r *staffRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM staff WHERE id = $1`, id)
	return err
}

func (r *staffRepoPG) List(ctx context.Context, limit, offset int) ([]*Staff, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+staffCols+` FROM staff ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectStaff(rows, total)
}

func (r *staffRepoPG) ListByRole(ctx context.Context, role string, limit, offset int) ([]*Staff, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff WHERE role = $1`, role).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+staffCols+` FROM staff WHERE role = $1 ORDER BY last_name, first_name LIMIT $2 OFFSET $3`,
		role, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectStaff(rows, total)
}

func (r *staffRepoPG) ListPhysicians(ctx context.Context, specialty string) ([]*Staff, error) {
	q := `SELECT ` + staffCols + ` FROM staff WHERE role = $1`
	args := []interface{}{RolePhysician}
	if specialty != "" {
		q += ` AND specialty = $2`
		args = append(args, specialty)
	}
	q += ` ORDER BY last_name, first_name`

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	staffs, _, err := collectStaff(rows, 0)
	return staffs, err
}

func (r *staffRepoPG) ListExpiredCredentials(ctx context.Context, now time.Time) ([]*Staff, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+staffCols+` FROM staff
		WHERE first_login_done = FALSE AND password_expiry IS NOT NULL AND password_expiry < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	staffs, _, err := collectStaff(rows, 0)
	return staffs, err
}

func (r *staffRepoPG) ClearService(ctx context.Context, serviceID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE staff SET service_id = NULL, updated_at = NOW() WHERE service_id = $1`, serviceID)
	return err
}

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(
		&s.ID, &s.Matricule, &s.FirstName, &s.LastName, &s.Email, &s.Phone, &s.BirthDate,
		&s.Role, &s.Specialty, &s.ServiceID, &s.EmploymentStatus,
		&s.PasswordHash, &s.PasswordExpiry, &s.FirstLoginDone, &s.ConnectionStatus,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectStaff(rows pgx.Rows, total int) ([]*Staff, int, error) {
	var staffs []*Staff
	for rows.Next() {
		var s Staff
		err := rows.Scan(
			&s.ID, &s.Matricule, &s.FirstName, &s.LastName, &s.Email, &s.Phone, &s.BirthDate,
			&s.Role, &s.Specialty, &s.ServiceID, &s.EmploymentStatus,
			&s.PasswordHash, &s.PasswordExpiry, &s.FirstLoginDone, &s.ConnectionStatus,
			&s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		staffs = append(staffs, &s)
	}
	return staffs, total, nil
}

// -- Admin repository --

type adminRepoPG struct {
	pool *pgxpool.Pool
}

func NewAdminRepo(pool *pgxpool.Pool) AdminRepository {
	return &adminRepoPG{pool: pool}
}

func (r *adminRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const adminCols = `id, login, password_hash, created_at`

func (r *adminRepoPG) Get(ctx context.Context) (*Admin, error) {
	return scanAdmin(r.conn(ctx).QueryRow(ctx, `SELECT `+adminCols+` FROM admin LIMIT 1`))
}

func (r *adminRepoPG) GetByLogin(ctx context.Context, login string) (*Admin, error) {
	return scanAdmin(r.conn(ctx).QueryRow(ctx,
		`SELECT `+adminCols+` FROM admin WHERE LOWER(login) = LOWER($1)`, login))
}

func (r *adminRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admin`).Scan(&n)
	return n, err
}

func (r *adminRepoPG) Create(ctx context.Context, a *Admin) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO admin (id, login, password_hash) VALUES ($1,$2,$3)`,
		a.ID, a.Login, a.PasswordHash)
	return err
}

func (r *adminRepoPG) Update(ctx context.Context, a *Admin) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE admin SET login=$2, password_hash=$3 WHERE id = $1`,
		a.ID, a.Login, a.PasswordHash)
	return err
}

func (r *adminRepoPG) DeleteAll(ctx context.Context) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM admin`)
	return err
}

func scanAdmin(row pgx.Row) (*Admin, error) {
	var a Admin
	if err := row.Scan(&a.ID, &a.Login, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
