package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/apperr"
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

const sessionCols = `id, patient_id, opened_by, current_service, responsible_role,
	status, patient_situation, opened_at, closed_at, last_action_at`

func (r *repoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO session (
			id, patient_id, opened_by, current_service, responsible_role,
			status, patient_situation, opened_at, last_action_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.ID, s.PatientID, s.OpenedBy, s.CurrentService, s.ResponsibleRole,
		s.Status, s.PatientSituation, s.OpenedAt, s.LastActionAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM session WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Session, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM session WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) LockPatient(ctx context.Context, patientID uuid.UUID) error {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM patient WHERE id = $1 FOR UPDATE`, patientID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("patient introuvable")
	}
	return err
}

func (r *repoPG) FindActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Session, error) {
	s, err := scanSession(r.conn(ctx).QueryRow(ctx, `
		SELECT `+sessionCols+` FROM session
		WHERE patient_id = $1 AND status <> $2
		LIMIT 1`, patientID, StatusTerminated))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("aucune session active").Wrap(err)
	}
	return s, err
}

func (r *repoPG) Update(ctx context.Context, s *Session) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE session SET
			current_service=$2, responsible_role=$3, status=$4,
			patient_situation=$5, closed_at=$6, last_action_at=$7
		WHERE id = $1`,
		s.ID, s.CurrentService, s.ResponsibleRole, s.Status,
		s.PatientSituation, s.ClosedAt, s.LastActionAt,
	)
	return err
}

func (r *repoPG) MarkReceived(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE session SET patient_situation = $2, last_action_at = $3
		WHERE id = $1 AND patient_situation = $4 AND status <> $5`,
		id, SituationReceived, now, SituationWaiting, StatusTerminated,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Queue(ctx context.Context, service, role string) ([]QueueRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT s.id, s.patient_situation, s.opened_at,
		       p.id, p.matricule, p.first_name || ' ' || p.last_name,
		       p.birth_date, p.contact
		FROM session s
		JOIN patient p ON p.id = s.patient_id
		WHERE s.current_service = $1
		  AND s.responsible_role = $2
		  AND s.patient_situation = $3
		  AND s.status <> $4
		ORDER BY s.opened_at ASC, s.id ASC`,
		service, role, SituationWaiting, StatusTerminated,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueRow
	for rows.Next() {
		var q QueueRow
		if err := rows.Scan(
			&q.SessionID, &q.Situation, &q.OpenedAt,
			&q.Patient.ID, &q.Patient.Matricule, &q.Patient.FullName,
			&q.Patient.BirthDate, &q.Patient.Contact,
		); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Session, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sessionCols+` FROM session
		WHERE patient_id = $1
		ORDER BY opened_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *repoPG) ListIdle(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sessionCols+` FROM session
		WHERE status <> $1 AND last_action_at < $2`,
		StatusTerminated, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.PatientID, &s.OpenedBy, &s.CurrentService, &s.ResponsibleRole,
		&s.Status, &s.PatientSituation, &s.OpenedAt, &s.ClosedAt, &s.LastActionAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSessions(rows pgx.Rows) ([]*Session, error) {
	var out []*Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(
			&s.ID, &s.PatientID, &s.OpenedBy, &s.CurrentService, &s.ResponsibleRole,
			&s.Status, &s.PatientSituation, &s.OpenedAt, &s.ClosedAt, &s.LastActionAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
