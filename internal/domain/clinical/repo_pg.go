package clinical

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

// byPatient builds the join clause that scopes a record table to one
// patient through its session.
const byPatient = ` JOIN session s ON s.id = t.session_id WHERE s.patient_id = $1`

func (r *repoPG) CreateObservation(ctx context.Context, o *Observation) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO observation (id, session_id, author_id, content)
		VALUES ($1,$2,$3,$4)`,
		o.ID, o.SessionID, o.AuthorID, o.Content)
	return err
}

const observationCols = `t.id, t.session_id, t.author_id, t.content, t.created_at`

func (r *repoPG) ListObservationsBySession(ctx context.Context, sessionID uuid.UUID) ([]*Observation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+observationCols+` FROM observation t
		WHERE t.session_id = $1 ORDER BY t.created_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

func (r *repoPG) ListObservationsByPatient(ctx context.Context, patientID uuid.UUID) ([]*Observation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+observationCols+` FROM observation t`+byPatient+`
		ORDER BY t.created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanObservations(rows)
}

func scanObservations(rows pgx.Rows) ([]*Observation, error) {
	var out []*Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ID, &o.SessionID, &o.AuthorID, &o.Content, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateMedicationPrescription(ctx context.Context, p *MedicationPrescription) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_prescription (
			id, session_id, author_id, medication, dosage, frequency, duration_days, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.SessionID, p.AuthorID, p.Medication, p.Dosage, p.Frequency, p.DurationDays, p.Notes)
	return err
}

const medicationCols = `t.id, t.session_id, t.author_id, t.medication, t.dosage,
	t.frequency, t.duration_days, t.notes, t.created_at`

func (r *repoPG) ListMedicationsBySession(ctx context.Context, sessionID uuid.UUID) ([]*MedicationPrescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicationCols+` FROM medication_prescription t
		WHERE t.session_id = $1 ORDER BY t.created_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMedications(rows)
}

func (r *repoPG) ListMedicationsByPatient(ctx context.Context, patientID uuid.UUID) ([]*MedicationPrescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicationCols+` FROM medication_prescription t`+byPatient+`
		ORDER BY t.created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMedications(rows)
}

func scanMedications(rows pgx.Rows) ([]*MedicationPrescription, error) {
	var out []*MedicationPrescription
	for rows.Next() {
		var p MedicationPrescription
		if err := rows.Scan(&p.ID, &p.SessionID, &p.AuthorID, &p.Medication, &p.Dosage,
			&p.Frequency, &p.DurationDays, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateExamPrescription(ctx context.Context, p *ExamPrescription) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO exam_prescription (id, session_id, author_id, exam_type, notes)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.SessionID, p.AuthorID, p.ExamType, p.Notes)
	return err
}

const examCols = `t.id, t.session_id, t.author_id, t.exam_type, t.notes, t.created_at`

func (r *repoPG) GetExamPrescription(ctx context.Context, id uuid.UUID) (*ExamPrescription, error) {
	var p ExamPrescription
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+examCols+` FROM exam_prescription t WHERE t.id = $1`, id).Scan(
		&p.ID, &p.SessionID, &p.AuthorID, &p.ExamType, &p.Notes, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) ListExamsBySession(ctx context.Context, sessionID uuid.UUID) ([]*ExamPrescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+examCols+` FROM exam_prescription t
		WHERE t.session_id = $1 ORDER BY t.created_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExams(rows)
}

func (r *repoPG) ListExamsByPatient(ctx context.Context, patientID uuid.UUID) ([]*ExamPrescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+examCols+` FROM exam_prescription t`+byPatient+`
		ORDER BY t.created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExams(rows)
}

func scanExams(rows pgx.Rows) ([]*ExamPrescription, error) {
	var out []*ExamPrescription
	for rows.Next() {
		var p ExamPrescription
		if err := rows.Scan(&p.ID, &p.SessionID, &p.AuthorID, &p.ExamType, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateExamResult(ctx context.Context, res *ExamResult) error {
	res.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO exam_result (id, prescription_id, session_id, author_id, content, performed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		res.ID, res.PrescriptionID, res.SessionID, res.AuthorID, res.Content, res.PerformedAt)
	return err
}

const resultCols = `t.id, t.prescription_id, t.session_id, t.author_id, t.content,
	t.performed_at, t.created_at`

func (r *repoPG) ListResultsBySession(ctx context.Context, sessionID uuid.UUID) ([]*ExamResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+resultCols+` FROM exam_result t
		WHERE t.session_id = $1 ORDER BY t.created_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

func (r *repoPG) ListResultsByPatient(ctx context.Context, patientID uuid.UUID) ([]*ExamResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+resultCols+` FROM exam_result t`+byPatient+`
		ORDER BY t.created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows pgx.Rows) ([]*ExamResult, error) {
	var out []*ExamResult
	for rows.Next() {
		var res ExamResult
		if err := rows.Scan(&res.ID, &res.PrescriptionID, &res.SessionID, &res.AuthorID,
			&res.Content, &res.PerformedAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}
