package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/pkg/pagination"
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

const patientCols = `id, matricule, first_name, last_name, birth_date, contact,
	next_of_kin_name, next_of_kin_contact, email, registered_by,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (
			id, matricule, first_name, last_name, birth_date, contact,
			next_of_kin_name, next_of_kin_contact, email, registered_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Matricule, p.FirstName, p.LastName, p.BirthDate, p.Contact,
		p.NextOfKinName, p.NextOfKinContact, p.Email, p.RegisteredBy,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) GetByMatricule(ctx context.Context, matricule string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patient WHERE LOWER(matricule) = LOWER($1)`, matricule))
}

func (r *repoPG) FindByContact(ctx context.Context, phone string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE contact = $1 OR next_of_kin_contact = $1`, phone))
}

func (r *repoPG) FindByEmail(ctx context.Context, email string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patient WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *repoPG) List(ctx context.Context, params pagination.Params) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patient
		ORDER BY created_at DESC `+params.SQL())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	patients, err := scanPatients(rows)
	return patients, total, err
}

func (r *repoPG) Search(ctx context.Context, query string, params pagination.Params) ([]*Patient, int, error) {
	pattern := "%" + query + "%"
	where := `WHERE matricule ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1 OR contact ILIKE $1`
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient `+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patient `+where+`
		ORDER BY created_at DESC `+params.SQL(), pattern)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	patients, err := scanPatients(rows)
	return patients, total, err
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			first_name=$2, last_name=$3, birth_date=$4, contact=$5,
			next_of_kin_name=$6, next_of_kin_contact=$7, email=$8, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Contact,
		p.NextOfKinName, p.NextOfKinContact, p.Email,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	return err
}

func (r *repoPG) CountByRegistrar(ctx context.Context, staffID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient WHERE registered_by = $1`, staffID).Scan(&n)
	return n, err
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.Matricule, &p.FirstName, &p.LastName, &p.BirthDate, &p.Contact,
		&p.NextOfKinName, &p.NextOfKinContact, &p.Email, &p.RegisteredBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPatients(rows pgx.Rows) ([]*Patient, error) {
	var out []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(
			&p.ID, &p.Matricule, &p.FirstName, &p.LastName, &p.BirthDate, &p.Contact,
			&p.NextOfKinName, &p.NextOfKinContact, &p.Email, &p.RegisteredBy,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

type recordRepoPG struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recordCols = `id, patient_id, blood_group, rhesus, weight_kg, height_cm,
	allergies, antecedents, created_at, updated_at`

func (r *recordRepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	rec.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_record (
			id, patient_id, blood_group, rhesus, weight_kg, height_cm,
			allergies, antecedents
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.PatientID, rec.BloodGroup, rec.Rhesus, rec.WeightKg, rec.HeightCm,
		rec.Allergies, rec.Antecedents,
	)
	return err
}

func (r *recordRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*MedicalRecord, error) {
	var rec MedicalRecord
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+recordCols+` FROM medical_record WHERE patient_id = $1`, patientID).Scan(
		&rec.ID, &rec.PatientID, &rec.BloodGroup, &rec.Rhesus, &rec.WeightKg, &rec.HeightCm,
		&rec.Allergies, &rec.Antecedents, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepoPG) Update(ctx context.Context, rec *MedicalRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_record SET
			blood_group=$2, rhesus=$3, weight_kg=$4, height_cm=$5,
			allergies=$6, antecedents=$7, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.BloodGroup, rec.Rhesus, rec.WeightKg, rec.HeightCm,
		rec.Allergies, rec.Antecedents,
	)
	return err
}
