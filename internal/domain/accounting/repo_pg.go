package accounting

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

type accountRepoPG struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) AccountRepository {
	return &accountRepoPG{pool: pool}
}

func (r *accountRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const accountCols = `id, number, label, account_class, account_kind, parent_id, active, created_at`

func (r *accountRepoPG) Create(ctx context.Context, a *ChartAccount) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO chart_account (
			id, number, label, account_class, account_kind, parent_id, active, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.Number, a.Label, a.Class, a.Kind, a.ParentID, a.Active, a.CreatedAt)
	return err
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ChartAccount, error) {
	return scanAccount(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM chart_account WHERE id = $1`, id))
}

func (r *accountRepoPG) GetByNumber(ctx context.Context, number string) (*ChartAccount, error) {
	return scanAccount(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM chart_account WHERE number = $1`, number))
}

func (r *accountRepoPG) List(ctx context.Context, class *int) ([]*ChartAccount, error) {
	q := `SELECT ` + accountCols + ` FROM chart_account`
	args := []interface{}{}
	if class != nil {
		q += ` WHERE account_class = $1`
		args = append(args, *class)
	}
	q += ` ORDER BY number ASC`
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ChartAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *accountRepoPG) Update(ctx context.Context, a *ChartAccount) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE chart_account SET label=$2, parent_id=$3, active=$4 WHERE id = $1`,
		a.ID, a.Label, a.ParentID, a.Active)
	return err
}

func scanAccount(row pgx.Row) (*ChartAccount, error) {
	var a ChartAccount
	err := row.Scan(&a.ID, &a.Number, &a.Label, &a.Class, &a.Kind, &a.ParentID,
		&a.Active, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type journalRepoPG struct {
	pool *pgxpool.Pool
}

func NewJournalRepo(pool *pgxpool.Pool) JournalRepository {
	return &journalRepoPG{pool: pool}
}

func (r *journalRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const journalCols = `id, code, label, account_id, contra_account_id`

func (r *journalRepoPG) Create(ctx context.Context, j *Journal) error {
	j.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO journal (id, code, label, account_id, contra_account_id)
		VALUES ($1,$2,$3,$4,$5)`,
		j.ID, j.Code, j.Label, j.AccountID, j.ContraAccountID)
	return err
}

func (r *journalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Journal, error) {
	return scanJournal(r.conn(ctx).QueryRow(ctx,
		`SELECT `+journalCols+` FROM journal WHERE id = $1`, id))
}

func (r *journalRepoPG) GetByCode(ctx context.Context, code string) (*Journal, error) {
	return scanJournal(r.conn(ctx).QueryRow(ctx,
		`SELECT `+journalCols+` FROM journal WHERE code = $1`, code))
}

func (r *journalRepoPG) List(ctx context.Context) ([]*Journal, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+journalCols+` FROM journal ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Journal
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJournal(row pgx.Row) (*Journal, error) {
	var j Journal
	err := row.Scan(&j.ID, &j.Code, &j.Label, &j.AccountID, &j.ContraAccountID)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

type receiptRepoPG struct {
	pool *pgxpool.Pool
}

func NewReceiptRepo(pool *pgxpool.Pool) ReceiptRepository {
	return &receiptRepoPG{pool: pool}
}

func (r *receiptRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const receiptCols = `id, number, session_id, amount, kind, reason, encashment_at, entry_id, created_at`

func (r *receiptRepoPG) Create(ctx context.Context, rc *Receipt) error {
	rc.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO receipt (
			id, number, session_id, amount, kind, reason, encashment_at, entry_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rc.ID, rc.Number, rc.SessionID, rc.Amount, rc.Kind, rc.Reason,
		rc.EncashmentAt, rc.EntryID, rc.CreatedAt)
	return err
}

func (r *receiptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	return scanReceipt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+receiptCols+` FROM receipt WHERE id = $1`, id))
}

func (r *receiptRepoPG) List(ctx context.Context, from, to time.Time) ([]*Receipt, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+receiptCols+` FROM receipt
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReceipts(rows)
}

func (r *receiptRepoPG) ListOutstandingCheques(ctx context.Context) ([]*Receipt, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+receiptCols+` FROM receipt
		WHERE kind = $1 AND encashment_at IS NULL
		ORDER BY created_at ASC`, PaymentCheque)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReceipts(rows)
}

func (r *receiptRepoPG) Update(ctx context.Context, rc *Receipt) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE receipt SET encashment_at=$2 WHERE id = $1`,
		rc.ID, rc.EncashmentAt)
	return err
}

func scanReceipt(row pgx.Row) (*Receipt, error) {
	var rc Receipt
	err := row.Scan(&rc.ID, &rc.Number, &rc.SessionID, &rc.Amount, &rc.Kind,
		&rc.Reason, &rc.EncashmentAt, &rc.EntryID, &rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func scanReceipts(rows pgx.Rows) ([]*Receipt, error) {
	var out []*Receipt
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.Number, &rc.SessionID, &rc.Amount, &rc.Kind,
			&rc.Reason, &rc.EncashmentAt, &rc.EntryID, &rc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rc)
	}
	return out, rows.Err()
}

type revenueMappingRepoPG struct {
	pool *pgxpool.Pool
}

func NewRevenueMappingRepo(pool *pgxpool.Pool) RevenueMappingRepository {
	return &revenueMappingRepoPG{pool: pool}
}

func (r *revenueMappingRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *revenueMappingRepoPG) Get(ctx context.Context, reason string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT account_id FROM revenue_mapping WHERE reason = $1`, reason).Scan(&id)
	return id, err
}

func (r *revenueMappingRepoPG) Set(ctx context.Context, reason string, accountID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO revenue_mapping (reason, account_id)
		VALUES ($1, $2)
		ON CONFLICT (reason) DO UPDATE SET account_id = EXCLUDED.account_id`,
		reason, accountID)
	return err
}

func (r *revenueMappingRepoPG) List(ctx context.Context) (map[string]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT reason, account_id FROM revenue_mapping ORDER BY reason ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var reason string
		var id uuid.UUID
		if err := rows.Scan(&reason, &id); err != nil {
			return nil, err
		}
		out[reason] = id
	}
	return out, rows.Err()
}

type entryRepoPG struct {
	pool *pgxpool.Pool
}

func NewEntryRepo(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

func (r *entryRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, number, journal_id, entry_date, label, status, created_at`

func scanEntry(row pgx.Row) (*JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.JournalID, &e.Date, &e.Label, &e.Status,
		&e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *entryRepoPG) Create(ctx context.Context, e *JournalEntry) error {
	e.ID = uuid.New()
	q := r.conn(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO journal_entry (
			id, number, journal_id, entry_date, label, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.Number, e.JournalID, e.Date, e.Label, e.Status, e.CreatedAt)
	if err != nil {
		return err
	}
	for _, l := range e.Lines {
		l.ID = uuid.New()
		l.EntryID = e.ID
		_, err := q.Exec(ctx, `
			INSERT INTO entry_line (id, entry_id, account_id, label, debit, credit)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			l.ID, l.EntryID, l.AccountID, l.Label, l.Debit, l.Credit)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *entryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return r.get(ctx, id, false)
}

func (r *entryRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return r.get(ctx, id, true)
}

func (r *entryRepoPG) get(ctx context.Context, id uuid.UUID, lock bool) (*JournalEntry, error) {
	q := `SELECT ` + entryCols + ` FROM journal_entry WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *entryRepoPG) loadLines(ctx context.Context, e *JournalEntry) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, entry_id, account_id, label, debit, credit
		FROM entry_line WHERE entry_id = $1 ORDER BY id`, e.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l EntryLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Label, &l.Debit, &l.Credit); err != nil {
			return err
		}
		e.Lines = append(e.Lines, &l)
	}
	return rows.Err()
}

func (r *entryRepoPG) List(ctx context.Context, from, to time.Time) ([]*JournalEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM journal_entry
		WHERE entry_date >= $1 AND entry_date < $2
		ORDER BY entry_date ASC, number ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, e := range out {
		if err := r.loadLines(ctx, e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *entryRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE journal_entry SET status=$2 WHERE id = $1`, id, status)
	return err
}

func (r *entryRepoPG) LinesByAccount(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]LedgerLine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT e.id, e.number, e.entry_date, l.label, l.debit, l.credit
		FROM entry_line l
		JOIN journal_entry e ON e.id = l.entry_id
		WHERE l.account_id = $1 AND e.status = $2
		  AND e.entry_date >= $3 AND e.entry_date < $4
		ORDER BY e.entry_date ASC, e.number ASC`,
		accountID, EntryPosted, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerLine
	for rows.Next() {
		var ll LedgerLine
		if err := rows.Scan(&ll.EntryID, &ll.EntryNumber, &ll.Date, &ll.Label,
			&ll.Debit, &ll.Credit); err != nil {
			return nil, err
		}
		out = append(out, ll)
	}
	return out, rows.Err()
}

func (r *entryRepoPG) SumsByAccount(ctx context.Context, from, to time.Time, class *int) ([]TrialBalanceRow, error) {
	q := `
		SELECT a.id, a.number, a.label,
		       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
		FROM entry_line l
		JOIN journal_entry e ON e.id = l.entry_id
		JOIN chart_account a ON a.id = l.account_id
		WHERE e.status = $1 AND e.entry_date >= $2 AND e.entry_date < $3`
	args := []interface{}{EntryPosted, from, to}
	if class != nil {
		q += ` AND a.account_class = $4`
		args = append(args, *class)
	}
	q += `
		GROUP BY a.id, a.number, a.label
		ORDER BY a.number ASC`
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var tb TrialBalanceRow
		if err := rows.Scan(&tb.AccountID, &tb.AccountNumber, &tb.AccountLabel,
			&tb.TotalDebit, &tb.TotalCredit); err != nil {
			return nil, err
		}
		out = append(out, tb)
	}
	return out, rows.Err()
}

type sequenceRepoPG struct {
	pool *pgxpool.Pool
}

func NewSequenceRepo(pool *pgxpool.Pool) SequenceRepository {
	return &sequenceRepoPG{pool: pool}
}

func (r *sequenceRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *sequenceRepoPG) Next(ctx context.Context, scope string, year int) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO accounting_counter (scope, year, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (scope, year) DO UPDATE SET seq = accounting_counter.seq + 1
		RETURNING seq`, scope, year).Scan(&seq)
	return seq, err
}
