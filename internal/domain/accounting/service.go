package accounting

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// balanceTolerance is the widest accepted gap between total debits and
// total credits of one entry.
const balanceTolerance = 0.01

const (
	seqEntry   = "entry"
	seqReceipt = "receipt"
)

// Engine posts receipts and manual journal entries and serves the
// General Ledger and Trial Balance over the posted ones.
type Engine struct {
	accounts  AccountRepository
	journals  JournalRepository
	receipts  ReceiptRepository
	mappings  RevenueMappingRepository
	entries   EntryRepository
	sequences SequenceRepository
	tx        db.TxRunner
	publisher broadcast.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewEngine(
	accounts AccountRepository,
	journals JournalRepository,
	receipts ReceiptRepository,
	mappings RevenueMappingRepository,
	entries EntryRepository,
	sequences SequenceRepository,
	tx db.TxRunner,
	publisher broadcast.Publisher,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		accounts:  accounts,
		journals:  journals,
		receipts:  receipts,
		mappings:  mappings,
		entries:   entries,
		sequences: sequences,
		tx:        tx,
		publisher: publisher,
		logger:    logger.With().Str("component", "accounting").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock substitutes the time source in tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

type AccountInput struct {
	Number   string     `json:"number"`
	Label    string     `json:"label"`
	Class    int        `json:"class"`
	Kind     string     `json:"kind"`
	ParentID *uuid.UUID `json:"parent_id"`
}

func (in *AccountInput) validate() error {
	errs := apperr.NewFieldErrors()
	in.Number = strings.TrimSpace(in.Number)
	in.Label = strings.TrimSpace(in.Label)
	if in.Number == "" {
		errs.Add("number", "le numéro de compte est requis")
	} else {
		for _, r := range in.Number {
			if r < '0' || r > '9' {
				errs.Add("number", "le numéro de compte ne contient que des chiffres")
				break
			}
		}
	}
	if in.Label == "" {
		errs.Add("label", "le libellé est requis")
	}
	if in.Class < 1 || in.Class > 7 {
		errs.Add("class", "la classe doit être comprise entre 1 et 7")
	}
	if !validAccountKinds[in.Kind] {
		errs.Add("kind", "nature de compte inconnue")
	}
	if errs.Empty() && in.Number[0] != byte('0'+in.Class) {
		errs.Add("number", fmt.Sprintf("le numéro doit commencer par le chiffre de la classe %d", in.Class))
	}
	return errs.Err()
}

func (e *Engine) CreateAccount(ctx context.Context, in AccountInput) (*ChartAccount, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if existing, err := e.accounts.GetByNumber(ctx, in.Number); err == nil && existing != nil {
		return nil, apperr.Conflict(fmt.Sprintf("le compte %s existe déjà", in.Number))
	}
	if in.ParentID != nil {
		if _, err := e.accounts.GetByID(ctx, *in.ParentID); err != nil {
			return nil, apperr.NotFound("compte parent introuvable")
		}
	}
	a := &ChartAccount{
		Number:   in.Number,
		Label:    in.Label,
		Class:    in.Class,
		Kind:     in.Kind,
		ParentID: in.ParentID,
		Active:   true,
	}
	if err := e.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	e.publish(ctx, "account", broadcast.ActionCreated, a.ID.String(), a)
	return a, nil
}

type AccountUpdateInput struct {
	Label  *string `json:"label"`
	Active *bool   `json:"active"`
}

func (e *Engine) UpdateAccount(ctx context.Context, id uuid.UUID, in AccountUpdateInput) (*ChartAccount, error) {
	a, err := e.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("compte introuvable")
	}
	if in.Label != nil {
		if strings.TrimSpace(*in.Label) == "" {
			return nil, apperr.Validation("le libellé est requis")
		}
		a.Label = strings.TrimSpace(*in.Label)
	}
	if in.Active != nil {
		a.Active = *in.Active
	}
	if err := e.accounts.Update(ctx, a); err != nil {
		return nil, err
	}
	e.publish(ctx, "account", broadcast.ActionUpdated, a.ID.String(), a)
	return a, nil
}

func (e *Engine) GetAccount(ctx context.Context, id uuid.UUID) (*ChartAccount, error) {
	a, err := e.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("compte introuvable")
	}
	return a, nil
}

func (e *Engine) ListAccounts(ctx context.Context, class *int) ([]*ChartAccount, error) {
	return e.accounts.List(ctx, class)
}

type JournalInput struct {
	Code            string     `json:"code"`
	Label           string     `json:"label"`
	AccountID       uuid.UUID  `json:"account_id"`
	ContraAccountID *uuid.UUID `json:"contra_account_id"`
}

func (e *Engine) CreateJournal(ctx context.Context, in JournalInput) (*Journal, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	errs := apperr.NewFieldErrors()
	if in.Code == "" {
		errs.Add("code", "le code du journal est requis")
	}
	if strings.TrimSpace(in.Label) == "" {
		errs.Add("label", "le libellé est requis")
	}
	if in.AccountID == uuid.Nil {
		errs.Add("account_id", "le compte de trésorerie du journal est requis")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	if existing, err := e.journals.GetByCode(ctx, in.Code); err == nil && existing != nil {
		return nil, apperr.Conflict(fmt.Sprintf("le journal %s existe déjà", in.Code))
	}
	if _, err := e.activeAccount(ctx, in.AccountID); err != nil {
		return nil, err
	}
	if in.ContraAccountID != nil {
		if _, err := e.activeAccount(ctx, *in.ContraAccountID); err != nil {
			return nil, err
		}
	}
	j := &Journal{
		Code:            in.Code,
		Label:           strings.TrimSpace(in.Label),
		AccountID:       in.AccountID,
		ContraAccountID: in.ContraAccountID,
	}
	if err := e.journals.Create(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (e *Engine) ListJournals(ctx context.Context) ([]*Journal, error) {
	return e.journals.List(ctx)
}

// MapRevenue binds a receipt reason to the revenue account credited when
// a receipt with that reason is posted.
func (e *Engine) MapRevenue(ctx context.Context, reason string, accountID uuid.UUID) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Validation("le motif est requis")
	}
	a, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if a.Kind != AccountRevenue {
		return apperr.Validation(fmt.Sprintf("le compte %s n'est pas un compte de produit", a.Number))
	}
	return e.mappings.Set(ctx, reason, accountID)
}

func (e *Engine) ListRevenueMappings(ctx context.Context) (map[string]uuid.UUID, error) {
	return e.mappings.List(ctx)
}

type ReceiptInput struct {
	SessionID *uuid.UUID `json:"id_session"`
	Amount    float64    `json:"amount"`
	Kind      string     `json:"kind"`
	Reason    string     `json:"reason"`
}

func (in *ReceiptInput) validate() error {
	errs := apperr.NewFieldErrors()
	if in.Amount <= 0 {
		errs.Add("amount", "le montant doit être strictement positif")
	}
	if _, ok := journalForPayment[in.Kind]; !ok {
		errs.Add("kind", "mode de paiement inconnu")
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if in.Reason == "" {
		errs.Add("reason", "le motif est requis")
	}
	return errs.Err()
}

// PostReceipt records the payment and posts its balanced journal entry
// atomically: a debit on the journal's treasury account and a credit on
// the revenue account resolved from the reason.
func (e *Engine) PostReceipt(ctx context.Context, in ReceiptInput) (*Receipt, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	journal, err := e.journals.GetByCode(ctx, journalForPayment[in.Kind])
	if err != nil {
		return nil, apperr.Invariant(fmt.Sprintf("journal %s non configuré", journalForPayment[in.Kind]))
	}
	revenueID, err := e.revenueAccountFor(ctx, in.Reason, journal)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var receipt *Receipt
	err = e.tx.WithTx(ctx, func(ctx context.Context) error {
		entry, err := e.newEntry(ctx, journal.ID, now, in.Reason, EntryPosted, []*EntryLine{
			{AccountID: journal.AccountID, Label: in.Reason, Debit: in.Amount},
			{AccountID: revenueID, Label: in.Reason, Credit: in.Amount},
		})
		if err != nil {
			return err
		}
		seq, err := e.sequences.Next(ctx, seqReceipt, now.Year())
		if err != nil {
			return err
		}
		receipt = &Receipt{
			Number:    fmt.Sprintf("QT-%d-%05d", now.Year(), seq),
			SessionID: in.SessionID,
			Amount:    in.Amount,
			Kind:      in.Kind,
			Reason:    in.Reason,
			EntryID:   entry.ID,
			CreatedAt: now,
		}
		return e.receipts.Create(ctx, receipt)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("receipt", receipt.Number).
		Str("journal", journal.Code).
		Float64("amount", receipt.Amount).
		Msg("quittance enregistrée")
	e.publish(ctx, "receipt", broadcast.ActionCreated, receipt.ID.String(), receipt)
	return receipt, nil
}

// revenueAccountFor resolves the credited account: the reason mapping
// first, then the journal's default contra-account. No fallback beyond
// that, an unmapped reason is a configuration error.
func (e *Engine) revenueAccountFor(ctx context.Context, reason string, journal *Journal) (uuid.UUID, error) {
	if id, err := e.mappings.Get(ctx, reason); err == nil && id != uuid.Nil {
		return id, nil
	}
	if journal.ContraAccountID != nil {
		return *journal.ContraAccountID, nil
	}
	return uuid.Nil, apperr.Invariant(
		fmt.Sprintf("aucun compte de produit configuré pour le motif %q", reason)).
		WithSuggestion("ajoutez une correspondance motif → compte ou un compte de contrepartie au journal")
}

func (e *Engine) GetReceipt(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	rc, err := e.receipts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("quittance introuvable")
	}
	return rc, nil
}

func (e *Engine) ListReceipts(ctx context.Context, from, to time.Time) ([]*Receipt, error) {
	return e.receipts.List(ctx, from, to)
}

func (e *Engine) ListOutstandingCheques(ctx context.Context) ([]*Receipt, error) {
	return e.receipts.ListOutstandingCheques(ctx)
}

// EncashCheque stamps the encashment instant on an outstanding cheque.
func (e *Engine) EncashCheque(ctx context.Context, id uuid.UUID, at *time.Time) (*Receipt, error) {
	rc, err := e.receipts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("quittance introuvable")
	}
	if rc.Kind != PaymentCheque {
		return nil, apperr.Validation("seule une quittance par chèque peut être encaissée")
	}
	if rc.EncashmentAt != nil {
		return nil, apperr.Conflict("le chèque est déjà encaissé")
	}
	when := e.now()
	if at != nil {
		when = at.UTC()
	}
	if when.Before(rc.CreatedAt) {
		return nil, apperr.Validation("l'encaissement ne peut précéder l'émission de la quittance")
	}
	rc.EncashmentAt = &when
	if err := e.receipts.Update(ctx, rc); err != nil {
		return nil, err
	}
	e.publish(ctx, "receipt", broadcast.ActionUpdated, rc.ID.String(), rc)
	return rc, nil
}

type LineInput struct {
	AccountID uuid.UUID `json:"account_id"`
	Label     string    `json:"label"`
	Debit     float64   `json:"debit"`
	Credit    float64   `json:"credit"`
}

type ManualEntryInput struct {
	JournalCode string      `json:"journal_code"`
	Date        *time.Time  `json:"date"`
	Label       string      `json:"label"`
	Lines       []LineInput `json:"lines"`
	Draft       bool        `json:"draft"`
}

// CreateManualEntry records a hand-built entry, in the miscellaneous
// journal unless another code is named. Posted immediately unless the
// caller asks for a draft.
func (e *Engine) CreateManualEntry(ctx context.Context, in ManualEntryInput) (*JournalEntry, error) {
	code := strings.ToUpper(strings.TrimSpace(in.JournalCode))
	if code == "" {
		code = JournalMisc
	}
	journal, err := e.journals.GetByCode(ctx, code)
	if err != nil {
		return nil, apperr.NotFound(fmt.Sprintf("journal %s introuvable", code))
	}
	lines, err := e.buildLines(ctx, in.Lines)
	if err != nil {
		return nil, err
	}
	date := e.now()
	if in.Date != nil {
		date = in.Date.UTC()
	}
	status := EntryPosted
	if in.Draft {
		status = EntryDraft
	}
	var entry *JournalEntry
	err = e.tx.WithTx(ctx, func(ctx context.Context) error {
		entry, err = e.newEntry(ctx, journal.ID, date, strings.TrimSpace(in.Label), status, lines)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, "entry", broadcast.ActionCreated, entry.ID.String(), entry)
	return entry, nil
}

// buildLines validates the manual lines: at least two, each carrying
// exactly one strictly positive side, accounts known and active, and
// the two sides balancing within tolerance.
func (e *Engine) buildLines(ctx context.Context, inputs []LineInput) ([]*EntryLine, error) {
	if len(inputs) < 2 {
		return nil, apperr.Validation("une écriture comporte au moins deux lignes")
	}
	var totalDebit, totalCredit float64
	lines := make([]*EntryLine, 0, len(inputs))
	for i, in := range inputs {
		hasDebit := in.Debit != 0
		hasCredit := in.Credit != 0
		if hasDebit == hasCredit {
			return nil, apperr.Validation(
				fmt.Sprintf("ligne %d : exactement un débit ou un crédit est requis", i+1))
		}
		if in.Debit < 0 || in.Credit < 0 {
			return nil, apperr.Validation(
				fmt.Sprintf("ligne %d : les montants sont strictement positifs", i+1))
		}
		if _, err := e.activeAccount(ctx, in.AccountID); err != nil {
			return nil, err
		}
		totalDebit += in.Debit
		totalCredit += in.Credit
		lines = append(lines, &EntryLine{
			AccountID: in.AccountID,
			Label:     strings.TrimSpace(in.Label),
			Debit:     in.Debit,
			Credit:    in.Credit,
		})
	}
	if math.Abs(totalDebit-totalCredit) >= balanceTolerance {
		return nil, apperr.Invariant(
			fmt.Sprintf("écriture déséquilibrée : débits %.2f, crédits %.2f", totalDebit, totalCredit))
	}
	return lines, nil
}

func (e *Engine) activeAccount(ctx context.Context, id uuid.UUID) (*ChartAccount, error) {
	a, err := e.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("compte introuvable")
	}
	if !a.Active {
		return nil, apperr.Validation(fmt.Sprintf("le compte %s est désactivé", a.Number))
	}
	return a, nil
}

// newEntry allocates the yearly number and persists the entry. Runs
// inside the caller's transaction so a failed insert releases nothing
// but a hole in the sequence.
func (e *Engine) newEntry(ctx context.Context, journalID uuid.UUID, date time.Time, label, status string, lines []*EntryLine) (*JournalEntry, error) {
	seq, err := e.sequences.Next(ctx, seqEntry, date.Year())
	if err != nil {
		return nil, err
	}
	entry := &JournalEntry{
		Number:    fmt.Sprintf("EC-%d-%05d", date.Year(), seq),
		JournalID: journalID,
		Date:      date,
		Label:     label,
		Status:    status,
		Lines:     lines,
		CreatedAt: e.now(),
	}
	if err := e.entries.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (e *Engine) GetEntry(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	entry, err := e.entries.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.NotFound("écriture introuvable")
	}
	return entry, nil
}

func (e *Engine) ListEntries(ctx context.Context, from, to time.Time) ([]*JournalEntry, error) {
	return e.entries.List(ctx, from, to)
}

// PostEntry moves a draft to posted.
func (e *Engine) PostEntry(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return e.transition(ctx, id, EntryDraft, EntryPosted,
		"seule une écriture en brouillon peut être validée")
}

// CancelEntry moves a posted entry to cancelled. The lines stay in
// place but stop counting; the number is never reused.
func (e *Engine) CancelEntry(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return e.transition(ctx, id, EntryPosted, EntryCancelled,
		"seule une écriture validée peut être annulée")
}

func (e *Engine) transition(ctx context.Context, id uuid.UUID, from, to, refusal string) (*JournalEntry, error) {
	var entry *JournalEntry
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		entry, err = e.entries.GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.NotFound("écriture introuvable")
		}
		if entry.Status != from {
			return apperr.Conflict(refusal)
		}
		entry.Status = to
		return e.entries.UpdateStatus(ctx, id, to)
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, "entry", broadcast.ActionUpdated, entry.ID.String(), entry)
	return entry, nil
}

// GeneralLedger returns the posted movements of one account over the
// window with a running balance, debit-normal for asset, expense and
// cash accounts, credit-normal otherwise.
func (e *Engine) GeneralLedger(ctx context.Context, accountID uuid.UUID, from, to time.Time) (*Ledger, error) {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperr.NotFound("compte introuvable")
	}
	lines, err := e.entries.LinesByAccount(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}
	var balance float64
	for i := range lines {
		if debitNormal(account.Kind) {
			balance += lines[i].Debit - lines[i].Credit
		} else {
			balance += lines[i].Credit - lines[i].Debit
		}
		lines[i].Balance = balance
	}
	return &Ledger{Account: account, From: from, To: to, Lines: lines, Balance: balance}, nil
}

// TrialBalance aggregates every posted movement per account over the
// window. Total debits and credits must agree.
func (e *Engine) TrialBalance(ctx context.Context, from, to time.Time, class *int) (*TrialBalance, error) {
	rows, err := e.entries.SumsByAccount(ctx, from, to, class)
	if err != nil {
		return nil, err
	}
	tb := &TrialBalance{From: from, To: to, Rows: rows}
	for i := range tb.Rows {
		r := &tb.Rows[i]
		r.BalanceDebit = math.Max(r.TotalDebit-r.TotalCredit, 0)
		r.BalanceCredit = math.Max(r.TotalCredit-r.TotalDebit, 0)
		tb.TotalDebit += r.TotalDebit
		tb.TotalCredit += r.TotalCredit
		tb.BalanceDebit += r.BalanceDebit
		tb.BalanceCredit += r.BalanceCredit
	}
	if class == nil && math.Abs(tb.TotalDebit-tb.TotalCredit) >= balanceTolerance {
		return nil, apperr.Invariant(
			fmt.Sprintf("balance déséquilibrée : débits %.2f, crédits %.2f", tb.TotalDebit, tb.TotalCredit))
	}
	return tb, nil
}

func (e *Engine) publish(ctx context.Context, model, action, id string, payload any) {
	_ = e.publisher.Publish(ctx, broadcast.NewEvent(model, action, id, payload))
}
