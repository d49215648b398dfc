package accounting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/broadcast"
	"github.com/clinicore/clinicore/internal/platform/db"
)

var errNotFound = errors.New("not found")

type mockAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*ChartAccount
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{byID: make(map[uuid.UUID]*ChartAccount)}
}

func (m *mockAccounts) Create(_ context.Context, a *ChartAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *mockAccounts) GetByID(_ context.Context, id uuid.UUID) (*ChartAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccounts) GetByNumber(_ context.Context, number string) (*ChartAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Number == number {
			cp := *a
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (m *mockAccounts) List(_ context.Context, class *int) ([]*ChartAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ChartAccount
	for _, a := range m.byID {
		if class != nil && a.Class != *class {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *mockAccounts) Update(_ context.Context, a *ChartAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[a.ID]; !ok {
		return errNotFound
	}
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

type mockJournals struct {
	byCode map[string]*Journal
}

func newMockJournals() *mockJournals {
	return &mockJournals{byCode: make(map[string]*Journal)}
}

func (m *mockJournals) Create(_ context.Context, j *Journal) error {
	j.ID = uuid.New()
	cp := *j
	m.byCode[j.Code] = &cp
	return nil
}

func (m *mockJournals) GetByID(_ context.Context, id uuid.UUID) (*Journal, error) {
	for _, j := range m.byCode {
		if j.ID == id {
			cp := *j
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (m *mockJournals) GetByCode(_ context.Context, code string) (*Journal, error) {
	j, ok := m.byCode[code]
	if !ok {
		return nil, errNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *mockJournals) List(_ context.Context) ([]*Journal, error) {
	var out []*Journal
	for _, j := range m.byCode {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type mockReceipts struct {
	byID map[uuid.UUID]*Receipt
}

func newMockReceipts() *mockReceipts {
	return &mockReceipts{byID: make(map[uuid.UUID]*Receipt)}
}

func (m *mockReceipts) Create(_ context.Context, r *Receipt) error {
	r.ID = uuid.New()
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *mockReceipts) GetByID(_ context.Context, id uuid.UUID) (*Receipt, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockReceipts) List(_ context.Context, from, to time.Time) ([]*Receipt, error) {
	var out []*Receipt
	for _, r := range m.byID {
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockReceipts) ListOutstandingCheques(_ context.Context) ([]*Receipt, error) {
	var out []*Receipt
	for _, r := range m.byID {
		if r.Kind == PaymentCheque && r.EncashmentAt == nil {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockReceipts) Update(_ context.Context, r *Receipt) error {
	if _, ok := m.byID[r.ID]; !ok {
		return errNotFound
	}
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

type mockMappings struct {
	byReason map[string]uuid.UUID
}

func newMockMappings() *mockMappings {
	return &mockMappings{byReason: make(map[string]uuid.UUID)}
}

func (m *mockMappings) Get(_ context.Context, reason string) (uuid.UUID, error) {
	id, ok := m.byReason[reason]
	if !ok {
		return uuid.Nil, errNotFound
	}
	return id, nil
}

func (m *mockMappings) Set(_ context.Context, reason string, accountID uuid.UUID) error {
	m.byReason[reason] = accountID
	return nil
}

func (m *mockMappings) List(_ context.Context) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(m.byReason))
	for k, v := range m.byReason {
		out[k] = v
	}
	return out, nil
}

type mockEntries struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*JournalEntry
	accounts *mockAccounts
}

func newMockEntries() *mockEntries {
	return &mockEntries{byID: make(map[uuid.UUID]*JournalEntry)}
}

func copyEntry(e *JournalEntry) *JournalEntry {
	cp := *e
	cp.Lines = make([]*EntryLine, len(e.Lines))
	for i, l := range e.Lines {
		lc := *l
		cp.Lines[i] = &lc
	}
	return &cp
}

func (m *mockEntries) Create(_ context.Context, e *JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	for _, l := range e.Lines {
		l.ID = uuid.New()
		l.EntryID = e.ID
	}
	m.byID[e.ID] = copyEntry(e)
	return nil
}

func (m *mockEntries) GetByID(_ context.Context, id uuid.UUID) (*JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, errNotFound
	}
	return copyEntry(e), nil
}

func (m *mockEntries) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*JournalEntry, error) {
	return m.GetByID(ctx, id)
}

func (m *mockEntries) List(_ context.Context, from, to time.Time) ([]*JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*JournalEntry
	for _, e := range m.byID {
		if e.Date.Before(from) || !e.Date.Before(to) {
			continue
		}
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (m *mockEntries) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return errNotFound
	}
	e.Status = status
	return nil
}

func (m *mockEntries) LinesByAccount(_ context.Context, accountID uuid.UUID, from, to time.Time) ([]LedgerLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sorted []*JournalEntry
	for _, e := range m.byID {
		if e.Status != EntryPosted || e.Date.Before(from) || !e.Date.Before(to) {
			continue
		}
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Number < sorted[j].Number
	})
	var out []LedgerLine
	for _, e := range sorted {
		for _, l := range e.Lines {
			if l.AccountID != accountID {
				continue
			}
			out = append(out, LedgerLine{
				EntryID:     e.ID,
				EntryNumber: e.Number,
				Date:        e.Date,
				Label:       l.Label,
				Debit:       l.Debit,
				Credit:      l.Credit,
			})
		}
	}
	return out, nil
}

func (m *mockEntries) SumsByAccount(_ context.Context, from, to time.Time, class *int) ([]TrialBalanceRow, error) {
	m.mu.Lock()
	sums := make(map[uuid.UUID]*TrialBalanceRow)
	for _, e := range m.byID {
		if e.Status != EntryPosted || e.Date.Before(from) || !e.Date.Before(to) {
			continue
		}
		for _, l := range e.Lines {
			row, ok := sums[l.AccountID]
			if !ok {
				row = &TrialBalanceRow{AccountID: l.AccountID}
				sums[l.AccountID] = row
			}
			row.TotalDebit += l.Debit
			row.TotalCredit += l.Credit
		}
	}
	m.mu.Unlock()
	var out []TrialBalanceRow
	for id, row := range sums {
		a, err := m.accounts.GetByID(context.Background(), id)
		if err != nil {
			return nil, err
		}
		if class != nil && a.Class != *class {
			continue
		}
		row.AccountNumber = a.Number
		row.AccountLabel = a.Label
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return out, nil
}

type mockSequences struct {
	mu  sync.Mutex
	seq map[string]int
}

func newMockSequences() *mockSequences {
	return &mockSequences{seq: make(map[string]int)}
}

func (m *mockSequences) Next(_ context.Context, scope string, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s-%d", scope, year)
	m.seq[key]++
	return m.seq[key], nil
}

type fixture struct {
	engine    *Engine
	accounts  *mockAccounts
	entries   *mockEntries
	receipts  *mockReceipts
	mappings  *mockMappings
	cash      uuid.UUID
	bank      uuid.UUID
	momo      uuid.UUID
	revenue   uuid.UUID
	pharmacy  uuid.UUID
	expense   uuid.UUID
	liability uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accounts := newMockAccounts()
	journals := newMockJournals()
	receipts := newMockReceipts()
	mappings := newMockMappings()
	entries := newMockEntries()
	entries.accounts = accounts

	engine := NewEngine(accounts, journals, receipts, mappings, entries, newMockSequences(),
		db.NopRunner{}, broadcast.NopPublisher{}, zerolog.Nop())
	engine.SetClock(func() time.Time {
		return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	})

	ctx := context.Background()
	mk := func(number, label string, class int, kind string) uuid.UUID {
		t.Helper()
		a, err := engine.CreateAccount(ctx, AccountInput{Number: number, Label: label, Class: class, Kind: kind})
		if err != nil {
			t.Fatalf("compte %s: %v", number, err)
		}
		return a.ID
	}
	f := &fixture{
		engine:   engine,
		accounts: accounts,
		entries:  entries,
		receipts: receipts,
		mappings: mappings,
	}
	f.cash = mk("571", "Caisse", 5, AccountCash)
	f.bank = mk("521", "Banque", 5, AccountAsset)
	f.momo = mk("572", "Mobile money", 5, AccountCash)
	f.revenue = mk("706", "Prestations de services", 7, AccountRevenue)
	f.pharmacy = mk("701", "Ventes pharmacie", 7, AccountRevenue)
	f.expense = mk("601", "Achats de fournitures", 6, AccountExpense)
	f.liability = mk("401", "Fournisseurs", 4, AccountLiability)

	mkJournal := func(code, label string, account uuid.UUID, contra *uuid.UUID) {
		t.Helper()
		_, err := engine.CreateJournal(ctx, JournalInput{Code: code, Label: label, AccountID: account, ContraAccountID: contra})
		if err != nil {
			t.Fatalf("journal %s: %v", code, err)
		}
	}
	mkJournal(JournalCash, "Journal de caisse", f.cash, &f.revenue)
	mkJournal(JournalBank, "Journal de banque", f.bank, &f.revenue)
	mkJournal(JournalMobileMoney, "Journal mobile money", f.momo, nil)
	mkJournal(JournalMisc, "Opérations diverses", f.cash, nil)
	return f
}

func TestCreateAccount_NumberMatchesClass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateAccount(ctx, AccountInput{
		Number: "411", Label: "Clients", Class: 7, Kind: AccountRevenue,
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("attendu une erreur de validation, obtenu %v", err)
	}

	_, err = f.engine.CreateAccount(ctx, AccountInput{
		Number: "571", Label: "Caisse bis", Class: 5, Kind: AccountCash,
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("attendu un conflit sur le numéro existant, obtenu %v", err)
	}

	a, err := f.engine.CreateAccount(ctx, AccountInput{
		Number: "707", Label: "Produits accessoires", Class: 7, Kind: AccountRevenue,
	})
	if err != nil {
		t.Fatalf("création: %v", err)
	}
	if !a.Active {
		t.Fatal("un compte nouvellement créé doit être actif")
	}
}

func TestPostReceipt_CashGoesToCashJournal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rc, err := f.engine.PostReceipt(ctx, ReceiptInput{
		Amount: 10000, Kind: PaymentCash, Reason: "consultation",
	})
	if err != nil {
		t.Fatalf("enregistrement: %v", err)
	}
	if rc.Number != "QT-2025-00001" {
		t.Fatalf("numéro de quittance %s", rc.Number)
	}

	entry, err := f.engine.GetEntry(ctx, rc.EntryID)
	if err != nil {
		t.Fatalf("écriture: %v", err)
	}
	if entry.Status != EntryPosted {
		t.Fatalf("statut %s, attendu posted", entry.Status)
	}
	if entry.Number != "EC-2025-00001" {
		t.Fatalf("numéro d'écriture %s", entry.Number)
	}
	if len(entry.Lines) != 2 {
		t.Fatalf("%d lignes, attendu 2", len(entry.Lines))
	}
	var debit, credit *EntryLine
	for _, l := range entry.Lines {
		if l.Debit > 0 {
			debit = l
		} else {
			credit = l
		}
	}
	if debit == nil || debit.AccountID != f.cash || debit.Debit != 10000 {
		t.Fatalf("débit attendu de 10000 sur la caisse, obtenu %+v", debit)
	}
	if credit == nil || credit.AccountID != f.revenue || credit.Credit != 10000 {
		t.Fatalf("crédit attendu de 10000 sur le compte de produit, obtenu %+v", credit)
	}

	from, to := mustWindow(2025)
	tb, err := f.engine.TrialBalance(ctx, from, to, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if tb.TotalDebit != 10000 || tb.TotalCredit != 10000 {
		t.Fatalf("totaux de balance %v / %v, attendu 10000 des deux côtés", tb.TotalDebit, tb.TotalCredit)
	}
}

func TestPostReceipt_JournalRouting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Mobile money has no contra-account; map the reason first.
	if err := f.engine.MapRevenue(ctx, "pharmacie", f.pharmacy); err != nil {
		t.Fatalf("correspondance: %v", err)
	}

	cases := []struct {
		kind    string
		account uuid.UUID
	}{
		{PaymentCheque, f.bank},
		{PaymentCard, f.bank},
		{PaymentWire, f.bank},
		{PaymentMobileMoney, f.momo},
	}
	for _, tc := range cases {
		rc, err := f.engine.PostReceipt(ctx, ReceiptInput{
			Amount: 2500, Kind: tc.kind, Reason: "pharmacie",
		})
		if err != nil {
			t.Fatalf("%s: %v", tc.kind, err)
		}
		entry, err := f.engine.GetEntry(ctx, rc.EntryID)
		if err != nil {
			t.Fatalf("%s: écriture: %v", tc.kind, err)
		}
		var debited uuid.UUID
		for _, l := range entry.Lines {
			if l.Debit > 0 {
				debited = l.AccountID
			}
		}
		if debited != tc.account {
			t.Fatalf("%s: mauvais compte de trésorerie débité", tc.kind)
		}
	}
}

func TestPostReceipt_ReasonMappingWinsOverContra(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.MapRevenue(ctx, "pharmacie", f.pharmacy); err != nil {
		t.Fatalf("correspondance: %v", err)
	}
	rc, err := f.engine.PostReceipt(ctx, ReceiptInput{
		Amount: 1200, Kind: PaymentCash, Reason: "pharmacie",
	})
	if err != nil {
		t.Fatalf("enregistrement: %v", err)
	}
	entry, _ := f.engine.GetEntry(ctx, rc.EntryID)
	var credited uuid.UUID
	for _, l := range entry.Lines {
		if l.Credit > 0 {
			credited = l.AccountID
		}
	}
	if credited != f.pharmacy {
		t.Fatal("le motif mappé doit primer sur le compte de contrepartie du journal")
	}
}

func TestPostReceipt_UnmappedReasonWithoutContraFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.PostReceipt(ctx, ReceiptInput{
		Amount: 500, Kind: PaymentMobileMoney, Reason: "motif-inconnu",
	})
	if !apperr.IsKind(err, apperr.KindInvariant) {
		t.Fatalf("attendu un refus de configuration, obtenu %v", err)
	}
	if len(f.receipts.byID) != 0 {
		t.Fatal("aucune quittance ne doit être créée")
	}
}

func TestPostReceipt_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []ReceiptInput{
		{Amount: 0, Kind: PaymentCash, Reason: "consultation"},
		{Amount: -50, Kind: PaymentCash, Reason: "consultation"},
		{Amount: 100, Kind: "bitcoin", Reason: "consultation"},
		{Amount: 100, Kind: PaymentCash, Reason: "  "},
	}
	for i, in := range cases {
		if _, err := f.engine.PostReceipt(ctx, in); !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("cas %d : attendu une erreur de validation, obtenu %v", i, err)
		}
	}
}

func TestEntryNumbering_Monotone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var numbers []string
	for i := 0; i < 5; i++ {
		rc, err := f.engine.PostReceipt(ctx, ReceiptInput{
			Amount: 1000, Kind: PaymentCash, Reason: "consultation",
		})
		if err != nil {
			t.Fatalf("quittance %d: %v", i, err)
		}
		entry, _ := f.engine.GetEntry(ctx, rc.EntryID)
		numbers = append(numbers, entry.Number)
	}
	for i, n := range numbers {
		want := fmt.Sprintf("EC-2025-%05d", i+1)
		if n != want {
			t.Fatalf("numéro %s, attendu %s", n, want)
		}
	}
}

func TestManualEntry_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	single := []LineInput{{AccountID: f.expense, Debit: 100}}
	if _, err := f.engine.CreateManualEntry(ctx, ManualEntryInput{Label: "x", Lines: single}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("une seule ligne : attendu une erreur de validation, obtenu %v", err)
	}

	imbalanced := []LineInput{
		{AccountID: f.expense, Debit: 100.00},
		{AccountID: f.liability, Credit: 100.02},
	}
	if _, err := f.engine.CreateManualEntry(ctx, ManualEntryInput{Label: "x", Lines: imbalanced}); !apperr.IsKind(err, apperr.KindInvariant) {
		t.Fatalf("écart de 0.02 : attendu un refus, obtenu %v", err)
	}

	bothSides := []LineInput{
		{AccountID: f.expense, Debit: 100, Credit: 100},
		{AccountID: f.liability, Credit: 100},
	}
	if _, err := f.engine.CreateManualEntry(ctx, ManualEntryInput{Label: "x", Lines: bothSides}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("débit et crédit sur la même ligne : attendu une erreur de validation, obtenu %v", err)
	}

	emptyLine := []LineInput{
		{AccountID: f.expense},
		{AccountID: f.liability, Credit: 100},
	}
	if _, err := f.engine.CreateManualEntry(ctx, ManualEntryInput{Label: "x", Lines: emptyLine}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("ligne vide : attendu une erreur de validation, obtenu %v", err)
	}

	deactivated, err := f.engine.UpdateAccount(ctx, f.expense, AccountUpdateInput{Active: boolPtr(false)})
	if err != nil {
		t.Fatalf("désactivation: %v", err)
	}
	onInactive := []LineInput{
		{AccountID: deactivated.ID, Debit: 100},
		{AccountID: f.liability, Credit: 100},
	}
	if _, err := f.engine.CreateManualEntry(ctx, ManualEntryInput{Label: "x", Lines: onInactive}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("compte désactivé : attendu une erreur de validation, obtenu %v", err)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestManualEntry_WithinTolerance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lines := []LineInput{
		{AccountID: f.expense, Debit: 100.005},
		{AccountID: f.liability, Credit: 100.00},
	}
	entry, err := f.engine.CreateManualEntry(ctx, ManualEntryInput{Label: "arrondi", Lines: lines})
	if err != nil {
		t.Fatalf("écart sous tolérance refusé: %v", err)
	}
	if entry.Status != EntryPosted {
		t.Fatalf("statut %s, attendu posted", entry.Status)
	}
	if !strings.HasPrefix(entry.Number, "EC-2025-") {
		t.Fatalf("numéro %s", entry.Number)
	}
}

func TestDraftEntry_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lines := []LineInput{
		{AccountID: f.expense, Debit: 300},
		{AccountID: f.liability, Credit: 300},
	}
	draft, err := f.engine.CreateManualEntry(ctx, ManualEntryInput{Label: "facture", Lines: lines, Draft: true})
	if err != nil {
		t.Fatalf("brouillon: %v", err)
	}
	if draft.Status != EntryDraft {
		t.Fatalf("statut %s, attendu draft", draft.Status)
	}

	// A draft counts nowhere until posted.
	from, to := mustWindow(2025)
	tb, err := f.engine.TrialBalance(ctx, from, to, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if len(tb.Rows) != 0 {
		t.Fatal("un brouillon ne doit pas apparaître dans la balance")
	}

	if _, err := f.engine.CancelEntry(ctx, draft.ID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("annulation d'un brouillon : attendu un conflit, obtenu %v", err)
	}

	posted, err := f.engine.PostEntry(ctx, draft.ID)
	if err != nil {
		t.Fatalf("validation: %v", err)
	}
	if posted.Status != EntryPosted {
		t.Fatalf("statut %s, attendu posted", posted.Status)
	}
	if _, err := f.engine.PostEntry(ctx, draft.ID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("double validation : attendu un conflit, obtenu %v", err)
	}
}

func TestCancelEntry_ExcludedFromReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rc, err := f.engine.PostReceipt(ctx, ReceiptInput{
		Amount: 10000, Kind: PaymentCash, Reason: "consultation",
	})
	if err != nil {
		t.Fatalf("quittance: %v", err)
	}

	if _, err := f.engine.CancelEntry(ctx, rc.EntryID); err != nil {
		t.Fatalf("annulation: %v", err)
	}
	if _, err := f.engine.CancelEntry(ctx, rc.EntryID); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("double annulation : attendu un conflit, obtenu %v", err)
	}

	from, to := mustWindow(2025)
	ledger, err := f.engine.GeneralLedger(ctx, f.cash, from, to)
	if err != nil {
		t.Fatalf("grand livre: %v", err)
	}
	if len(ledger.Lines) != 0 || ledger.Balance != 0 {
		t.Fatal("une écriture annulée ne doit plus mouvementer le grand livre")
	}

	// The cancelled number stays burnt.
	next, err := f.engine.PostReceipt(ctx, ReceiptInput{
		Amount: 500, Kind: PaymentCash, Reason: "consultation",
	})
	if err != nil {
		t.Fatalf("quittance suivante: %v", err)
	}
	entry, _ := f.engine.GetEntry(ctx, next.EntryID)
	if entry.Number != "EC-2025-00002" {
		t.Fatalf("numéro %s, attendu EC-2025-00002", entry.Number)
	}
}

func mustWindow(year int) (time.Time, time.Time) {
	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0)
}

func TestGeneralLedger_RunningBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.PostReceipt(ctx, ReceiptInput{
		Amount: 10000, Kind: PaymentCash, Reason: "consultation",
	}); err != nil {
		t.Fatalf("quittance: %v", err)
	}
	// Cash purchase: expense debited, cash credited.
	if _, err := f.engine.CreateManualEntry(ctx, ManualEntryInput{
		Label: "achat fournitures",
		Lines: []LineInput{
			{AccountID: f.expense, Debit: 4000},
			{AccountID: f.cash, Credit: 4000},
		},
	}); err != nil {
		t.Fatalf("écriture manuelle: %v", err)
	}

	from, to := mustWindow(2025)
	ledger, err := f.engine.GeneralLedger(ctx, f.cash, from, to)
	if err != nil {
		t.Fatalf("grand livre: %v", err)
	}
	if len(ledger.Lines) != 2 {
		t.Fatalf("%d lignes, attendu 2", len(ledger.Lines))
	}
	if ledger.Lines[0].Balance != 10000 {
		t.Fatalf("solde après encaissement %v, attendu 10000", ledger.Lines[0].Balance)
	}
	if ledger.Balance != 6000 {
		t.Fatalf("solde final %v, attendu 6000", ledger.Balance)
	}

	// Revenue accumulates on the credit side.
	revenue, err := f.engine.GeneralLedger(ctx, f.revenue, from, to)
	if err != nil {
		t.Fatalf("grand livre produit: %v", err)
	}
	if revenue.Balance != 10000 {
		t.Fatalf("solde produit %v, attendu 10000", revenue.Balance)
	}
}

func TestTrialBalance_SidesAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.PostReceipt(ctx, ReceiptInput{
		Amount: 10000, Kind: PaymentCash, Reason: "consultation",
	}); err != nil {
		t.Fatalf("quittance: %v", err)
	}
	if _, err := f.engine.CreateManualEntry(ctx, ManualEntryInput{
		Label: "achat fournitures",
		Lines: []LineInput{
			{AccountID: f.expense, Debit: 4000},
			{AccountID: f.cash, Credit: 4000},
		},
	}); err != nil {
		t.Fatalf("écriture manuelle: %v", err)
	}

	from, to := mustWindow(2025)
	tb, err := f.engine.TrialBalance(ctx, from, to, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if math.Abs(tb.TotalDebit-tb.TotalCredit) >= balanceTolerance {
		t.Fatalf("totaux %v / %v", tb.TotalDebit, tb.TotalCredit)
	}
	if math.Abs(tb.BalanceDebit-tb.BalanceCredit) >= balanceTolerance {
		t.Fatalf("soldes %v / %v", tb.BalanceDebit, tb.BalanceCredit)
	}

	for _, row := range tb.Rows {
		if row.AccountID == f.cash {
			if row.BalanceDebit != 6000 || row.BalanceCredit != 0 {
				t.Fatalf("soldes caisse %v / %v, attendu 6000 / 0", row.BalanceDebit, row.BalanceCredit)
			}
		}
		if row.AccountID == f.revenue {
			if row.BalanceDebit != 0 || row.BalanceCredit != 10000 {
				t.Fatalf("soldes produit %v / %v, attendu 0 / 10000", row.BalanceDebit, row.BalanceCredit)
			}
		}
	}

	class7 := 7
	filtered, err := f.engine.TrialBalance(ctx, from, to, &class7)
	if err != nil {
		t.Fatalf("balance filtrée: %v", err)
	}
	for _, row := range filtered.Rows {
		if row.AccountID != f.revenue && row.AccountID != f.pharmacy {
			t.Fatal("la balance filtrée ne doit contenir que la classe 7")
		}
	}
}

func TestEncashCheque(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cheque, err := f.engine.PostReceipt(ctx, ReceiptInput{
		Amount: 30000, Kind: PaymentCheque, Reason: "consultation",
	})
	if err != nil {
		t.Fatalf("quittance: %v", err)
	}
	if cheque.EncashmentAt != nil {
		t.Fatal("un chèque fraîchement émis est en attente d'encaissement")
	}

	outstanding, err := f.engine.ListOutstandingCheques(ctx)
	if err != nil {
		t.Fatalf("chèques en attente: %v", err)
	}
	if len(outstanding) != 1 {
		t.Fatalf("%d chèques en attente, attendu 1", len(outstanding))
	}

	encashed, err := f.engine.EncashCheque(ctx, cheque.ID, nil)
	if err != nil {
		t.Fatalf("encaissement: %v", err)
	}
	if encashed.EncashmentAt == nil {
		t.Fatal("l'instant d'encaissement doit être posé")
	}
	if _, err := f.engine.EncashCheque(ctx, cheque.ID, nil); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("double encaissement : attendu un conflit, obtenu %v", err)
	}

	cash, err := f.engine.PostReceipt(ctx, ReceiptInput{
		Amount: 100, Kind: PaymentCash, Reason: "consultation",
	})
	if err != nil {
		t.Fatalf("quittance espèces: %v", err)
	}
	if _, err := f.engine.EncashCheque(ctx, cash.ID, nil); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("encaissement d'une quittance espèces : attendu une erreur de validation, obtenu %v", err)
	}
}
