package accounting

import (
	"time"

	"github.com/google/uuid"
)

const (
	AccountAsset     = "asset"
	AccountLiability = "liability"
	AccountExpense   = "expense"
	AccountRevenue   = "revenue"
	AccountCash      = "cash"
)

var validAccountKinds = map[string]bool{
	AccountAsset:     true,
	AccountLiability: true,
	AccountExpense:   true,
	AccountRevenue:   true,
	AccountCash:      true,
}

// debitNormal reports whether the account's balance grows on the debit
// side. Cash sits in class 5 but accumulates like an asset.
func debitNormal(kind string) bool {
	switch kind {
	case AccountAsset, AccountExpense, AccountCash:
		return true
	}
	return false
}

// ChartAccount is one node of the chart of accounts. The account number
// always begins with the digit of its class.
type ChartAccount struct {
	ID        uuid.UUID  `json:"id"`
	Number    string     `json:"number"`
	Label     string     `json:"label"`
	Class     int        `json:"class"`
	Kind      string     `json:"kind"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

// Journal codes. JC takes cash, JB cheque/card/wire, JMM mobile money, JOD
// everything entered by hand.
const (
	JournalCash        = "JC"
	JournalBank        = "JB"
	JournalMobileMoney = "JMM"
	JournalMisc        = "JOD"
)

type Journal struct {
	ID              uuid.UUID  `json:"id"`
	Code            string     `json:"code"`
	Label           string     `json:"label"`
	AccountID       uuid.UUID  `json:"account_id"`
	ContraAccountID *uuid.UUID `json:"contra_account_id,omitempty"`
}

// Payment kinds a receipt may carry.
const (
	PaymentCash        = "cash"
	PaymentCheque      = "cheque"
	PaymentCard        = "card"
	PaymentWire        = "wire-transfer"
	PaymentMobileMoney = "mobile-money"
)

// journalForPayment is the fixed payment-kind to journal mapping.
var journalForPayment = map[string]string{
	PaymentCash:        JournalCash,
	PaymentCheque:      JournalBank,
	PaymentCard:        JournalBank,
	PaymentWire:        JournalBank,
	PaymentMobileMoney: JournalMobileMoney,
}

// Receipt is one payment taken at the cash desk. A cheque stays
// outstanding until its encashment instant is recorded.
type Receipt struct {
	ID           uuid.UUID  `json:"id"`
	Number       string     `json:"number"`
	SessionID    *uuid.UUID `json:"session_id,omitempty"`
	Amount       float64    `json:"amount"`
	Kind         string     `json:"kind"`
	Reason       string     `json:"reason"`
	EncashmentAt *time.Time `json:"encashment_at,omitempty"`
	EntryID      uuid.UUID  `json:"entry_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

const (
	EntryDraft     = "draft"
	EntryPosted    = "posted"
	EntryCancelled = "cancelled"
)

// JournalEntry is one balanced transaction of at least two lines.
type JournalEntry struct {
	ID        uuid.UUID    `json:"id"`
	Number    string       `json:"number"`
	JournalID uuid.UUID    `json:"journal_id"`
	Date      time.Time    `json:"date"`
	Label     string       `json:"label"`
	Status    string       `json:"status"`
	Lines     []*EntryLine `json:"lines"`
	CreatedAt time.Time    `json:"created_at"`
}

// EntryLine carries exactly one of debit, credit strictly positive.
type EntryLine struct {
	ID        uuid.UUID `json:"id"`
	EntryID   uuid.UUID `json:"entry_id"`
	AccountID uuid.UUID `json:"account_id"`
	Label     string    `json:"label,omitempty"`
	Debit     float64   `json:"debit"`
	Credit    float64   `json:"credit"`
}

// LedgerLine is one movement of the General Ledger with its running
// balance.
type LedgerLine struct {
	EntryID     uuid.UUID `json:"entry_id"`
	EntryNumber string    `json:"entry_number"`
	Date        time.Time `json:"date"`
	Label       string    `json:"label,omitempty"`
	Debit       float64   `json:"debit"`
	Credit      float64   `json:"credit"`
	Balance     float64   `json:"balance"`
}

// Ledger is the General Ledger of one account over a window.
type Ledger struct {
	Account *ChartAccount `json:"account"`
	From    time.Time     `json:"from"`
	To      time.Time     `json:"to"`
	Lines   []LedgerLine  `json:"lines"`
	Balance float64       `json:"balance"`
}

// TrialBalanceRow aggregates one account's posted movements.
type TrialBalanceRow struct {
	AccountID     uuid.UUID `json:"account_id"`
	AccountNumber string    `json:"account_number"`
	AccountLabel  string    `json:"account_label"`
	TotalDebit    float64   `json:"total_debit"`
	TotalCredit   float64   `json:"total_credit"`
	BalanceDebit  float64   `json:"balance_debit"`
	BalanceCredit float64   `json:"balance_credit"`
}

// TrialBalance totals must agree on both sides.
type TrialBalance struct {
	From          time.Time         `json:"from"`
	To            time.Time         `json:"to"`
	Rows          []TrialBalanceRow `json:"rows"`
	TotalDebit    float64           `json:"total_debit"`
	TotalCredit   float64           `json:"total_credit"`
	BalanceDebit  float64           `json:"balance_debit"`
	BalanceCredit float64           `json:"balance_credit"`
}
