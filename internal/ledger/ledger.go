package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidDraft is matched by every *InvalidDraftError.
var ErrInvalidDraft = errors.New("invalid draft transaction")

// InvalidDraftError reports which required draft fields were empty at commit.
type InvalidDraftError struct {
	Missing []string
}

func (e *InvalidDraftError) Error() string {
	return fmt.Sprintf("invalid draft transaction: missing %s", strings.Join(e.Missing, ", "))
}

func (e *InvalidDraftError) Is(target error) bool { return target == ErrInvalidDraft }

// Status of a completed transaction. Settlement is simulated and always succeeds.
type Status string

const StatusSuccess Status = "Success"

// TimestampLayout renders commit times the way the payment screen shows them.
const TimestampLayout = "2/1/2006, 3:04:05 pm"

// Draft is the single in-progress transfer being assembled by the dialogue.
type Draft struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	UPIID     string `json:"upi_id"`
	Note      string `json:"note"`
}

// Transaction is a committed transfer. Never mutated once created.
type Transaction struct {
	ID        int64  `json:"id"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	UPIID     string `json:"upi_id"`
	Note      string `json:"note"`
	Timestamp string `json:"timestamp"`
	Status    Status `json:"status"`
}

// Ledger owns the live draft and the append-only, most-recent-first history.
type Ledger struct {
	mu      sync.RWMutex
	draft   Draft
	history []Transaction
	lastID  int64
	clock   func() time.Time
}

// New returns an empty ledger. A nil now uses time.Now.
func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{clock: now}
}

// BeginDraft resets the draft to empty.
func (l *Ledger) BeginDraft() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.draft = Draft{}
}

// UpdateDraft merges the non-empty fields of fields into the live draft.
func (l *Ledger) UpdateDraft(fields Draft) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fields.Recipient != "" {
		l.draft.Recipient = fields.Recipient
	}
	if fields.Amount != "" {
		l.draft.Amount = fields.Amount
	}
	if fields.UPIID != "" {
		l.draft.UPIID = fields.UPIID
	}
	if fields.Note != "" {
		l.draft.Note = fields.Note
	}
}

// Draft returns a copy of the live draft.
func (l *Ledger) Draft() Draft {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.draft
}

// Commit turns the draft into a completed transaction at the front of the
// history. The draft itself is left in place so the result can be displayed.
func (l *Ledger) Commit() (Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var missing []string
	if l.draft.Recipient == "" {
		missing = append(missing, "recipient")
	}
	if l.draft.Amount == "" {
		missing = append(missing, "amount")
	}
	if l.draft.UPIID == "" {
		missing = append(missing, "upi_id")
	}
	if len(missing) > 0 {
		return Transaction{}, &InvalidDraftError{Missing: missing}
	}

	now := l.clock()
	id := now.UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id

	txn := Transaction{
		ID:        id,
		Recipient: l.draft.Recipient,
		Amount:    l.draft.Amount,
		UPIID:     l.draft.UPIID,
		Note:      l.draft.Note,
		Timestamp: now.Format(TimestampLayout),
		Status:    StatusSuccess,
	}
	l.history = append([]Transaction{txn}, l.history...)
	return txn, nil
}

// History returns a most-recent-first snapshot.
func (l *Ledger) History() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Transaction(nil), l.history...)
}

func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.history)
}

// Total sums the amounts of all completed transactions. Amounts that do not
// parse as decimals are skipped.
func (l *Ledger) Total() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, txn := range l.history {
		amount, err := decimal.NewFromString(txn.Amount)
		if err != nil {
			continue
		}
		total = total.Add(amount)
	}
	return total
}
