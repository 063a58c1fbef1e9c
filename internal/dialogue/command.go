package dialogue

import "github.com/loqalabs/voicepay/internal/contacts"

// Kind identifies a recognized user intent.
type Kind int

const (
	Unrecognized Kind = iota
	ShowHistory
	Cancel
	InitiatePayment
	SelectContact
	SetAmount
	Approve
)

var kindNames = [...]string{
	Unrecognized:    "unrecognized",
	ShowHistory:     "show_history",
	Cancel:          "cancel",
	InitiatePayment: "initiate_payment",
	SelectContact:   "select_contact",
	SetAmount:       "set_amount",
	Approve:         "approve",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Command is the interpreter's verdict on one utterance or UI action.
type Command struct {
	Kind Kind
	// Contact is set for SelectContact.
	Contact contacts.Contact
	// Amount holds the digit string for SetAmount.
	Amount string
	// HistoryCount is the ledger size observed when ShowHistory was recognized.
	HistoryCount int
}
