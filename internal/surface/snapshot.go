// Package surface carries the dialogue session to UI clients: a JSON
// snapshot of everything the payment screen renders, pushed over websockets
// and the bus, and UI actions coming back the other way.
package surface

import (
	"github.com/loqalabs/voicepay/internal/contacts"
	"github.com/loqalabs/voicepay/internal/ledger"
)

// QuickAmounts are the preset amount buttons of the amount screen.
var QuickAmounts = []string{"100", "500", "1000", "2000", "5000"}

// Snapshot is the complete render state of one session.
type Snapshot struct {
	SessionID  string `json:"session_id"`
	Sequence   uint64 `json:"sequence"`
	State      string `json:"state"`
	Status     string `json:"status"`
	Transcript string `json:"transcript"`

	// Available is false when no recognition engine was found at startup.
	Available    bool                 `json:"recognition_available"`
	Listening    bool                 `json:"listening"`
	Speaking     bool                 `json:"speaking"`
	Draft        ledger.Draft         `json:"draft"`
	History      []ledger.Transaction `json:"history"`
	Total        string               `json:"total"`
	Contacts     []contacts.Contact   `json:"contacts"`
	QuickAmounts []string             `json:"quick_amounts"`
}
