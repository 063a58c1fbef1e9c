package dialogue

// State is the active screen of the payment conversation.
type State int

const (
	Home State = iota
	SelectRecipient
	EnterAmount
	Confirm
	Processing
	Success
	History
)

var stateNames = [...]string{
	Home:            "home",
	SelectRecipient: "select_recipient",
	EnterAmount:     "enter_amount",
	Confirm:         "confirm",
	Processing:      "processing",
	Success:         "success",
	History:         "history",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// States lists every state in declaration order.
func States() []State {
	return []State{Home, SelectRecipient, EnterAmount, Confirm, Processing, Success, History}
}

// locked reports whether the state belongs to an approved, irrevocable payment.
func (s State) locked() bool {
	return s == Processing || s == Success
}
