package dialogue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/voicepay/internal/clock"
	"github.com/loqalabs/voicepay/internal/contacts"
	"github.com/loqalabs/voicepay/internal/ledger"
)

type recorder struct {
	spoken []string
	status []string
}

func (r *recorder) Speak(text string)     { r.spoken = append(r.spoken, text) }
func (r *recorder) SetStatus(text string) { r.status = append(r.status, text) }

func (r *recorder) lastSpoken() string {
	if len(r.spoken) == 0 {
		return ""
	}
	return r.spoken[len(r.spoken)-1]
}

func (r *recorder) lastStatus() string {
	if len(r.status) == 0 {
		return ""
	}
	return r.status[len(r.status)-1]
}

type fixture struct {
	m           *Machine
	rec         *recorder
	clk         *clock.Manual
	transitions []Transition
	commits     []ledger.Transaction
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rec: &recorder{},
		clk: clock.NewManual(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)),
	}
	m, err := NewMachine(Config{
		Contacts:     contacts.Default(),
		Speaker:      f.rec,
		Status:       f.rec,
		Scheduler:    f.clk,
		Timing:       DefaultTiming(),
		OnTransition: func(tr Transition) { f.transitions = append(f.transitions, tr) },
		OnCommit:     func(txn ledger.Transaction) { f.commits = append(f.commits, txn) },
	})
	require.NoError(t, err)
	f.m = m
	return f
}

func (f *fixture) say(t *testing.T, utterance string, want Kind) {
	t.Helper()
	cmd := f.m.HandleUtterance(utterance)
	require.Equal(t, want, cmd.Kind, "utterance %q in %s", utterance, f.m.State())
}

// driveTo walks the happy path until the machine reaches target.
func (f *fixture) driveTo(t *testing.T, target State) {
	t.Helper()
	steps := []struct {
		state     State
		utterance string
		kind      Kind
	}{
		{SelectRecipient, "initiate payment", InitiatePayment},
		{EnterAmount, "pay ram", SelectContact},
		{Confirm, "500 rupees", SetAmount},
		{Processing, "approve", Approve},
	}
	if target == Home {
		return
	}
	if target == History {
		f.say(t, "show history", ShowHistory)
		return
	}
	for _, step := range steps {
		f.say(t, step.utterance, step.kind)
		require.Equal(t, step.state, f.m.State())
		if step.state == target {
			return
		}
	}
	require.Equal(t, Success, target)
	f.clk.Advance(2 * time.Second)
	require.Equal(t, Success, f.m.State())
}

func TestNewMachineRequiresScheduler(t *testing.T) {
	_, err := NewMachine(Config{})
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, Home, f.m.State())

	f.say(t, "initiate payment", InitiatePayment)
	assert.Equal(t, SelectRecipient, f.m.State())
	assert.Equal(t, "Please select a contact by saying their name.", f.rec.lastSpoken())

	f.say(t, "ram", SelectContact)
	assert.Equal(t, EnterAmount, f.m.State())
	assert.Equal(t, "How much would you like to pay Ram?", f.rec.lastSpoken())
	assert.Equal(t, "Enter Amount for Ram", f.rec.lastStatus())

	f.say(t, "500", SetAmount)
	assert.Equal(t, Confirm, f.m.State())
	assert.Equal(t, "Confirm payment of 500 rupees to Ram at ram@paytm. Say approve to proceed.", f.rec.lastSpoken())

	f.say(t, "approve", Approve)
	assert.Equal(t, Processing, f.m.State())
	assert.Equal(t, "Processing your payment. Please wait.", f.rec.lastSpoken())
	assert.Equal(t, []string{TimerSettlement}, f.clk.Pending())

	f.clk.Advance(1999 * time.Millisecond)
	assert.Equal(t, Processing, f.m.State())
	f.clk.Advance(time.Millisecond)
	assert.Equal(t, Success, f.m.State())
	assert.Equal(t, "Payment successful! 500 rupees sent to Ram.", f.rec.lastSpoken())
	assert.Equal(t, "500", f.m.Ledger().Draft().Amount, "success screen still shows the draft")

	f.clk.Advance(3 * time.Second)
	assert.Equal(t, Home, f.m.State())
	assert.Equal(t, ledger.Draft{}, f.m.Ledger().Draft())

	history := f.m.Ledger().History()
	require.Len(t, history, 1)
	assert.Equal(t, "Ram", history[0].Recipient)
	assert.Equal(t, "500", history[0].Amount)
	assert.Equal(t, ledger.StatusSuccess, history[0].Status)
	require.Len(t, f.commits, 1)

	var path []State
	for _, tr := range f.transitions {
		path = append(path, tr.To)
	}
	assert.Equal(t, []State{SelectRecipient, EnterAmount, Confirm, Processing, Success, Home}, path)
	assert.Equal(t, TimerAutoReturn, f.transitions[len(f.transitions)-1].Timer)
}

func TestSecondPaymentPrependsHistory(t *testing.T) {
	f := newFixture(t)
	f.driveTo(t, Success)
	f.clk.Advance(3 * time.Second)

	f.say(t, "start payment", InitiatePayment)
	f.say(t, "john", SelectContact)
	f.say(t, "75", SetAmount)
	f.say(t, "yes", Approve)
	f.clk.Advance(5 * time.Second)

	history := f.m.Ledger().History()
	require.Len(t, history, 2)
	assert.Equal(t, "John", history[0].Recipient)
	assert.Equal(t, "Ram", history[1].Recipient)
	assert.Greater(t, history[0].ID, history[1].ID)
}

func TestCancelFromRevocableStates(t *testing.T) {
	for _, s := range []State{Home, SelectRecipient, EnterAmount, Confirm, History} {
		t.Run(s.String(), func(t *testing.T) {
			f := newFixture(t)
			f.driveTo(t, s)
			f.say(t, "cancel", Cancel)
			assert.Equal(t, Home, f.m.State())
			assert.Equal(t, ledger.Draft{}, f.m.Ledger().Draft())
			assert.Equal(t, "Transaction cancelled. Returning to home.", f.rec.lastSpoken())
			assert.Empty(t, f.clk.Pending())
		})
	}
}

func TestCancelIgnoredOnceApproved(t *testing.T) {
	for _, s := range []State{Processing, Success} {
		t.Run(s.String(), func(t *testing.T) {
			f := newFixture(t)
			f.driveTo(t, s)
			spoken := len(f.rec.spoken)

			cmd := f.m.HandleUtterance("cancel")
			assert.Equal(t, Cancel, cmd.Kind)
			assert.Equal(t, s, f.m.State())
			assert.Len(t, f.rec.spoken, spoken, "no prompt for a refused cancel")
			assert.ErrorIs(t, f.m.Apply(Command{Kind: Cancel}), ErrCommandNotAllowed)

			f.clk.Advance(10 * time.Second)
			assert.Equal(t, Home, f.m.State())
			assert.Equal(t, 1, f.m.Ledger().Count())
		})
	}
}

func TestProcessingAcceptsNoInput(t *testing.T) {
	f := newFixture(t)
	f.driveTo(t, Processing)
	spoken := len(f.rec.spoken)

	f.m.HandleUtterance("show history")
	f.m.HandleUtterance("mumble")
	assert.Equal(t, Processing, f.m.State())
	assert.Len(t, f.rec.spoken, spoken)
	assert.Equal(t, "Payment in progress. Please wait.", f.rec.lastStatus())
}

func TestShowHistoryKeepsDraftAndLedger(t *testing.T) {
	f := newFixture(t)
	f.driveTo(t, Success)
	f.clk.Advance(3 * time.Second)
	f.driveTo(t, Confirm)
	before := f.m.Ledger().Draft()

	f.say(t, "view transaction history", ShowHistory)
	assert.Equal(t, History, f.m.State())
	assert.Equal(t, before, f.m.Ledger().Draft())
	assert.Equal(t, 1, f.m.Ledger().Count())
	assert.Equal(t, "Showing 1 transaction", f.rec.lastSpoken())
	assert.Equal(t, "Transaction History (1 items)", f.rec.lastStatus())
}

func TestAutoReturnLeavesHistoryOpenedDuringSuccess(t *testing.T) {
	f := newFixture(t)
	f.driveTo(t, Success)
	f.say(t, "show history", ShowHistory)
	require.Equal(t, History, f.m.State())

	f.clk.Advance(3 * time.Second)
	assert.Equal(t, Home, f.m.State())
	assert.Equal(t, ledger.Draft{}, f.m.Ledger().Draft())
	assert.Empty(t, f.clk.Pending())
	last := f.transitions[len(f.transitions)-1]
	assert.Equal(t, History, last.From)
	assert.Equal(t, TimerAutoReturn, last.Timer)
}

func TestAutoReturnSparesPaymentStartedAfterCancel(t *testing.T) {
	f := newFixture(t)
	f.driveTo(t, Success)
	f.say(t, "show history", ShowHistory)
	f.say(t, "go back", Cancel)
	f.say(t, "initiate payment", InitiatePayment)
	f.say(t, "pay john", SelectContact)

	f.clk.Advance(3 * time.Second)
	assert.Equal(t, EnterAmount, f.m.State())
	assert.Equal(t, "John", f.m.Ledger().Draft().Recipient)
}

func TestUnrecognizedKeepsState(t *testing.T) {
	f := newFixture(t)
	f.driveTo(t, EnterAmount)
	draft := f.m.Ledger().Draft()

	f.say(t, "one thousand", Unrecognized)
	assert.Equal(t, EnterAmount, f.m.State())
	assert.Equal(t, draft, f.m.Ledger().Draft())
	assert.Equal(t, "Sorry, I did not understand that command.", f.rec.lastSpoken())
	assert.Equal(t, "Command not recognized. Try again.", f.rec.lastStatus())
}

func TestApplyRejectsOutOfStateUIActions(t *testing.T) {
	f := newFixture(t)
	ram, _ := contacts.Default().ByID(1)

	err := f.m.Apply(Command{Kind: SelectContact, Contact: ram})
	require.ErrorIs(t, err, ErrCommandNotAllowed)
	assert.Equal(t, Home, f.m.State())

	f.driveTo(t, EnterAmount)
	require.ErrorIs(t, f.m.Apply(Command{Kind: SetAmount, Amount: "12345678"}), ErrCommandNotAllowed)
	require.ErrorIs(t, f.m.Apply(Command{Kind: Approve}), ErrCommandNotAllowed)
	require.NoError(t, f.m.Apply(Command{Kind: SetAmount, Amount: "2000"}))
	assert.Equal(t, Confirm, f.m.State())
}

func TestCommitFailureAbortsToHome(t *testing.T) {
	f := newFixture(t)
	f.driveTo(t, Processing)
	f.m.Ledger().BeginDraft()

	f.clk.Advance(2 * time.Second)
	assert.Equal(t, Home, f.m.State())
	assert.Zero(t, f.m.Ledger().Count())
	assert.Empty(t, f.commits)
	assert.Equal(t, "Payment could not be completed. Returning to home.", f.rec.lastStatus())
	assert.Empty(t, f.clk.Pending(), "no auto-return after an aborted payment")
}

func TestReprompt(t *testing.T) {
	f := newFixture(t)
	f.m.Reprompt()
	assert.Equal(t, "Say initiate payment to begin.", f.rec.lastSpoken())

	f.driveTo(t, Processing)
	spoken := len(f.rec.spoken)
	f.m.Reprompt()
	assert.Len(t, f.rec.spoken, spoken)
}
