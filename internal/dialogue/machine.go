package dialogue

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loqalabs/voicepay/internal/clock"
	"github.com/loqalabs/voicepay/internal/contacts"
	"github.com/loqalabs/voicepay/internal/ledger"
)

// ErrCommandNotAllowed is returned by Apply for a command the current state
// does not accept. Only UI actions can produce one; the interpreter never does.
var ErrCommandNotAllowed = errors.New("command not allowed in current state")

// Speaker queues a prompt for synthesis.
type Speaker interface {
	Speak(text string)
}

// StatusSink receives the user-visible status line.
type StatusSink interface {
	SetStatus(text string)
}

// Transition describes one state change and the command that caused it. Timer
// driven transitions carry a zero Command with Timer set.
type Transition struct {
	From    State
	To      State
	Command Command
	Timer   string
	At      time.Time
}

// Timing holds the two fixed wall-clock delays of the payment cycle.
type Timing struct {
	// ProcessingDelay is the simulated settlement latency.
	ProcessingDelay time.Duration
	// ReturnDelay is how long the success screen stays up.
	ReturnDelay time.Duration
}

// DefaultTiming matches the delays of the reference payment app.
func DefaultTiming() Timing {
	return Timing{ProcessingDelay: 2 * time.Second, ReturnDelay: 3 * time.Second}
}

const (
	TimerSettlement = "settlement"
	TimerAutoReturn = "auto_return"
)

type Config struct {
	Ledger    *ledger.Ledger
	Contacts  contacts.Directory
	Speaker   Speaker
	Status    StatusSink
	Scheduler clock.Scheduler
	Timing    Timing
	Logger    *slog.Logger

	OnTransition func(Transition)
	OnCommit     func(ledger.Transaction)
}

// Machine owns the dialogue state. It is not safe for concurrent use; the
// session loop is its only caller.
type Machine struct {
	cfg    Config
	state  State
	interp *Interpreter
	log    *slog.Logger

	// dwelling is set from Success until the machine next reaches Home.
	dwelling bool
}

func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("dialogue machine requires a scheduler")
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New(cfg.Scheduler.Now)
	}
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Machine{
		cfg:    cfg,
		state:  Home,
		interp: NewInterpreter(cfg.Contacts),
		log:    logger.With(slog.String("component", "dialogue")),
	}, nil
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Ledger() *ledger.Ledger { return m.cfg.Ledger }

func (m *Machine) Contacts() contacts.Directory { return m.cfg.Contacts }

// HandleUtterance interprets a finalized utterance in the current state and
// applies the result.
func (m *Machine) HandleUtterance(text string) Command {
	cmd := m.interp.Interpret(m.state, text, m.cfg.Ledger.Count())
	if err := m.Apply(cmd); err != nil {
		m.log.Debug("utterance ignored", slog.String("state", m.state.String()), slog.String("kind", cmd.Kind.String()))
	}
	return cmd
}

// Apply executes cmd against the current state.
func (m *Machine) Apply(cmd Command) error {
	if m.state == Processing {
		m.setStatus(statusPaymentLocked)
		return m.notAllowed(cmd)
	}
	if m.state == Success && cmd.Kind != ShowHistory && cmd.Kind != Unrecognized {
		return m.notAllowed(cmd)
	}

	switch cmd.Kind {
	case Unrecognized:
		m.setStatus(statusNotRecognized)
		m.speak(promptNotUnderstood)

	case ShowHistory:
		count := m.cfg.Ledger.Count()
		m.transition(History, cmd, "")
		m.setStatus(statusHistory(count))
		m.speak(promptHistory(count))

	case Cancel:
		m.cfg.Ledger.BeginDraft()
		m.transition(Home, cmd, "")
		m.setStatus(statusCancelled)
		m.speak(promptCancelled)

	case InitiatePayment:
		if m.state != Home {
			return m.notAllowed(cmd)
		}
		m.cfg.Ledger.BeginDraft()
		m.transition(SelectRecipient, cmd, "")
		m.setStatus(statusSelectContact)
		m.speak(promptSelectContact)

	case SelectContact:
		if m.state != SelectRecipient {
			return m.notAllowed(cmd)
		}
		m.cfg.Ledger.UpdateDraft(ledger.Draft{Recipient: cmd.Contact.Name, UPIID: cmd.Contact.UPIID})
		m.transition(EnterAmount, cmd, "")
		m.setStatus(statusAmount(cmd.Contact.Name))
		m.speak(promptAmount(cmd.Contact.Name))

	case SetAmount:
		if m.state != EnterAmount || !ValidAmount(cmd.Amount) {
			return m.notAllowed(cmd)
		}
		m.cfg.Ledger.UpdateDraft(ledger.Draft{Amount: cmd.Amount})
		draft := m.cfg.Ledger.Draft()
		m.transition(Confirm, cmd, "")
		m.setStatus(statusConfirm)
		m.speak(promptConfirm(draft.Amount, draft.Recipient, draft.UPIID))

	case Approve:
		if m.state != Confirm {
			return m.notAllowed(cmd)
		}
		m.transition(Processing, cmd, "")
		m.setStatus(statusProcessing)
		m.speak(promptProcessing)
		m.cfg.Scheduler.AfterFunc(TimerSettlement, m.cfg.Timing.ProcessingDelay, m.settle)

	default:
		return m.notAllowed(cmd)
	}
	return nil
}

// Reprompt speaks the hint for the current state, if it has one.
func (m *Machine) Reprompt() {
	prompt, status := repromptFor(m.state)
	if prompt == "" {
		return
	}
	m.setStatus(status)
	m.speak(prompt)
}

func (m *Machine) settle() {
	if m.state != Processing {
		return
	}
	txn, err := m.cfg.Ledger.Commit()
	if err != nil {
		m.log.Error("commit failed, aborting transaction", slogError(err))
		m.cfg.Ledger.BeginDraft()
		m.transition(Home, Command{}, TimerSettlement)
		m.setStatus(statusPaymentAborted)
		m.speak(promptPaymentFailed)
		return
	}
	if m.cfg.OnCommit != nil {
		m.cfg.OnCommit(txn)
	}
	m.transition(Success, Command{}, TimerSettlement)
	m.setStatus(statusSuccess)
	m.speak(promptSuccess(txn.Amount, txn.Recipient))
	m.dwelling = true
	m.cfg.Scheduler.AfterFunc(TimerAutoReturn, m.cfg.Timing.ReturnDelay, m.autoReturn)
}

// autoReturn ends the success dwell, also when the user opened history in the
// meantime. If Home was already reached by a cancel there is nothing to do.
func (m *Machine) autoReturn() {
	if !m.dwelling {
		return
	}
	m.cfg.Ledger.BeginDraft()
	m.transition(Home, Command{}, TimerAutoReturn)
	m.setStatus("")
}

func (m *Machine) transition(to State, cmd Command, timer string) {
	from := m.state
	m.state = to
	if to == Home {
		m.dwelling = false
	}
	m.log.Info("dialogue transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("command", cmd.Kind.String()),
		slog.String("timer", timer))
	if m.cfg.OnTransition != nil {
		m.cfg.OnTransition(Transition{From: from, To: to, Command: cmd, Timer: timer, At: m.cfg.Scheduler.Now()})
	}
}

func (m *Machine) notAllowed(cmd Command) error {
	if !m.state.locked() {
		m.setStatus(statusNotAvailable)
	}
	return fmt.Errorf("%w: %s in %s", ErrCommandNotAllowed, cmd.Kind, m.state)
}

func (m *Machine) speak(text string) {
	if m.cfg.Speaker != nil {
		m.cfg.Speaker.Speak(text)
	}
}

func (m *Machine) setStatus(text string) {
	if m.cfg.Status != nil {
		m.cfg.Status.SetStatus(text)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
