package session

import (
	"log/slog"
	"strings"

	"github.com/loqalabs/voicepay/internal/dialogue"
	"github.com/loqalabs/voicepay/internal/eventstore"
	"github.com/loqalabs/voicepay/internal/protocol"
)

// HandleUIEvent queues a tap or click from any surface. UI actions share the
// loop, and therefore the ordering, of voice commands.
func (s *Session) HandleUIEvent(evt protocol.UIEvent) {
	s.post("ui."+evt.Type, func() { s.applyUI(evt) })
}

func (s *Session) applyUI(evt protocol.UIEvent) {
	s.record(eventstore.KindUIEvent, evt)

	var cmd dialogue.Command
	switch evt.Type {
	case protocol.UIToggleListening:
		s.toggleListening()
		return
	case protocol.UINewPayment:
		cmd.Kind = dialogue.InitiatePayment
	case protocol.UISelectContact:
		contact, ok := s.machine.Contacts().ByID(evt.ContactID)
		if !ok {
			s.log.Warn("ui selected unknown contact", slog.Int("contact_id", evt.ContactID))
			return
		}
		cmd = dialogue.Command{Kind: dialogue.SelectContact, Contact: contact}
	case protocol.UISetAmount:
		cmd = dialogue.Command{Kind: dialogue.SetAmount, Amount: strings.TrimSpace(evt.Amount)}
	case protocol.UIApprove:
		cmd.Kind = dialogue.Approve
	case protocol.UICancel, protocol.UIGoHome:
		cmd.Kind = dialogue.Cancel
	case protocol.UIShowHistory:
		cmd = dialogue.Command{Kind: dialogue.ShowHistory, HistoryCount: s.machine.Ledger().Count()}
	default:
		s.log.Warn("unknown ui event", slog.String("type", evt.Type))
		return
	}

	s.metrics.command(s.ctx, cmd.Kind, "ui")
	if err := s.machine.Apply(cmd); err != nil {
		s.log.Debug("ui action rejected", slog.String("type", evt.Type), slogError(err))
	}
}
