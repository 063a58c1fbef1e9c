package surface

import (
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/protocol"
)

// Bridge mirrors a session onto the bus: snapshots go out on ui.state and UI
// events addressed to the session (or to no session) come in from ui.event.
type Bridge struct {
	bus       *bus.Client
	sessionID string
	log       *slog.Logger
	sub       *nats.Subscription
}

func NewBridge(busClient *bus.Client, sessionID string, onEvent EventHandler, log *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		bus:       busClient,
		sessionID: sessionID,
		log:       log.With(slog.String("component", "surface-bridge")),
	}
	sub, err := bus.SubscribeJSON(busClient, protocol.SubjectUIEvent, func(evt protocol.UIEvent) {
		if evt.SessionID != "" && evt.SessionID != b.sessionID {
			return
		}
		if evt.Type == "" {
			b.log.Warn("ui event without type")
			return
		}
		onEvent(evt)
	})
	if err != nil {
		return nil, err
	}
	b.sub = sub
	return b, nil
}

// Publish sends snap on ui.state.
func (b *Bridge) Publish(snap Snapshot) {
	if err := b.bus.PublishJSON(protocol.SubjectUIState, snap); err != nil {
		b.log.Warn("failed to publish snapshot", slogError(err))
	}
}

func (b *Bridge) Close() {
	if b.sub != nil {
		_ = b.sub.Drain()
	}
}
