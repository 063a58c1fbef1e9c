package tts

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/protocol"
	"github.com/loqalabs/voicepay/internal/speech"
	"github.com/nats-io/nats.go"
)

// Client sends prompts to the synthesis service for one session and
// implements speech.SynthesisEngine. Listener callbacks run on NATS delivery
// goroutines.
type Client struct {
	bus       *bus.Client
	sessionID string
	target    string
	logger    *slog.Logger
	sub       *nats.Subscription

	mu       sync.Mutex
	listener speech.SynthesisListener
}

func NewClient(busClient *bus.Client, sessionID, target string, log *slog.Logger) (*Client, error) {
	if sessionID == "" {
		return nil, errors.New("synthesis client requires a session id")
	}
	c := &Client{
		bus:       busClient,
		sessionID: sessionID,
		target:    target,
		logger:    log.With(slog.String("component", "tts-client"), slog.String("session_id", sessionID)),
	}
	sub, err := bus.SubscribeJSON(busClient, protocol.SubjectTTSDone, c.handleStatus)
	if err != nil {
		return nil, err
	}
	c.sub = sub
	return c, nil
}

func (c *Client) SetListener(l speech.SynthesisListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// Speak publishes a synthesis request and returns its utterance id.
func (c *Client) Speak(text string, voice speech.Voice) (string, error) {
	id := uuid.NewString()
	err := c.bus.PublishJSON(protocol.SubjectTTSRequest, protocol.TTSRequest{
		SessionID:   c.sessionID,
		UtteranceID: id,
		Text:        text,
		Target:      c.target,
		Voice: protocol.Voice{
			Lang:   voice.Lang,
			Rate:   voice.Rate,
			Pitch:  voice.Pitch,
			Volume: voice.Volume,
		},
	})
	if err != nil {
		return "", fmt.Errorf("speak: %w", err)
	}
	return id, nil
}

// Cancel aborts whatever the session is currently speaking.
func (c *Client) Cancel() error {
	if err := c.bus.PublishJSON(protocol.SubjectTTSCancel, protocol.TTSCancel{SessionID: c.sessionID}); err != nil {
		return fmt.Errorf("cancel speech: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
}

func (c *Client) handleStatus(status protocol.TTSStatus) {
	if status.SessionID != c.sessionID {
		return
	}
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if l == nil {
		return
	}
	if status.Error != "" {
		l.OnSynthesisError(status.UtteranceID, status.Error)
		return
	}
	// A canceled utterance has still finished occupying the speaker.
	l.OnSynthesisEnd(status.UtteranceID)
}
