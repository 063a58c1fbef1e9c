package stt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/protocol"
	"github.com/loqalabs/voicepay/internal/speech"
	"github.com/nats-io/nats.go"
)

// ClientOptions configure a recognition client.
type ClientOptions struct {
	SessionID string
	Language  string
	Interim   bool
}

// Client drives the recognition service over the bus on behalf of one session
// and implements speech.RecognitionEngine. Listener callbacks run on NATS
// delivery goroutines.
type Client struct {
	bus    *bus.Client
	opts   ClientOptions
	logger *slog.Logger
	subs   []*nats.Subscription

	mu       sync.Mutex
	listener speech.RecognitionListener
	running  bool
	finals   []speech.Result
}

func NewClient(busClient *bus.Client, opts ClientOptions, log *slog.Logger) (*Client, error) {
	if opts.SessionID == "" {
		return nil, errors.New("recognition client requires a session id")
	}
	c := &Client{
		bus:    busClient,
		opts:   opts,
		logger: log.With(slog.String("component", "stt-client"), slog.String("session_id", opts.SessionID)),
	}

	events, err := bus.SubscribeJSON(busClient, protocol.SubjectSTTEvent, c.handleEvent)
	if err != nil {
		return nil, err
	}
	c.subs = append(c.subs, events)
	for _, subject := range []string{protocol.SubjectTranscriptPartial, protocol.SubjectTranscriptFinal} {
		sub, err := bus.SubscribeJSON(busClient, subject, c.handleTranscript)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.subs = append(c.subs, sub)
	}
	return c, nil
}

func (c *Client) SetListener(l speech.RecognitionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// Start asks the service to begin a continuous recognition run.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("recognition already started")
	}
	c.running = true
	c.finals = nil
	c.mu.Unlock()

	err := c.bus.PublishJSON(protocol.SubjectSTTControl, protocol.RecognitionControl{
		SessionID:  c.opts.SessionID,
		Action:     protocol.ActionStart,
		Language:   c.opts.Language,
		Continuous: true,
		Interim:    c.opts.Interim,
	})
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("start recognition: %w", err)
	}
	return nil
}

// Stop asks the service to end the current run. The end event arrives later.
func (c *Client) Stop() error {
	err := c.bus.PublishJSON(protocol.SubjectSTTControl, protocol.RecognitionControl{
		SessionID: c.opts.SessionID,
		Action:    protocol.ActionStop,
	})
	if err != nil {
		return fmt.Errorf("stop recognition: %w", err)
	}
	return nil
}

// Close unsubscribes from the bus. It does not stop a running recognition.
func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
}

func (c *Client) handleEvent(evt protocol.RecognitionEvent) {
	if evt.SessionID != c.opts.SessionID {
		return
	}
	c.mu.Lock()
	l := c.listener
	switch evt.Type {
	case protocol.EventStart:
		c.finals = nil
	case protocol.EventEnd:
		c.running = false
	}
	c.mu.Unlock()
	if l == nil {
		return
	}

	switch evt.Type {
	case protocol.EventStart:
		l.OnRecognitionStart()
	case protocol.EventEnd:
		l.OnRecognitionEnd()
	case protocol.EventError:
		l.OnRecognitionError(evt.Code)
	default:
		c.logger.Warn("unknown recognition event", slog.String("type", evt.Type))
	}
}

// handleTranscript rebuilds the engine-style result list: every final result
// of the run so far, followed by the current interim hypothesis.
func (c *Client) handleTranscript(t protocol.Transcript) {
	if t.SessionID != c.opts.SessionID {
		return
	}
	c.mu.Lock()
	l := c.listener
	var results []speech.Result
	var index int
	if t.Partial {
		results = append(append([]speech.Result(nil), c.finals...), speech.Result{Transcript: t.Text})
		index = len(c.finals)
	} else {
		c.finals = append(c.finals, speech.Result{Transcript: t.Text, IsFinal: true})
		results = append([]speech.Result(nil), c.finals...)
		index = len(c.finals) - 1
	}
	c.mu.Unlock()

	if l != nil {
		l.OnRecognitionResult(results, index)
	}
}
