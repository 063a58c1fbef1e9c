// Package session runs one payment conversation. Engine callbacks, timers and
// UI actions arrive on arbitrary goroutines; all of them are funneled through
// a single event loop that owns the dialogue machine and the turn coordinator.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/voicepay/internal/clock"
	"github.com/loqalabs/voicepay/internal/config"
	"github.com/loqalabs/voicepay/internal/contacts"
	"github.com/loqalabs/voicepay/internal/dialogue"
	"github.com/loqalabs/voicepay/internal/eventstore"
	"github.com/loqalabs/voicepay/internal/ledger"
	"github.com/loqalabs/voicepay/internal/speech"
	"github.com/loqalabs/voicepay/internal/surface"
	"github.com/loqalabs/voicepay/internal/turn"
)

const eventBuffer = 64

// Journal persists audit entries for a session.
type Journal interface {
	BeginSession(ctx context.Context, sessionID, nodeID string) error
	Record(ctx context.Context, sessionID, traceID, kind, state string, payload any) error
}

type Config struct {
	// ID names the session; empty generates one.
	ID     string
	NodeID string
	// Recognizer is nil when no recognition engine is available.
	Recognizer  speech.RecognitionEngine
	Synthesizer speech.SynthesisEngine
	Contacts    contacts.Directory
	Timing      dialogue.Timing
	Turn        config.TurnConfig
	Voice       speech.Voice
	Journal     Journal
	Logger      *slog.Logger
}

type event struct {
	name string
	fn   func()
}

// Session is the single owner of the dialogue state.
type Session struct {
	id      string
	cfg     Config
	log     *slog.Logger
	events  chan event
	done    chan struct{}
	sched   clock.Scheduler
	machine *dialogue.Machine
	turn    *turn.Coordinator
	metrics *metrics
	tracer  trace.Tracer

	// Loop-owned.
	ctx        context.Context
	traceID    string
	status     string
	transcript string
	last       surface.Snapshot
	seq        uint64

	current atomic.Pointer[surface.Snapshot]
	sinkMu  sync.Mutex
	sinks   []func(surface.Snapshot)
}

type speakerFunc func(string)

func (f speakerFunc) Speak(text string) { f(text) }

func New(cfg Config) (*Session, error) {
	if cfg.Synthesizer == nil {
		return nil, errors.New("session requires a synthesis engine")
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Contacts.Len() == 0 {
		cfg.Contacts = contacts.Default()
	}

	s := &Session{
		id:     id,
		cfg:    cfg,
		log:    logger.With(slog.String("component", "session"), slog.String("session_id", id)),
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
		tracer: otel.Tracer("github.com/loqalabs/voicepay/session"),
		ctx:    context.Background(),
	}
	s.sched = clock.NewReal(s.post)

	m, err := newMetrics(otel.Meter("github.com/loqalabs/voicepay/session"))
	if err != nil {
		s.log.Warn("failed to initialize metrics", slogError(err))
	}
	s.metrics = m

	s.machine, err = dialogue.NewMachine(dialogue.Config{
		Ledger:       ledger.New(s.sched.Now),
		Contacts:     cfg.Contacts,
		Speaker:      speakerFunc(func(text string) { s.turn.Speak(text) }),
		Status:       s,
		Scheduler:    s.sched,
		Timing:       cfg.Timing,
		Logger:       s.log,
		OnTransition: s.onTransition,
		OnCommit:     s.onCommit,
	})
	if err != nil {
		return nil, err
	}

	s.turn, err = turn.New(turn.Config{
		Recognizer:         cfg.Recognizer,
		Synthesizer:        cfg.Synthesizer,
		Scheduler:          s.sched,
		Surface:            s,
		Dispatch:           s.dispatch,
		Voice:              cfg.Voice,
		SettleDelay:        cfg.Turn.SettleDelay,
		EchoPhrases:        cfg.Turn.EchoPhrases,
		Logger:             s.log,
		OnOutcome:          s.onOutcome,
		OnRecognitionError: s.onRecognitionError,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Recognizer != nil {
		cfg.Recognizer.SetListener(recognitionListener{s})
	}
	cfg.Synthesizer.SetListener(synthesisListener{s})
	s.publish()
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Snapshot returns the most recently published view of the session.
func (s *Session) Snapshot() surface.Snapshot {
	if p := s.current.Load(); p != nil {
		return *p
	}
	return surface.Snapshot{SessionID: s.id}
}

// AddSink registers fn for every future snapshot and hands it the current one.
func (s *Session) AddSink(fn func(surface.Snapshot)) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sinks = append(s.sinks, fn)
	fn(s.Snapshot())
}

// Run processes events until ctx is done. It must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.ctx = ctx
	if s.cfg.Journal != nil {
		if err := s.cfg.Journal.BeginSession(ctx, s.id, s.cfg.NodeID); err != nil {
			s.log.Warn("failed to journal session start", slogError(err))
		}
	}
	s.record(eventstore.KindSessionStarted, map[string]any{
		"node_id":               s.cfg.NodeID,
		"recognition_available": s.turn.Available(),
	})
	s.log.Info("session started", slog.Bool("recognition_available", s.turn.Available()))

	if s.cfg.Turn.AutoListen {
		s.handle(event{name: "listen.auto", fn: s.startListening})
	}
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) shutdown() {
	s.turn.StopListening()
	if s.turn.Speaking() {
		if err := s.cfg.Synthesizer.Cancel(); err != nil {
			s.log.Warn("cancel synthesis on shutdown failed", slogError(err))
		}
	}
	s.log.Info("session stopped", slog.Int("transactions", s.machine.Ledger().Count()))
}

// post queues fn for the loop. Calls after the loop has exited are dropped.
func (s *Session) post(name string, fn func()) {
	select {
	case s.events <- event{name: name, fn: fn}:
	case <-s.done:
	}
}

func (s *Session) handle(ev event) {
	_, span := s.tracer.Start(s.ctx, "session."+ev.name)
	defer span.End()
	s.traceID = ""
	if sc := span.SpanContext(); sc.HasTraceID() {
		s.traceID = sc.TraceID().String()
	}
	ev.fn()
	s.publish()
}

func (s *Session) dispatch(utterance string) {
	cmd := s.machine.HandleUtterance(utterance)
	s.metrics.command(s.ctx, cmd.Kind, "voice")
}

func (s *Session) startListening() {
	if err := s.turn.StartListening(); err != nil {
		s.log.Warn("failed to start listening", slogError(err))
		return
	}
	s.machine.Reprompt()
}

func (s *Session) toggleListening() {
	if !s.turn.Listening() {
		s.startListening()
		return
	}
	s.turn.StopListening()
	s.turn.Speak(dialogue.PromptListeningOff())
}

// SetStatus and SetTranscript are called from the loop only.
func (s *Session) SetStatus(text string)     { s.status = text }
func (s *Session) SetTranscript(text string) { s.transcript = text }

func (s *Session) buildSnapshot() surface.Snapshot {
	l := s.machine.Ledger()
	history := l.History()
	if history == nil {
		history = []ledger.Transaction{}
	}
	return surface.Snapshot{
		SessionID:    s.id,
		State:        s.machine.State().String(),
		Status:       s.status,
		Transcript:   s.transcript,
		Available:    s.turn.Available(),
		Listening:    s.turn.Listening(),
		Speaking:     s.turn.Speaking(),
		Draft:        l.Draft(),
		History:      history,
		Total:        l.Total().String(),
		Contacts:     s.machine.Contacts().All(),
		QuickAmounts: surface.QuickAmounts,
	}
}

// publish hands the current view to every sink when it differs from the last
// one published.
func (s *Session) publish() {
	snap := s.buildSnapshot()
	if s.seq > 0 && reflect.DeepEqual(s.last, snap) {
		return
	}
	s.last = snap
	s.seq++
	snap.Sequence = s.seq

	// Sinks run under sinkMu and must not block.
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.current.Store(&snap)
	for _, sink := range s.sinks {
		sink(snap)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
