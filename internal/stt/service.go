package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/config"
	"github.com/loqalabs/voicepay/internal/protocol"
	"github.com/loqalabs/voicepay/internal/speech"
	"github.com/nats-io/nats.go"
)

// Service turns audio frames into transcripts for sessions that have been
// started over stt.control. Frames for sessions that are not started are
// dropped.
type Service struct {
	cfg        config.STTConfig
	bus        *bus.Client
	recognizer Recognizer
	logger     *slog.Logger
	sessions   map[string]*sessionState
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	subs       []*nats.Subscription
	wg         sync.WaitGroup
	ready      bool
	generation uint64
	now        func() time.Time
}

// sessionState is one recognition run. Generation changes on every start so
// results of a stopped run are discarded.
type sessionState struct {
	Language     string
	Interim      bool
	Buffer       []byte
	LastPartial  time.Time
	Inflight     bool
	PendingFinal bool
	Generation   uint64
	limit        *time.Timer
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, recognizer Recognizer, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		recognizer: recognizer,
		logger:     log.With(slog.String("component", "stt-service")),
		sessions:   make(map[string]*sessionState),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	control, err := bus.SubscribeJSON(s.bus, protocol.SubjectSTTControl, s.handleControl)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, control)

	frames, err := bus.SubscribeJSON(s.bus, protocol.SubjectAudioFramePrefix+".>", s.handleFrame)
	if err != nil {
		_ = control.Drain()
		return err
	}
	s.subs = append(s.subs, frames)
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.mu.Lock()
	for id, state := range s.sessions {
		if state.limit != nil {
			state.limit.Stop()
		}
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

// Active reports whether recognition is running for sessionID.
func (s *Service) Active(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

func (s *Service) handleControl(ctrl protocol.RecognitionControl) {
	if ctrl.SessionID == "" {
		s.logger.Warn("recognition control without session id", slog.String("action", ctrl.Action))
		return
	}
	switch ctrl.Action {
	case protocol.ActionStart:
		s.startSession(ctrl)
	case protocol.ActionStop:
		s.endSession(ctrl.SessionID, "stopped")
	default:
		s.logger.Warn("unknown recognition control action", slog.String("action", ctrl.Action))
	}
}

func (s *Service) startSession(ctrl protocol.RecognitionControl) {
	s.mu.Lock()
	if _, ok := s.sessions[ctrl.SessionID]; ok {
		s.mu.Unlock()
		s.logger.Debug("recognition already started", slog.String("session_id", ctrl.SessionID))
		return
	}
	language := ctrl.Language
	if language == "" {
		language = s.cfg.Language
	}
	s.generation++
	state := &sessionState{
		Language:   language,
		Interim:    ctrl.Interim && s.cfg.PublishInterim,
		Generation: s.generation,
	}
	if limit := time.Duration(s.cfg.MaxSessionMS) * time.Millisecond; limit > 0 {
		sessionID := ctrl.SessionID
		generation := state.Generation
		state.limit = time.AfterFunc(limit, func() { s.expire(sessionID, generation) })
	}
	s.sessions[ctrl.SessionID] = state
	s.mu.Unlock()

	s.logger.Info("recognition started", slog.String("session_id", ctrl.SessionID), slog.String("language", language))
	s.publishEvent(ctrl.SessionID, protocol.EventStart, "")
}

// expire ends a recognition run that outlived stt.max_session_ms. Clients are
// expected to start a new run if they still want to listen.
func (s *Service) expire(sessionID string, generation uint64) {
	s.mu.Lock()
	state := s.sessions[sessionID]
	stale := state == nil || state.Generation != generation
	s.mu.Unlock()
	if stale {
		return
	}
	s.endSession(sessionID, "max duration reached")
}

func (s *Service) endSession(sessionID, reason string) {
	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil {
		s.mu.Unlock()
		return
	}
	if state.limit != nil {
		state.limit.Stop()
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.logger.Info("recognition ended", slog.String("session_id", sessionID), slog.String("reason", reason))
	s.publishEvent(sessionID, protocol.EventEnd, "")
}

func (s *Service) handleFrame(frame protocol.AudioFrame) {
	s.mu.Lock()
	state := s.sessions[frame.SessionID]
	if state == nil {
		s.mu.Unlock()
		return
	}
	state.Buffer = append(state.Buffer, frame.PCM...)
	interim := state.Interim
	s.mu.Unlock()

	if interim && !frame.Final && s.shouldSchedulePartial(frame.SessionID) {
		s.scheduleTranscription(frame.SessionID, false)
	}
	if frame.Final {
		s.scheduleTranscription(frame.SessionID, true)
	}
}

func (s *Service) shouldSchedulePartial(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.sessions[sessionID]
	if state == nil || state.Inflight {
		return false
	}
	if state.LastPartial.IsZero() {
		state.LastPartial = s.now()
		return true
	}
	interval := time.Duration(s.cfg.PartialEveryMS) * time.Millisecond
	if interval <= 0 {
		return false
	}
	if s.now().Sub(state.LastPartial) >= interval {
		state.LastPartial = s.now()
		return true
	}
	return false
}

func (s *Service) scheduleTranscription(sessionID string, final bool) {
	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil {
		s.mu.Unlock()
		return
	}
	if state.Inflight {
		if final {
			state.PendingFinal = true
		}
		s.mu.Unlock()
		return
	}
	pcm := append([]byte(nil), state.Buffer...)
	if final {
		state.Buffer = nil
		state.LastPartial = time.Time{}
	}
	state.Inflight = true
	generation := state.Generation
	language := state.Language
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timeout := time.Duration(s.cfg.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		result, err := s.recognizer.Transcribe(ctx, pcm, s.cfg.SampleRate, s.cfg.Channels, language, final)

		s.mu.Lock()
		state := s.sessions[sessionID]
		current := state != nil && state.Generation == generation
		var pendingFinal bool
		if current {
			state.Inflight = false
			pendingFinal = state.PendingFinal
			state.PendingFinal = false
			if !final {
				state.LastPartial = s.now()
			}
		}
		s.mu.Unlock()

		if !current {
			return
		}
		switch {
		case err != nil:
			s.logger.Warn("stt transcription failed", slog.String("session_id", sessionID), slogError(err))
			s.publishEvent(sessionID, protocol.EventError, errorCode(err))
		case final && result.Text == "":
			s.publishEvent(sessionID, protocol.EventError, speech.CodeNoSpeech)
		default:
			s.publishTranscript(sessionID, result.Text, result.Confidence, final)
		}

		if pendingFinal {
			s.scheduleTranscription(sessionID, true)
		}
	}()
}

func errorCode(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return speech.CodeNetwork
	}
	if errors.Is(err, context.Canceled) {
		return speech.CodeAborted
	}
	return "other"
}

func (s *Service) publishTranscript(sessionID, text string, confidence float64, final bool) {
	if text == "" {
		return
	}
	subject := protocol.SubjectTranscriptPartial
	if final {
		subject = protocol.SubjectTranscriptFinal
	}
	msg := protocol.Transcript{
		SessionID:  sessionID,
		Text:       text,
		Partial:    !final,
		Timestamp:  s.now().UTC(),
		Confidence: confidence,
	}
	if err := s.bus.PublishJSON(subject, msg); err != nil {
		s.logger.Warn("failed to publish transcript", slogError(err))
	}
}

func (s *Service) publishEvent(sessionID, eventType, code string) {
	evt := protocol.RecognitionEvent{
		SessionID: sessionID,
		Type:      eventType,
		Code:      code,
		Timestamp: s.now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectSTTEvent, evt); err != nil {
		s.logger.Warn("failed to publish recognition event", slog.String("type", eventType), slogError(err))
	}
}

// NewRecognizer builds the backend selected by cfg.Mode.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
