package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/config"
	"github.com/loqalabs/voicepay/internal/protocol"
	"github.com/nats-io/nats.go"
)

var (
	errCanceled = errors.New("utterance canceled")
	errReplaced = errors.New("utterance replaced")
)

const synthTimeout = 45 * time.Second

// Service synthesizes tts.request messages. Each session has at most one
// utterance in flight; a newer request or a tts.cancel aborts it.
type Service struct {
	cfg      config.TTSConfig
	bus      *bus.Client
	synth    Synthesizer
	subs     []*nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
	mu       sync.Mutex
	inflight map[string]*inflight
}

type inflight struct {
	utteranceID string
	cancel      context.CancelCauseFunc
}

func NewService(parent context.Context, cfg config.TTSConfig, busClient *bus.Client, synth Synthesizer, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		synth:    synth,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "tts-service")),
		inflight: make(map[string]*inflight),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	reqSub, err := bus.SubscribeJSON(s.bus, protocol.SubjectTTSRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, reqSub)

	cancelSub, err := bus.SubscribeJSON(s.bus, protocol.SubjectTTSCancel, s.handleCancel)
	if err != nil {
		_ = reqSub.Drain()
		return err
	}
	s.subs = append(s.subs, cancelSub)
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || len(s.subs) == 2 }

func (s *Service) handleCancel(msg protocol.TTSCancel) {
	s.mu.Lock()
	current := s.inflight[msg.SessionID]
	s.mu.Unlock()
	if current == nil {
		return
	}
	s.logger.Debug("canceling utterance", slog.String("session_id", msg.SessionID), slog.String("utterance_id", current.utteranceID))
	current.cancel(errCanceled)
}

func (s *Service) handleRequest(req protocol.TTSRequest) {
	req.Voice = s.withDefaults(req.Voice)
	if strings.TrimSpace(req.Text) == "" {
		s.publishStatus(req, protocol.TTSStatus{Completed: true})
		return
	}

	ctx, cancel := context.WithCancelCause(s.ctx)
	s.mu.Lock()
	if prev := s.inflight[req.SessionID]; prev != nil {
		prev.cancel(errReplaced)
	}
	s.inflight[req.SessionID] = &inflight{utteranceID: req.UtteranceID, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel(nil)
		status := s.run(ctx, req)

		s.mu.Lock()
		if cur := s.inflight[req.SessionID]; cur != nil && cur.utteranceID == req.UtteranceID {
			delete(s.inflight, req.SessionID)
		}
		s.mu.Unlock()

		s.publishStatus(req, status)
	}()
}

func (s *Service) run(ctx context.Context, req protocol.TTSRequest) protocol.TTSStatus {
	synthCtx, cancel := context.WithTimeout(ctx, synthTimeout)
	defer cancel()

	chunks, errs := s.synth.Synthesize(synthCtx, SynthRequest{
		SessionID:   req.SessionID,
		UtteranceID: req.UtteranceID,
		Text:        req.Text,
		Voice:       req.Voice,
	})
	sequence := 0
	var synthErr error
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if synthCtx.Err() != nil {
				continue
			}
			chunk.Sequence = sequence
			sequence++
			s.publishChunk(req, chunk)
		case err, ok := <-errs:
			if ok && err != nil {
				synthErr = err
			}
			errs = nil
		}
	}

	if cause := context.Cause(ctx); errors.Is(cause, errCanceled) || errors.Is(cause, errReplaced) {
		return protocol.TTSStatus{Canceled: true}
	}
	if synthErr != nil {
		s.logger.Warn("tts synthesis error", slog.String("utterance_id", req.UtteranceID), slogError(synthErr))
		return protocol.TTSStatus{Error: synthErr.Error()}
	}
	return protocol.TTSStatus{Completed: true}
}

func (s *Service) withDefaults(v protocol.Voice) protocol.Voice {
	if v.Lang == "" {
		v.Lang = s.cfg.Voice
	}
	if v.Rate == 0 {
		v.Rate = s.cfg.Rate
	}
	if v.Pitch == 0 {
		v.Pitch = s.cfg.Pitch
	}
	if v.Volume == 0 {
		v.Volume = s.cfg.Volume
	}
	return v
}

func (s *Service) publishChunk(req protocol.TTSRequest, chunk SynthChunk) {
	packet := protocol.AudioChunk{
		SessionID:   req.SessionID,
		UtteranceID: req.UtteranceID,
		Target:      req.Target,
		SampleRate:  chunk.SampleRate,
		Channels:    chunk.Channels,
		Sequence:    chunk.Sequence,
		PCM:         chunk.PCM,
		Final:       chunk.Final,
	}
	if err := s.bus.PublishJSON(protocol.SubjectTTSAudio, packet); err != nil {
		s.logger.Warn("failed to publish tts chunk", slogError(err))
	}
}

func (s *Service) publishStatus(req protocol.TTSRequest, status protocol.TTSStatus) {
	status.SessionID = req.SessionID
	status.UtteranceID = req.UtteranceID
	status.Target = req.Target
	status.Timestamp = time.Now().UTC()
	if err := s.bus.PublishJSON(protocol.SubjectTTSDone, status); err != nil {
		s.logger.Warn("failed to publish tts status", slogError(err))
	}
}

// NewSynthesizer builds the backend selected by cfg.Mode.
func NewSynthesizer(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels, 60*time.Millisecond), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
