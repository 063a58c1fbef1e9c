package tts

import (
	"sync"

	"github.com/google/uuid"
	"github.com/loqalabs/voicepay/internal/speech"
)

// Silent is the synthesis engine used when no synthesis service is reachable.
// Every utterance completes immediately, so the turn coordinator never waits
// on a speaker that does not exist.
type Silent struct {
	mu       sync.Mutex
	listener speech.SynthesisListener
}

func NewSilent() *Silent { return &Silent{} }

func (s *Silent) SetListener(l speech.SynthesisListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *Silent) Speak(string, speech.Voice) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		go l.OnSynthesisEnd(id)
	}
	return id, nil
}

func (s *Silent) Cancel() error { return nil }
