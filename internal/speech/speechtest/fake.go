// Package speechtest provides scripted speech engines for tests.
package speechtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/loqalabs/voicepay/internal/speech"
)

// Recognizer records Start/Stop calls and lets tests emit engine events.
type Recognizer struct {
	mu       sync.Mutex
	listener speech.RecognitionListener
	running  bool
	starts   int
	stops    int
	StartErr error
}

func (r *Recognizer) SetListener(l speech.RecognitionListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
}

func (r *Recognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	if r.running {
		return errors.New("recognition already started")
	}
	r.running = true
	r.starts++
	return nil
}

func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *Recognizer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Recognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *Recognizer) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

func (r *Recognizer) current() speech.RecognitionListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener
}

// EmitStart reports that the engine began a recognition session.
func (r *Recognizer) EmitStart() {
	if l := r.current(); l != nil {
		l.OnRecognitionStart()
	}
}

// EmitEnd reports the end of a recognition session.
func (r *Recognizer) EmitEnd() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	if l := r.current(); l != nil {
		l.OnRecognitionEnd()
	}
}

// EmitFinal delivers a single final transcript.
func (r *Recognizer) EmitFinal(text string) {
	if l := r.current(); l != nil {
		l.OnRecognitionResult([]speech.Result{{Transcript: text, IsFinal: true}}, 0)
	}
}

// EmitInterim delivers a single interim transcript.
func (r *Recognizer) EmitInterim(text string) {
	if l := r.current(); l != nil {
		l.OnRecognitionResult([]speech.Result{{Transcript: text}}, 0)
	}
}

func (r *Recognizer) EmitError(code string) {
	if l := r.current(); l != nil {
		l.OnRecognitionError(code)
	}
}

// Utterance is one Speak call seen by Synthesizer.
type Utterance struct {
	ID    string
	Text  string
	Voice speech.Voice
}

// Synthesizer records Speak/Cancel calls. Completion is driven by the test.
type Synthesizer struct {
	mu       sync.Mutex
	listener speech.SynthesisListener
	spoken   []Utterance
	cancels  int
	seq      int
	SpeakErr error
}

func (s *Synthesizer) SetListener(l speech.SynthesisListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *Synthesizer) Speak(text string, voice speech.Voice) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SpeakErr != nil {
		return "", s.SpeakErr
	}
	s.seq++
	id := fmt.Sprintf("utt-%d", s.seq)
	s.spoken = append(s.spoken, Utterance{ID: id, Text: text, Voice: voice})
	return id, nil
}

func (s *Synthesizer) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	return nil
}

func (s *Synthesizer) Spoken() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Utterance(nil), s.spoken...)
}

// Texts lists the spoken texts in order.
func (s *Synthesizer) Texts() []string {
	var out []string
	for _, u := range s.Spoken() {
		out = append(out, u.Text)
	}
	return out
}

func (s *Synthesizer) Last() Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.spoken) == 0 {
		return Utterance{}
	}
	return s.spoken[len(s.spoken)-1]
}

func (s *Synthesizer) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// Finish reports completion of the most recent utterance.
func (s *Synthesizer) Finish() {
	last := s.Last()
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil && last.ID != "" {
		l.OnSynthesisEnd(last.ID)
	}
}

// FinishID reports completion of a specific utterance.
func (s *Synthesizer) FinishID(id string) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.OnSynthesisEnd(id)
	}
}
