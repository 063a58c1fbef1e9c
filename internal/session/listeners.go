package session

import "github.com/loqalabs/voicepay/internal/speech"

// recognitionListener moves recognizer callbacks onto the session loop.
type recognitionListener struct{ s *Session }

func (l recognitionListener) OnRecognitionStart() {
	l.s.post("recognition.start", func() { l.s.turn.OnRecognitionStart() })
}

func (l recognitionListener) OnRecognitionResult(results []speech.Result, index int) {
	copied := append([]speech.Result(nil), results...)
	l.s.post("recognition.result", func() { l.s.turn.OnRecognitionResult(copied, index) })
}

func (l recognitionListener) OnRecognitionError(code string) {
	l.s.post("recognition.error", func() { l.s.turn.OnRecognitionError(code) })
}

func (l recognitionListener) OnRecognitionEnd() {
	l.s.post("recognition.end", func() { l.s.turn.OnRecognitionEnd() })
}

type synthesisListener struct{ s *Session }

func (l synthesisListener) OnSynthesisEnd(id string) {
	l.s.post("synthesis.end", func() { l.s.turn.OnSynthesisEnd(id) })
}

func (l synthesisListener) OnSynthesisError(id, reason string) {
	l.s.post("synthesis.error", func() { l.s.turn.OnSynthesisError(id, reason) })
}
