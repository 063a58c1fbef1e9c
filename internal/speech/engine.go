// Package speech defines the capability contracts of the recognition and
// synthesis engines driven by the dialogue core.
package speech

// Result is one recognizer hypothesis.
type Result struct {
	Transcript string
	IsFinal    bool
}

// Recognition error codes as reported by engines.
const (
	CodeNoSpeech           = "no-speech"
	CodeNotAllowed         = "not-allowed"
	CodeServiceNotAllowed  = "service-not-allowed"
	CodeNetwork            = "network"
	CodeAborted            = "aborted"
	CodeAudioCapture       = "audio-capture"
	CodeLanguageNotSupport = "language-not-supported"
)

// RecognitionListener receives recognizer events. Engines may call it from
// any goroutine.
type RecognitionListener interface {
	OnRecognitionStart()
	// OnRecognitionResult delivers the full result list of the recognition
	// session; entries before index were already delivered.
	OnRecognitionResult(results []Result, index int)
	OnRecognitionError(code string)
	OnRecognitionEnd()
}

// RecognitionEngine is a continuous speech recognizer.
type RecognitionEngine interface {
	Start() error
	Stop() error
	SetListener(l RecognitionListener)
}

// Voice carries per-utterance synthesis settings.
type Voice struct {
	Lang   string  `json:"lang" yaml:"lang"`
	Rate   float64 `json:"rate" yaml:"rate"`
	Pitch  float64 `json:"pitch" yaml:"pitch"`
	Volume float64 `json:"volume" yaml:"volume"`
}

// DefaultVoice is slightly slower than normal for clarity.
func DefaultVoice() Voice {
	return Voice{Lang: "en-IN", Rate: 0.95, Pitch: 1.0, Volume: 1.0}
}

// SynthesisListener receives per-utterance completion events. Engines may
// call it from any goroutine.
type SynthesisListener interface {
	OnSynthesisEnd(utteranceID string)
	OnSynthesisError(utteranceID string, reason string)
}

// SynthesisEngine speaks text. Speak returns an id that later completion
// events refer to.
type SynthesisEngine interface {
	Speak(text string, voice Voice) (string, error)
	Cancel() error
	SetListener(l SynthesisListener)
}
