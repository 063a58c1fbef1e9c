package turn

import (
	"errors"

	"github.com/loqalabs/voicepay/internal/speech"
)

// ErrRecognitionUnavailable is returned when listening is requested but no
// recognition engine was found at startup.
var ErrRecognitionUnavailable = errors.New("speech recognition unavailable")

// ErrorKind classifies recognition engine error codes.
type ErrorKind int

const (
	ErrorOther ErrorKind = iota
	ErrorNoSpeech
	ErrorPermissionDenied
	ErrorNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNoSpeech:
		return "no_speech"
	case ErrorPermissionDenied:
		return "permission_denied"
	case ErrorNetwork:
		return "network"
	default:
		return "other"
	}
}

// Classify maps an engine error code onto an ErrorKind.
func Classify(code string) ErrorKind {
	switch code {
	case speech.CodeNoSpeech:
		return ErrorNoSpeech
	case speech.CodeNotAllowed, speech.CodeServiceNotAllowed:
		return ErrorPermissionDenied
	case speech.CodeNetwork:
		return ErrorNetwork
	default:
		return ErrorOther
	}
}

func statusForError(kind ErrorKind, code string) string {
	switch kind {
	case ErrorNoSpeech:
		return "No speech detected. Try speaking louder."
	case ErrorPermissionDenied:
		return "Microphone access denied. Allow microphone access, then turn listening back on."
	case ErrorNetwork:
		return "Network error. Check your internet connection."
	default:
		return "Error: " + code
	}
}
