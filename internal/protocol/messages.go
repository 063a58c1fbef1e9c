package protocol

import "time"

// AudioFrame represents PCM audio data streamed from the capture device.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Transcript represents STT output broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// Recognition control actions.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// RecognitionControl starts or stops recognition for one session.
type RecognitionControl struct {
	SessionID  string `json:"session_id"`
	Action     string `json:"action"`
	Language   string `json:"language,omitempty"`
	Continuous bool   `json:"continuous"`
	Interim    bool   `json:"interim"`
}

// Recognition event types.
const (
	EventStart = "start"
	EventEnd   = "end"
	EventError = "error"
)

// RecognitionEvent reports recognition lifecycle changes.
type RecognitionEvent struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Voice carries synthesis settings for one request.
type Voice struct {
	Lang   string  `json:"lang,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

// TTSRequest asks the synthesis service to speak text.
type TTSRequest struct {
	SessionID   string `json:"session_id"`
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
	Voice       Voice  `json:"voice"`
	Target      string `json:"target,omitempty"`
}

// TTSCancel aborts the in-flight utterance of a session.
type TTSCancel struct {
	SessionID string `json:"session_id"`
}

// AudioChunk is synthesized PCM published for playback.
type AudioChunk struct {
	SessionID   string `json:"session_id"`
	UtteranceID string `json:"utterance_id"`
	Target      string `json:"target,omitempty"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	Sequence    int    `json:"sequence"`
	PCM         []byte `json:"pcm"`
	Final       bool   `json:"final"`
}

// TTSStatus reports how an utterance finished.
type TTSStatus struct {
	SessionID   string    `json:"session_id"`
	UtteranceID string    `json:"utterance_id"`
	Target      string    `json:"target,omitempty"`
	Completed   bool      `json:"completed"`
	Canceled    bool      `json:"canceled,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// UI event types.
const (
	UINewPayment      = "new_payment"
	UISelectContact   = "select_contact"
	UISetAmount       = "set_amount"
	UIApprove         = "approve"
	UICancel          = "cancel"
	UIShowHistory     = "show_history"
	UIGoHome          = "go_home"
	UIToggleListening = "toggle_listening"
)

// UIEvent is a tap or click on the user interface.
type UIEvent struct {
	SessionID string `json:"session_id,omitempty"`
	Type      string `json:"type"`
	ContactID int    `json:"contact_id,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

const (
	SubjectAudioFramePrefix  = "audio.frame"
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectSTTControl        = "stt.control"
	SubjectSTTEvent          = "stt.event"
	SubjectTTSRequest        = "tts.request"
	SubjectTTSCancel         = "tts.cancel"
	SubjectTTSAudio          = "tts.audio"
	SubjectTTSDone           = "tts.done"
	SubjectUIEvent           = "ui.event"
	SubjectUIState           = "ui.state"
)

// AudioFrameSubject returns the subject frames of a session are published on.
func AudioFrameSubject(sessionID string) string {
	return SubjectAudioFramePrefix + "." + sessionID
}
