package turn

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/voicepay/internal/clock"
	"github.com/loqalabs/voicepay/internal/speech"
)

// DefaultEchoPhrases are fragments of the app's own prompts. A final
// transcript containing any of them is treated as self-capture.
var DefaultEchoPhrases = []string{
	"i am ready",
	"please state your payment command",
	"you can say a payment command",
	"sorry i did not understand",
	"microphone access",
	"transaction cancelled",
	"who do you want to pay",
	"recipient name",
	"how much do you want to pay",
	"what is the u p i i d",
	"review the details and say confirm",
	"say initiate payment",
	"please select a contact",
	"how much would you like to pay",
	"say approve",
}

const (
	DefaultSettleDelay = 150 * time.Millisecond
	TimerSettle        = "settle"
)

// Outcome is what happened to one recognizer callback.
type Outcome string

const (
	OutcomeDispatched      Outcome = "dispatched"
	OutcomeDroppedSpeaking Outcome = "dropped_speaking"
	OutcomeDroppedEcho     Outcome = "dropped_echo"
	OutcomeInterim         Outcome = "interim"
)

// Surface shows coordinator state to the user.
type Surface interface {
	SetStatus(text string)
	SetTranscript(text string)
}

type Config struct {
	// Recognizer may be nil, in which case listening is disabled for good.
	Recognizer  speech.RecognitionEngine
	Synthesizer speech.SynthesisEngine
	Scheduler   clock.Scheduler
	Surface     Surface
	// Dispatch receives every final utterance that passes the gates.
	Dispatch    func(utterance string)
	Voice       speech.Voice
	SettleDelay time.Duration
	EchoPhrases []string
	Logger      *slog.Logger

	OnOutcome          func(outcome Outcome, text string)
	OnRecognitionError func(kind ErrorKind, code string)
}

// Coordinator arbitrates the half-duplex audio channel: the recognizer is
// never running while a prompt is being spoken. Not safe for concurrent use.
type Coordinator struct {
	cfg  Config
	log  *slog.Logger
	echo []string

	available bool
	// listening is the user's intent, not the engine state.
	listening bool
	speaking  bool
	// suppressed marks a deliberate recognizer stop that must not auto-restart.
	suppressed bool
	// recognizing is true between a successful Start and the engine's end event.
	recognizing bool
	utterance   string
	settle      clock.Timer
	// settleGen invalidates settle callbacks that fired before they were stopped.
	settleGen uint64
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("turn coordinator requires a scheduler")
	}
	if cfg.Surface == nil {
		return nil, errors.New("turn coordinator requires a surface")
	}
	if cfg.Dispatch == nil {
		return nil, errors.New("turn coordinator requires a dispatch func")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Voice == (speech.Voice{}) {
		cfg.Voice = speech.DefaultVoice()
	}
	phrases := cfg.EchoPhrases
	if len(phrases) == 0 {
		phrases = DefaultEchoPhrases
	}
	echo := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			echo = append(echo, p)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Coordinator{
		cfg:       cfg,
		log:       logger.With(slog.String("component", "turn")),
		echo:      echo,
		available: cfg.Recognizer != nil,
	}
	if c.available {
		c.cfg.Surface.SetStatus("Ready! Turn on listening to start voice commands.")
	} else {
		c.log.Warn("speech recognition unavailable, voice commands disabled")
		c.cfg.Surface.SetStatus("Speech recognition not supported. Voice commands are disabled.")
	}
	return c, nil
}

func (c *Coordinator) Available() bool { return c.available }
func (c *Coordinator) Listening() bool { return c.listening }
func (c *Coordinator) Speaking() bool  { return c.speaking }

// StartListening records the intent to listen continuously and starts the
// recognizer unless a prompt is in progress.
func (c *Coordinator) StartListening() error {
	if !c.available {
		c.cfg.Surface.SetStatus("Speech recognition not supported. Voice commands are disabled.")
		return ErrRecognitionUnavailable
	}
	if c.listening {
		return nil
	}
	c.listening = true
	c.cfg.Surface.SetTranscript("")
	c.cfg.Surface.SetStatus("Starting...")
	if c.speaking || c.suppressed {
		return nil
	}
	if err := c.startRecognizer(); err != nil {
		c.listening = false
		c.cfg.Surface.SetStatus("Could not start voice recognition. Error: " + err.Error())
		return err
	}
	return nil
}

// StopListening clears the listening intent and stops the recognizer.
func (c *Coordinator) StopListening() {
	if !c.listening {
		return
	}
	c.listening = false
	c.cfg.Surface.SetTranscript("")
	c.cfg.Surface.SetStatus("Stopped listening")
	c.stopRecognizer()
}

// Speak suspends recognition, cancels any prompt still playing and queues text.
// Recognition resumes a settle delay after the engine reports completion.
func (c *Coordinator) Speak(text string) {
	if c.cfg.Synthesizer == nil || strings.TrimSpace(text) == "" {
		return
	}
	c.cancelSettle()
	if c.listening {
		c.suppressed = true
		c.stopRecognizer()
	}
	if c.speaking {
		if err := c.cfg.Synthesizer.Cancel(); err != nil {
			c.log.Warn("cancel synthesis failed", slogError(err))
		}
	}

	c.speaking = true
	id, err := c.cfg.Synthesizer.Speak(text, c.cfg.Voice)
	if err != nil {
		c.log.Warn("speak failed", slogError(err))
		c.speaking = false
		c.utterance = ""
		c.scheduleResume()
		return
	}
	c.utterance = id
	c.log.Debug("speaking", slog.String("utterance_id", id), slog.String("text", text))
}

// OnSynthesisEnd handles completion of an utterance. Events for utterances
// that were replaced by a newer prompt are ignored.
func (c *Coordinator) OnSynthesisEnd(id string) {
	if !c.speaking || id != c.utterance {
		return
	}
	c.speaking = false
	c.utterance = ""
	c.scheduleResume()
}

func (c *Coordinator) OnSynthesisError(id, reason string) {
	if !c.speaking || id != c.utterance {
		return
	}
	c.log.Warn("synthesis error", slog.String("utterance_id", id), slog.String("reason", reason))
	c.speaking = false
	c.utterance = ""
	c.scheduleResume()
}

func (c *Coordinator) OnRecognitionStart() {
	c.recognizing = true
	if c.listening {
		c.cfg.Surface.SetStatus("Listening... Speak now!")
	}
}

// OnRecognitionEnd keeps continuous recognition alive across engine-initiated
// stops, except when the stop was ours.
func (c *Coordinator) OnRecognitionEnd() {
	c.recognizing = false
	if c.suppressed || !c.listening {
		return
	}
	c.log.Debug("recognizer ended, restarting")
	if err := c.startRecognizer(); err != nil {
		c.listening = false
		c.cfg.Surface.SetStatus("Recognition stopped. Turn listening on to restart.")
	}
}

func (c *Coordinator) OnRecognitionError(code string) {
	kind := Classify(code)
	c.log.Warn("recognition error", slog.String("code", code), slog.String("kind", kind.String()))
	c.cfg.Surface.SetStatus(statusForError(kind, code))
	if kind == ErrorPermissionDenied {
		c.listening = false
		c.cfg.Surface.SetTranscript("")
	}
	if c.cfg.OnRecognitionError != nil {
		c.cfg.OnRecognitionError(kind, code)
	}
}

// OnRecognitionResult gates recognizer output. Interim text is only shown;
// final text is dropped while speaking or when it echoes a prompt, and
// dispatched otherwise.
func (c *Coordinator) OnRecognitionResult(results []speech.Result, index int) {
	if index < 0 {
		index = 0
	}
	var final, interim strings.Builder
	for i := index; i < len(results); i++ {
		if results[i].IsFinal {
			final.WriteString(results[i].Transcript)
			final.WriteByte(' ')
		} else {
			interim.WriteString(results[i].Transcript)
		}
	}

	text := strings.TrimSpace(final.String())
	if text == "" {
		if partial := strings.TrimSpace(interim.String()); partial != "" {
			c.cfg.Surface.SetTranscript(partial + "...")
			c.outcome(OutcomeInterim, partial)
		}
		return
	}

	if c.speaking {
		c.log.Debug("dropping transcript while speaking", slog.String("text", text))
		c.outcome(OutcomeDroppedSpeaking, text)
		return
	}
	if c.isEcho(strings.ToLower(text)) {
		c.log.Debug("dropping self-spoken phrase", slog.String("text", text))
		c.outcome(OutcomeDroppedEcho, text)
		return
	}

	c.cfg.Surface.SetTranscript(text)
	c.cfg.Surface.SetStatus("Processing command...")
	c.outcome(OutcomeDispatched, text)
	c.cfg.Dispatch(text)
}

func (c *Coordinator) isEcho(lower string) bool {
	for _, phrase := range c.echo {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (c *Coordinator) scheduleResume() {
	c.cancelSettle()
	gen := c.settleGen
	c.settle = c.cfg.Scheduler.AfterFunc(TimerSettle, c.cfg.SettleDelay, func() { c.resume(gen) })
}

// cancelSettle stops the pending settle timer. A callback that already fired
// and is queued behind the caller is dropped by resume.
func (c *Coordinator) cancelSettle() {
	c.settleGen++
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
}

func (c *Coordinator) resume(gen uint64) {
	if gen != c.settleGen {
		return
	}
	c.settle = nil
	if c.speaking {
		return
	}
	c.suppressed = false
	if !c.listening {
		return
	}
	if err := c.startRecognizer(); err != nil {
		c.log.Error("failed to restart recognition after speaking", slogError(err))
		c.listening = false
		c.cfg.Surface.SetStatus("Recognition stopped. Turn listening on to restart.")
	}
}

func (c *Coordinator) startRecognizer() error {
	if c.recognizing {
		return nil
	}
	if err := c.cfg.Recognizer.Start(); err != nil {
		return fmt.Errorf("start recognizer: %w", err)
	}
	c.recognizing = true
	return nil
}

func (c *Coordinator) stopRecognizer() {
	if !c.recognizing {
		return
	}
	if err := c.cfg.Recognizer.Stop(); err != nil {
		c.log.Warn("stop recognizer failed", slogError(err))
	}
}

func (c *Coordinator) outcome(o Outcome, text string) {
	if c.cfg.OnOutcome != nil {
		c.cfg.OnOutcome(o, text)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
