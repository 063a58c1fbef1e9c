package tts

import (
	"context"

	"github.com/loqalabs/voicepay/internal/protocol"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	SessionID   string
	UtteranceID string
	Text        string
	Voice       protocol.Voice
}

// SynthChunk contains PCM data.
type SynthChunk struct {
	SessionID  string
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio. Both channels are closed
// when synthesis finishes; a canceled ctx must stop it promptly.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}
