package tts

import (
	"context"
	"strings"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
	perWord    time.Duration
}

// NewMockSynth returns a synthesizer that emits silence, taking roughly as long
// as speaking the text would at the requested rate.
func NewMockSynth(sampleRate, channels int, perWord time.Duration) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels, perWord: perWord}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(m.duration(req)):
		}
		chunks <- SynthChunk{
			SessionID:  req.SessionID,
			Sequence:   0,
			SampleRate: m.sampleRate,
			Channels:   m.channels,
			PCM:        []byte{},
			Final:      true,
		}
	}()
	return chunks, errs
}

func (m *mockSynth) duration(req SynthRequest) time.Duration {
	d := time.Duration(len(strings.Fields(req.Text))) * m.perWord
	if req.Voice.Rate > 0 {
		d = time.Duration(float64(d) / req.Voice.Rate)
	}
	return d
}
