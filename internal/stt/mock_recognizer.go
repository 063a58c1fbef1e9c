package stt

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a loopback recognizer: frame payloads that hold
// printable UTF-8 are "recognized" as that text, anything else as silence.
// It lets the whole pipeline run without a speech model.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(ctx context.Context, pcm []byte, _ int, _ int, _ string, _ bool) (TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscriptResult{}, err
	}
	if !utf8.Valid(pcm) {
		return TranscriptResult{}, nil
	}
	text := string(pcm)
	for _, r := range text {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return TranscriptResult{}, nil
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return TranscriptResult{}, nil
	}
	return TranscriptResult{Text: text, Confidence: 1}, nil
}
