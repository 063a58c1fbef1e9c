package stt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/voicepay/internal/bus/bustest"
	"github.com/loqalabs/voicepay/internal/config"
	"github.com/loqalabs/voicepay/internal/protocol"
	"github.com/loqalabs/voicepay/internal/speech"
)

// listener forwards engine callbacks onto a channel as short strings.
type listener struct {
	events chan string
}

func newListener() *listener { return &listener{events: make(chan string, 32)} }

func (l *listener) OnRecognitionStart() { l.events <- "start" }
func (l *listener) OnRecognitionEnd()   { l.events <- "end" }
func (l *listener) OnRecognitionError(code string) {
	l.events <- "error:" + code
}
func (l *listener) OnRecognitionResult(results []speech.Result, index int) {
	r := results[len(results)-1]
	kind := "interim:"
	if r.IsFinal {
		kind = "final:"
	}
	l.events <- kind + r.Transcript
}

func (l *listener) next(t *testing.T) string {
	t.Helper()
	select {
	case evt := <-l.events:
		return evt
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for recognition event")
		return ""
	}
}

type failingRecognizer struct{ err error }

func (f failingRecognizer) Transcribe(context.Context, []byte, int, int, string, bool) (TranscriptResult, error) {
	return TranscriptResult{}, f.err
}

func testConfig() config.STTConfig {
	cfg := config.Default().STT
	cfg.Enabled = true
	cfg.PublishInterim = false
	return cfg
}

func startService(t *testing.T, cfg config.STTConfig, rec Recognizer) (*Client, *listener, func(text string, final bool)) {
	t.Helper()
	client := bustest.Start(t)
	svc := NewService(context.Background(), cfg, client, rec, bustest.Logger())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Close)
	require.True(t, svc.Healthy())

	rc, err := NewClient(client, ClientOptions{SessionID: "s1", Language: "en-IN"}, bustest.Logger())
	require.NoError(t, err)
	t.Cleanup(rc.Close)
	l := newListener()
	rc.SetListener(l)
	require.NoError(t, client.Conn().Flush())

	send := func(text string, final bool) {
		require.NoError(t, client.PublishJSON(protocol.AudioFrameSubject("s1"), protocol.AudioFrame{
			SessionID: "s1", PCM: []byte(text), Final: final,
		}))
		require.NoError(t, client.Conn().Flush())
	}
	return rc, l, send
}

func TestRecognitionRoundTrip(t *testing.T) {
	rc, l, send := startService(t, testConfig(), NewMockRecognizer())

	require.NoError(t, rc.Start())
	assert.Equal(t, "start", l.next(t))
	assert.Error(t, rc.Start(), "second start before end must fail")

	send("initiate payment", true)
	assert.Equal(t, "final:initiate payment", l.next(t))

	send("", true)
	assert.Equal(t, "error:"+speech.CodeNoSpeech, l.next(t))

	require.NoError(t, rc.Stop())
	assert.Equal(t, "end", l.next(t))

	require.NoError(t, rc.Start(), "start is allowed again after end")
	assert.Equal(t, "start", l.next(t))
}

func TestFramesWithoutStartAreDropped(t *testing.T) {
	rc, l, send := startService(t, testConfig(), NewMockRecognizer())

	send("pay ram", true)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, rc.Start())
	assert.Equal(t, "start", l.next(t))

	send("approve", true)
	assert.Equal(t, "final:approve", l.next(t), "audio sent before start is not recognized")
}

func TestMaxSessionEndsRun(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessionMS = 50
	rc, l, _ := startService(t, cfg, NewMockRecognizer())

	require.NoError(t, rc.Start())
	assert.Equal(t, "start", l.next(t))
	assert.Equal(t, "end", l.next(t))
}

func TestBackendErrorsAreClassified(t *testing.T) {
	rc, l, send := startService(t, testConfig(), failingRecognizer{err: errors.New("model crashed")})
	require.NoError(t, rc.Start())
	assert.Equal(t, "start", l.next(t))
	send("hello", true)
	assert.Equal(t, "error:other", l.next(t))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, speech.CodeNetwork, errorCode(context.DeadlineExceeded))
	assert.Equal(t, speech.CodeAborted, errorCode(context.Canceled))
	assert.Equal(t, "other", errorCode(errors.New("boom")))
}

func TestMockRecognizer(t *testing.T) {
	rec := NewMockRecognizer()
	res, err := rec.Transcribe(context.Background(), []byte("  pay   ram "), 16000, 1, "", true)
	require.NoError(t, err)
	assert.Equal(t, "pay ram", res.Text)

	res, err = rec.Transcribe(context.Background(), []byte{0x00, 0x01, 0xff, 0xfe}, 16000, 1, "", true)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
}

func TestNewRecognizer(t *testing.T) {
	_, err := NewRecognizer(config.STTConfig{Mode: "cloud"})
	assert.Error(t, err)
	_, err = NewRecognizer(config.STTConfig{Mode: "exec"})
	assert.Error(t, err, "exec requires a command")
	rec, err := NewRecognizer(config.STTConfig{Mode: "exec", Command: "whisper-cli --threads 2"})
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestExecArgs(t *testing.T) {
	rec, err := NewExecRecognizer(config.STTConfig{
		Command:        "whisper-cli --threads 2",
		ModelPath:      "/models/base.bin",
		Language:       "en",
		PublishInterim: true,
	})
	require.NoError(t, err)
	args := rec.(*execRecognizer).buildArgs("/tmp/a.wav", "en-IN", false)
	assert.Equal(t, []string{"--threads", "2", "--audio", "/tmp/a.wav", "--model", "/models/base.bin", "--language", "en-IN", "--partial"}, args)
}

func TestWritePCMToWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	pcm := []byte{0x01, 0x00, 0xff, 0xff, 0x10, 0x00}
	require.NoError(t, writePCMToWav(f, pcm, 16000, 1))
	require.NoError(t, f.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()
	dec := wav.NewDecoder(in)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{1, -1, 16}, buf.Data)
	assert.Equal(t, 16000, buf.Format.SampleRate)

	assert.Error(t, writePCMToWav(f, []byte{0x01}, 16000, 1))
}
