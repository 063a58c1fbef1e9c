package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/config"
	"github.com/loqalabs/voicepay/internal/contacts"
	"github.com/loqalabs/voicepay/internal/protocol"
	"github.com/loqalabs/voicepay/internal/surface"
)

var version = "0.1.0-dev"

const usage = "expected 'say', 'tap', 'listen', 'contacts validate' or 'version'"

type busFlags struct {
	server   string
	stateURL string
	session  string
}

func (b *busFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&b.server, "server", envOr("VOICEPAY_NATS_URL", "nats://127.0.0.1:4222"), "NATS server URL")
	fs.StringVar(&b.stateURL, "state-url", "http://127.0.0.1:8080/state", "Daemon state endpoint used to discover the session id")
	fs.StringVar(&b.session, "session", "", "Session id (discovered from -state-url when empty)")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "say":
		err = runSay(os.Args[2:])
	case "tap":
		err = runTap(os.Args[2:])
	case "listen":
		err = runListen(os.Args[2:])
	case "contacts":
		err = runContacts(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runSay publishes text as a final audio frame. The mock recognizer treats
// frame bytes as the transcript, so this drives the dialogue end to end.
func runSay(args []string) error {
	var flags busFlags
	cmd := flag.NewFlagSet("say", flag.ExitOnError)
	flags.register(cmd)
	_ = cmd.Parse(args)
	if cmd.NArg() == 0 {
		return errors.New("usage: voicepayctl say [flags] <utterance>")
	}
	text := strings.Join(cmd.Args(), " ")

	client, sessionID, err := connect(&flags, true)
	if err != nil {
		return err
	}
	defer client.Close()

	frame := protocol.AudioFrame{
		SessionID: sessionID,
		PCM:       []byte(text),
		Final:     true,
	}
	if err := client.PublishJSON(protocol.AudioFrameSubject(sessionID), frame); err != nil {
		return err
	}
	return client.Conn().Flush()
}

func runTap(args []string) error {
	var (
		flags     busFlags
		contactID int
		amount    string
	)
	cmd := flag.NewFlagSet("tap", flag.ExitOnError)
	flags.register(cmd)
	cmd.IntVar(&contactID, "contact", 0, "Contact id for select_contact")
	cmd.StringVar(&amount, "amount", "", "Amount for set_amount")
	_ = cmd.Parse(args)
	if cmd.NArg() != 1 {
		return errors.New("usage: voicepayctl tap [flags] <new_payment|select_contact|set_amount|approve|cancel|show_history|go_home|toggle_listening>")
	}

	client, sessionID, err := connect(&flags, true)
	if err != nil {
		return err
	}
	defer client.Close()

	evt := protocol.UIEvent{
		SessionID: sessionID,
		Type:      cmd.Arg(0),
		ContactID: contactID,
		Amount:    amount,
	}
	if err := client.PublishJSON(protocol.SubjectUIEvent, evt); err != nil {
		return err
	}
	return client.Conn().Flush()
}

// runListen prints snapshots, transcripts and prompts as JSON lines until
// interrupted.
func runListen(args []string) error {
	var flags busFlags
	cmd := flag.NewFlagSet("listen", flag.ExitOnError)
	flags.register(cmd)
	_ = cmd.Parse(args)

	client, _, err := connect(&flags, false)
	if err != nil {
		return err
	}
	defer client.Close()

	enc := json.NewEncoder(os.Stdout)
	lines := make(chan any, 64)
	emit := func(kind string) func(v json.RawMessage) {
		return func(v json.RawMessage) {
			lines <- map[string]any{"kind": kind, "data": v}
		}
	}
	subjects := map[string]string{
		protocol.SubjectUIState:         "state",
		protocol.SubjectTranscriptFinal: "transcript",
		protocol.SubjectTTSRequest:      "prompt",
		protocol.SubjectSTTEvent:        "recognition",
	}
	for subject, kind := range subjects {
		sub, err := bus.SubscribeJSON(client, subject, emit(kind))
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
	}
}

func runContacts(args []string) error {
	if len(args) == 0 || args[0] != "validate" {
		return errors.New("usage: voicepayctl contacts validate -file contacts.yaml")
	}
	var path string
	cmd := flag.NewFlagSet("contacts validate", flag.ExitOnError)
	cmd.StringVar(&path, "file", "contacts.yaml", "Path to contact list")
	_ = cmd.Parse(args[1:])

	dir, err := contacts.Load(path)
	if err != nil {
		return err
	}
	fmt.Printf("contacts valid (%d entries)\n", dir.Len())
	return nil
}

func connect(flags *busFlags, needSession bool) (*bus.Client, string, error) {
	sessionID := flags.session
	if sessionID == "" && needSession {
		discovered, err := discoverSession(flags.stateURL)
		if err != nil {
			return nil, "", err
		}
		sessionID = discovered
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{flags.server},
		ConnectTimeout: 2000,
	}, "voicepayctl", logger)
	if err != nil {
		return nil, "", err
	}
	return client, sessionID, nil
}

func discoverSession(stateURL string) (string, error) {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(stateURL)
	if err != nil {
		return "", fmt.Errorf("discover session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discover session: %s returned %s", stateURL, resp.Status)
	}
	var snap surface.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return "", fmt.Errorf("decode state: %w", err)
	}
	if snap.SessionID == "" {
		return "", errors.New("daemon reported no session")
	}
	return snap.SessionID, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
