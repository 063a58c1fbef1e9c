// Package bustest starts an in-process NATS server for tests.
package bustest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/config"
	"github.com/loqalabs/voicepay/internal/natsserver"
)

// Logger discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Start runs an embedded server on a random port and returns a connected
// client. Both are torn down with the test.
func Start(t testing.TB) *bus.Client {
	t.Helper()
	log := Logger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	return Connect(t, srv.ClientURL())
}

// Connect opens an additional client against url.
func Connect(t testing.TB, url string) *bus.Client {
	t.Helper()
	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{url},
		ConnectTimeout: 2000,
	}, "bustest", Logger())
	if err != nil {
		t.Fatalf("connect nats: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}
