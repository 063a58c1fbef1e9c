package session

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/loqalabs/voicepay/internal/dialogue"
	"github.com/loqalabs/voicepay/internal/eventstore"
	"github.com/loqalabs/voicepay/internal/ledger"
	"github.com/loqalabs/voicepay/internal/turn"
)

type metrics struct {
	utterances        metric.Int64Counter
	commands          metric.Int64Counter
	committed         metric.Int64Counter
	recognitionErrors metric.Int64Counter
}

// newMetrics always returns usable instruments; on error they are no-ops.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m, err := buildMetrics(meter)
	if err != nil {
		fallback, _ := buildMetrics(noop.NewMeterProvider().Meter(""))
		return fallback, err
	}
	return m, nil
}

func buildMetrics(meter metric.Meter) (*metrics, error) {
	utterances, err := meter.Int64Counter("voicepay.utterances",
		metric.WithDescription("Final utterances by coordinator outcome"))
	if err != nil {
		return nil, err
	}
	commands, err := meter.Int64Counter("voicepay.commands",
		metric.WithDescription("Interpreted commands by kind and source"))
	if err != nil {
		return nil, err
	}
	committed, err := meter.Int64Counter("voicepay.transactions.committed",
		metric.WithDescription("Completed payment transactions"))
	if err != nil {
		return nil, err
	}
	recErrors, err := meter.Int64Counter("voicepay.recognition.errors",
		metric.WithDescription("Recognition engine errors by kind"))
	if err != nil {
		return nil, err
	}
	return &metrics{
		utterances:        utterances,
		commands:          commands,
		committed:         committed,
		recognitionErrors: recErrors,
	}, nil
}

func (m *metrics) command(ctx context.Context, kind dialogue.Kind, source string) {
	m.commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.String("source", source),
	))
}

func (s *Session) onOutcome(outcome turn.Outcome, text string) {
	if outcome == turn.OutcomeInterim {
		return
	}
	s.metrics.utterances.Add(s.ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
	s.record(eventstore.KindUtterance, map[string]string{"outcome": string(outcome), "text": text})
}

func (s *Session) onTransition(t dialogue.Transition) {
	s.record(eventstore.KindTransition, map[string]string{
		"from":    t.From.String(),
		"to":      t.To.String(),
		"command": t.Command.Kind.String(),
		"timer":   t.Timer,
	})
}

func (s *Session) onCommit(txn ledger.Transaction) {
	s.metrics.committed.Add(s.ctx, 1)
	s.log.Info("transaction committed",
		slog.Int64("transaction_id", txn.ID),
		slog.String("recipient", txn.Recipient),
		slog.String("amount", txn.Amount))
	s.record(eventstore.KindCommit, txn)
}

func (s *Session) onRecognitionError(kind turn.ErrorKind, code string) {
	s.metrics.recognitionErrors.Add(s.ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
	s.record(eventstore.KindRecognitionError, map[string]string{"kind": kind.String(), "code": code})
}

func (s *Session) record(kind string, payload any) {
	if s.cfg.Journal == nil {
		return
	}
	if err := s.cfg.Journal.Record(s.ctx, s.id, s.traceID, kind, s.machine.State().String(), payload); err != nil {
		s.log.Warn("failed to journal event", slog.String("kind", kind), slogError(err))
	}
}
