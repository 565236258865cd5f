// internal/notifier/notifier.go
package notifier

import (
	"context"
	"errors"
	"fmt"

	"recharge-service/internal/domain"
	"recharge-service/internal/metrics"

	"go.uber.org/zap"
)

// Sink is a named notification destination.
type Sink interface {
	domain.Notifier
	Name() string
}

// Fanout delivers each notice to every sink and joins their errors.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, notice *domain.SettlementNotice) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notify(ctx, notice); err != nil {
			metrics.NotificationFailures.WithLabelValues(s.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notices to the service log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(_ context.Context, n *domain.SettlementNotice) error {
	fields := []zap.Field{
		zap.String("event_id", n.EventID),
		zap.Int64("user_id", n.UserID),
		zap.String("order_id", n.OrderID),
		zap.String("order_type", string(n.OrderType)),
		zap.String("currency", string(n.Currency)),
		zap.String("amount", n.Amount.StringFixed(2)),
		zap.String("credits", n.Credits.StringFixed(2)),
		zap.String("tx_hash", n.TxHash),
	}
	if n.VIPExpiresAt != nil {
		fields = append(fields, zap.Time("vip_expires_at", *n.VIPExpiresAt))
	} else {
		fields = append(fields, zap.String("balance_after", n.BalanceAfter.StringFixed(2)))
	}
	s.logger.Info("recharge completed", fields...)
	return nil
}
