package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/order-intake/internal/core/domain"
)

// LogPublisher logs events instead of shipping them. Used when no broker is
// configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("key", event.Key),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.Sale != nil {
		fields = append(fields, zap.String("total", event.Sale.Total.String()), zap.Int("lines", len(event.Sale.Items)))
	}
	if event.Adjustment != nil {
		fields = append(fields, zap.Int("delta", event.Adjustment.Delta), zap.Int("quantity_on_hand", event.Adjustment.QuantityAfter))
	}
	p.logger.Info("event", fields...)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
