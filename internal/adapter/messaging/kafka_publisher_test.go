package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rl1809/order-intake/internal/adapter/dto"
	"github.com/rl1809/order-intake/internal/core/domain"
)

type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error { return nil }

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_SaleEvent(t *testing.T) {
	writer := &mockWriter{}
	publisher := &KafkaPublisher{writer: writer}

	sale := domain.Sale{
		SaleID:    "S1",
		Timestamp: time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC),
		Total:     decimal.NewFromInt(80),
		Items: []domain.SaleLineItem{{
			LineNo: 1, ProductID: 1, Quantity: 8, Price: decimal.NewFromInt(10), ImmediateQuantity: 5,
		}},
	}
	event := domain.NewSaleCommittedEvent(sale, sale.Timestamp)

	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "S1", string(msg.Key))
	assert.Equal(t, string(domain.EventSaleCommitted), header(msg, "event_type"))
	assert.Equal(t, event.ID, header(msg, "event_id"))

	var payload dto.EventDTO
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, event.ID, payload.ID)
	require.NotNil(t, payload.Sale)
	assert.Nil(t, payload.Adjustment)
	assert.Equal(t, 3, payload.Sale.Items[0].BackorderQty)
	assert.Equal(t, "80", payload.Sale.Total.String())
}

func TestKafkaPublisher_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	writer := &mockWriter{}
	publisher := &KafkaPublisher{writer: writer}
	event := domain.NewStockAdjustedEvent(domain.StockAdjustment{ProductID: 7, Delta: 2, QuantityAfter: 2, CreatedAt: time.Now()})

	require.NoError(t, publisher.Publish(ctx, event))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "7", string(msg.Key))
	traceparent := header(msg, "traceparent")
	assert.True(t, strings.Contains(traceparent, span.SpanContext().TraceID().String()), traceparent)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	publisher := &KafkaPublisher{writer: &mockWriter{err: errors.New("leader not available")}}

	err := publisher.Publish(context.Background(), domain.NewStockAdjustedEvent(domain.StockAdjustment{ProductID: 1}))
	assert.ErrorContains(t, err, "leader not available")
}

func TestKafkaPublisher_Broker(t *testing.T) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS not set")
	}

	publisher := NewKafkaPublisher(strings.Split(brokers, ","), "order-intake.test")
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := publisher.Publish(ctx, domain.NewStockAdjustedEvent(domain.StockAdjustment{ProductID: 1, CreatedAt: time.Now()}))
	if err != nil {
		t.Skipf("Kafka not available: %v", err)
	}
}

func TestLogPublisher(t *testing.T) {
	publisher := NewLogPublisher(nil)
	assert.NoError(t, publisher.Publish(context.Background(), domain.NewSaleCommittedEvent(domain.Sale{SaleID: "S"}, time.Now())))
	assert.NoError(t, publisher.Close())
}
