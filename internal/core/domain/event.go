package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSaleCommitted EventType = "sale.committed"
	EventStockAdjusted EventType = "stock.adjusted"
)

// Event is published after a successful commit. Key is the sale id or the
// product id and is used as the message key so events of one aggregate stay
// ordered.
type Event struct {
	ID         string
	Type       EventType
	Key        string
	Sale       *Sale
	Adjustment *StockAdjustment
	OccurredAt time.Time
}

func NewSaleCommittedEvent(sale Sale, at time.Time) Event {
	s := sale
	return Event{
		ID:         uuid.NewString(),
		Type:       EventSaleCommitted,
		Key:        sale.SaleID,
		Sale:       &s,
		OccurredAt: at,
	}
}

func NewStockAdjustedEvent(adj StockAdjustment) Event {
	a := adj
	return Event{
		ID:         uuid.NewString(),
		Type:       EventStockAdjusted,
		Key:        itoa(adj.ProductID),
		Adjustment: &a,
		OccurredAt: adj.CreatedAt,
	}
}
