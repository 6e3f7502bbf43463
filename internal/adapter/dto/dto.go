// Package dto holds the JSON shapes shared by the transports, the sale result
// cache and the event stream. They decouple the wire contract from the
// domain types; validation stays in the services.
package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/order-intake/internal/core/domain"
)

type DeliveryDTO struct {
	Date     string `json:"date"`
	Quantity int    `json:"qty"`
}

type LineDetailDTO struct {
	ProductID        int64           `json:"product_id"`
	RequestedQty     int             `json:"requested_qty"`
	Price            decimal.Decimal `json:"price"`
	ImmediateQty     int             `json:"immediate_qty"`
	BackorderQty     int             `json:"backorder_qty"`
	FutureDeliveries []DeliveryDTO   `json:"future_deliveries"`
}

type SaleDTO struct {
	SaleID    string          `json:"sale_id"`
	Timestamp string          `json:"timestamp"`
	Total     decimal.Decimal `json:"total"`
	Items     []LineDetailDTO `json:"items"`
}

type ProductDTO struct {
	ProductID      int64  `json:"product_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	QuantityOnHand int    `json:"quantity_on_hand"`
}

type AdjustmentDTO struct {
	ProductID         int64  `json:"product_id"`
	Delta             int    `json:"adjustment"`
	Reason            string `json:"reason"`
	NewQuantityOnHand int    `json:"new_quantity_on_hand"`
	CreatedAt         string `json:"created_at"`
}

type EventDTO struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	OccurredAt string         `json:"occurred_at"`
	Sale       *SaleDTO       `json:"sale,omitempty"`
	Adjustment *AdjustmentDTO `json:"adjustment,omitempty"`
}

func FromDeliveries(ds []domain.Delivery) []DeliveryDTO {
	out := make([]DeliveryDTO, len(ds))
	for i, d := range ds {
		out[i] = DeliveryDTO{Date: d.DateString(), Quantity: d.Quantity}
	}
	return out
}

func FromLineItem(item domain.SaleLineItem) LineDetailDTO {
	return LineDetailDTO{
		ProductID:        item.ProductID,
		RequestedQty:     item.Quantity,
		Price:            item.Price,
		ImmediateQty:     item.ImmediateQuantity,
		BackorderQty:     item.BackorderQuantity(),
		FutureDeliveries: FromDeliveries(item.FutureDeliveries),
	}
}

func FromSale(s domain.Sale) SaleDTO {
	items := make([]LineDetailDTO, len(s.Items))
	for i, item := range s.Items {
		items[i] = FromLineItem(item)
	}
	return SaleDTO{
		SaleID:    s.SaleID,
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
		Total:     s.Total,
		Items:     items,
	}
}

// ToSale is the inverse of FromSale.
func (s SaleDTO) ToSale() (domain.Sale, error) {
	ts, err := time.Parse(time.RFC3339Nano, s.Timestamp)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("parse timestamp %q: %w", s.Timestamp, err)
	}

	items := make([]domain.SaleLineItem, len(s.Items))
	for i, l := range s.Items {
		deliveries := make([]domain.Delivery, len(l.FutureDeliveries))
		for j, d := range l.FutureDeliveries {
			date, err := time.Parse(domain.DateLayout, d.Date)
			if err != nil {
				return domain.Sale{}, fmt.Errorf("parse delivery date %q: %w", d.Date, err)
			}
			deliveries[j] = domain.Delivery{Date: date, Quantity: d.Quantity}
		}
		items[i] = domain.SaleLineItem{
			LineNo:            i + 1,
			ProductID:         l.ProductID,
			Quantity:          l.RequestedQty,
			Price:             l.Price,
			ImmediateQuantity: l.ImmediateQty,
			FutureDeliveries:  deliveries,
		}
	}

	return domain.Sale{
		SaleID:    s.SaleID,
		Timestamp: ts.UTC(),
		Total:     s.Total,
		Items:     items,
	}, nil
}

func FromProduct(p domain.Product) ProductDTO {
	return ProductDTO{
		ProductID:      p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		QuantityOnHand: p.QuantityOnHand,
	}
}

func FromAdjustment(a domain.StockAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ProductID:         a.ProductID,
		Delta:             a.Delta,
		Reason:            a.Reason,
		NewQuantityOnHand: a.QuantityAfter,
		CreatedAt:         a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func FromEvent(e domain.Event) EventDTO {
	out := EventDTO{
		ID:         e.ID,
		Type:       string(e.Type),
		Key:        e.Key,
		OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if e.Sale != nil {
		s := FromSale(*e.Sale)
		out.Sale = &s
	}
	if e.Adjustment != nil {
		a := FromAdjustment(*e.Adjustment)
		out.Adjustment = &a
	}
	return out
}
