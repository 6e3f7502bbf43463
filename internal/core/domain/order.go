package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day format of delivery dates.
const DateLayout = "2006-01-02"

// MaxLineQuantity caps the requested quantity of one line. Every backordered
// unit becomes a delivery row, so the cap also bounds the schedule.
const MaxLineQuantity = 10_000

type SaleStatus string

const (
	SaleStatusCreated        SaleStatus = "created"
	SaleStatusAlreadyApplied SaleStatus = "already_applied"
	SaleStatusRejected       SaleStatus = "rejected"
)

// LineRequest is one requested line of an incoming sale.
type LineRequest struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Delivery is one scheduled backorder shipment.
type Delivery struct {
	Date     time.Time
	Quantity int
}

// DateString returns the delivery day as YYYY-MM-DD.
func (d Delivery) DateString() string {
	return d.Date.Format(DateLayout)
}

type SaleLineItem struct {
	LineNo            int
	ProductID         int64
	Quantity          int
	Price             decimal.Decimal
	ImmediateQuantity int
	FutureDeliveries  []Delivery
}

// BackorderQuantity is the part of the requested quantity not shipped
// immediately.
func (l SaleLineItem) BackorderQuantity() int {
	return l.Quantity - l.ImmediateQuantity
}

// ScheduledQuantity sums the future deliveries.
func (l SaleLineItem) ScheduledQuantity() int {
	total := 0
	for _, d := range l.FutureDeliveries {
		total += d.Quantity
	}
	return total
}

// Sale is immutable once committed. SaleID is the idempotency key.
type Sale struct {
	SaleID    string
	Timestamp time.Time
	Total     decimal.Decimal
	Items     []SaleLineItem
}

// SaleTotal charges the full requested quantity regardless of fulfillment
// timing.
func SaleTotal(lines []LineRequest) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// SaleResult is the outcome returned to the transport layer.
type SaleResult struct {
	Status SaleStatus
	Sale   Sale
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
