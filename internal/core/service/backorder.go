package service

import (
	"time"

	"github.com/rl1809/order-intake/internal/core/domain"
)

// BackorderScheduler plans the future deliveries of a shortfall.
type BackorderScheduler interface {
	Schedule(shortfall int, asOf time.Time) []domain.Delivery
}

// DailyUnitScheduler ships one unit per day starting the day after asOf. The
// day is taken in asOf's own location, so a sale keeps the calendar date its
// caller sent.
type DailyUnitScheduler struct{}

func (DailyUnitScheduler) Schedule(shortfall int, asOf time.Time) []domain.Delivery {
	if shortfall <= 0 {
		return []domain.Delivery{}
	}

	y, m, d := asOf.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	deliveries := make([]domain.Delivery, shortfall)
	for i := range deliveries {
		deliveries[i] = domain.Delivery{
			Date:     day.AddDate(0, 0, i+1),
			Quantity: 1,
		}
	}
	return deliveries
}
