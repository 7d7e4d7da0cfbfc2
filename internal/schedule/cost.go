package schedule

import "retreat/internal/models"

// Cost returns hourlyRate (cents) multiplied by the window length, rounded
// half-up to the nearest cent. Inverted windows cost nothing.
func Cost(hourlyRate int64, start, end models.Clock) int64 {
	minutes := int64(end.Sub(start))
	if minutes <= 0 || hourlyRate <= 0 {
		return 0
	}
	return (hourlyRate*minutes + 30) / 60
}

// ReservationCost prices a window on a resource; only billable rooms cost money.
func ReservationCost(res *models.Resource, start, end models.Clock) int64 {
	if res == nil || !res.Billable() {
		return 0
	}
	return Cost(res.HourlyRate, start, end)
}
