package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"retreat/internal/models"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name       string
		rate       int64
		start, end string
		want       int64
	}{
		{"three hours", 5000, "14:00", "17:00", 15000},
		{"half hour", 5000, "14:00", "14:30", 2500},
		{"rounds half up", 1001, "10:00", "10:30", 501},
		{"partial minute rounds", 1000, "10:00", "10:01", 17},
		{"zero rate", 0, "10:00", "12:00", 0},
		{"inverted", 5000, "12:00", "10:00", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cost(tt.rate, models.MustClock(tt.start), models.MustClock(tt.end)))
		})
	}
}

func TestReservationCost(t *testing.T) {
	room := &models.Resource{Kind: models.KindRoom, HourlyRate: 4000}
	guitar := &models.Resource{Kind: models.KindInstrument, HourlyRate: 4000}

	assert.Equal(t, int64(8000), ReservationCost(room, models.MustClock("09:00"), models.MustClock("11:00")))
	assert.Zero(t, ReservationCost(guitar, models.MustClock("09:00"), models.MustClock("11:00")))
	assert.Zero(t, ReservationCost(nil, models.MustClock("09:00"), models.MustClock("11:00")))
}
