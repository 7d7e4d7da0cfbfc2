package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	KindRoom        = "room"
	KindInstrument  = "instrument"
	KindChoirMember = "choir_member"
)

const (
	FormDamageReport   = "damage_report"
	FormLandAllocation = "land_allocation"
	FormDonation       = "donation"
	FormProfile        = "profile"
)

const (
	DonationPending   = "pending"
	DonationSucceeded = "succeeded"
	DonationFailed    = "failed"
)

const DateLayout = "2006-01-02"

const (
	// DefaultIdempotencyTTL время хранения ответа по ключу идемпотентности (секунды)
	DefaultIdempotencyTTL = 24 * 60 * 60

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// DefaultMaxBookingDays горизонт бронирования
	DefaultMaxBookingDays = 365

	// DefaultOpenTime / DefaultCloseTime границы рабочего дня для расчёта свободных окон
	DefaultOpenTime  = "06:00"
	DefaultCloseTime = "23:00"
)

// ValidStatus reports whether s is one of the reservation statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// ValidKind reports whether k is a known resource kind.
func ValidKind(k string) bool {
	switch k {
	case KindRoom, KindInstrument, KindChoirMember:
		return true
	}
	return false
}
