package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"retreat/internal/models"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationPending   = "reservation_pending"
	EventReservationDeleted   = "reservation_deleted"
	EventFormSubmitted        = "form_submitted"
	EventDonationConfirmed    = "donation_confirmed"
)

// StatusEvent maps a reservation status to the event published when it is set.
func StatusEvent(status string) string {
	switch status {
	case models.StatusConfirmed:
		return EventReservationConfirmed
	case models.StatusCancelled:
		return EventReservationCancelled
	default:
		return EventReservationPending
	}
}

// ReservationEventPayload describes the minimal reservation snapshot for event consumers.
type ReservationEventPayload struct {
	ReservationID int64     `json:"reservation_id"`
	ResourceID    int64     `json:"resource_id"`
	ResourceName  string    `json:"resource_name"`
	ResourceKind  string    `json:"resource_kind"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Status        string    `json:"status"`
	BookedBy      string    `json:"booked_by"`
	Cost          int64     `json:"cost,omitempty"`
	ChangedBy     string    `json:"changed_by,omitempty"`
	At            time.Time `json:"at"`
}

// NewReservationPayload snapshots r for publishing.
func NewReservationPayload(r *models.Reservation, changedBy string) ReservationEventPayload {
	return ReservationEventPayload{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		ResourceName:  r.ResourceName,
		ResourceKind:  r.ResourceKind,
		Date:          r.DateKey(),
		StartTime:     r.StartTime.String(),
		EndTime:       r.EndTime.String(),
		Status:        r.Status,
		BookedBy:      r.BookedBy,
		Cost:          r.Cost,
		ChangedBy:     changedBy,
		At:            time.Now(),
	}
}

type FormEventPayload struct {
	Kind      string `json:"kind"`
	Reference string `json:"reference"`
	Email     string `json:"email"`
	Summary   string `json:"summary"`
}

type DonationEventPayload struct {
	Reference       string `json:"reference"`
	PaymentIntentID string `json:"payment_intent_id"`
	DonorName       string `json:"donor_name"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Fund            string `json:"fund,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Every handler runs even
// if an earlier one fails; the failures are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
