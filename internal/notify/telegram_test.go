package notify

import (
	"errors"
	"testing"

	"retreat/internal/events"
	"retreat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegramNotifier_Reservation(t *testing.T) {
	sender := new(mockSender)
	logger := zerolog.Nop()
	n := NewTelegramNotifier(sender, []int64{11, 22}, "usd", &logger)

	bus := events.NewEventBus()
	n.Subscribe(bus)

	date, _ := models.ParseDate("2024-01-15")
	r := &models.Reservation{
		ID: 5, ResourceName: "Studio A", ResourceKind: models.KindRoom, Date: date,
		StartTime: models.MustClock("14:00"), EndTime: models.MustClock("17:00"),
		BookedBy: "Choir", Cost: 15000,
	}

	var texts []string
	sender.On("Send", mock.AnythingOfType("tgbotapi.MessageConfig")).
		Run(func(args mock.Arguments) {
			texts = append(texts, args.Get(0).(tgbotapi.MessageConfig).Text)
		}).
		Return(tgbotapi.Message{}, nil).Twice()

	require.NoError(t, bus.PublishJSON(events.EventReservationCreated, events.NewReservationPayload(r, "")))
	sender.AssertExpectations(t)

	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "#5")
	assert.Contains(t, texts[0], "2024-01-15 14:00-17:00")
	assert.Contains(t, texts[0], "150.00 USD")
}

func TestTelegramNotifier_SendErrorsAreJoined(t *testing.T) {
	sender := new(mockSender)
	logger := zerolog.Nop()
	n := NewTelegramNotifier(sender, []int64{1, 2}, "usd", &logger)

	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("blocked")).Once()
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil).Once()

	err := n.Broadcast("hello")
	assert.Error(t, err)
	sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestFormat(t *testing.T) {
	form, _ := events.NewJSONEvent(events.EventFormSubmitted, events.FormEventPayload{
		Kind: models.FormDamageReport, Reference: "ref-1", Email: "a@b.c", Summary: "Canoe hull cracked",
	})
	text, err := Format(&form, "usd")
	require.NoError(t, err)
	assert.Contains(t, text, "Canoe hull cracked")
	assert.Contains(t, text, "ref-1")

	donation, _ := events.NewJSONEvent(events.EventDonationConfirmed, events.DonationEventPayload{
		Reference: "d-1", Amount: 2505, Currency: "usd",
	})
	text, err = Format(&donation, "usd")
	require.NoError(t, err)
	assert.Contains(t, text, "25.05 USD")
	assert.Contains(t, text, "anonymous")

	other := events.Event{Type: "unknown"}
	text, err = Format(&other, "usd")
	require.NoError(t, err)
	assert.Empty(t, text)

	broken := events.Event{Type: events.EventReservationCreated, Payload: []byte("{")}
	_, err = Format(&broken, "usd")
	assert.Error(t, err)
}
