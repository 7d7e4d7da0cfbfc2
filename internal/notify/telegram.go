// Package notify pushes reservation, form and donation events to the
// managers' Telegram chats.
package notify

import (
	"errors"
	"fmt"
	"strings"

	"retreat/internal/domain"
	"retreat/internal/events"
	"retreat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type TelegramNotifier struct {
	bot      domain.TelegramSender
	managers []int64
	currency string
	logger   *zerolog.Logger
}

// NewBot authorizes the bot token against the Telegram API.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return bot, nil
}

func NewTelegramNotifier(bot domain.TelegramSender, managers []int64, currency string, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:      bot,
		managers: managers,
		currency: currency,
		logger:   logger,
	}
}

// Subscribe registers the notifier on every event managers care about.
func (n *TelegramNotifier) Subscribe(bus *events.EventBus) {
	for _, t := range []string{
		events.EventReservationCreated,
		events.EventReservationConfirmed,
		events.EventReservationCancelled,
		events.EventFormSubmitted,
		events.EventDonationConfirmed,
	} {
		bus.Subscribe(t, n.Handle)
	}
}

// Handle formats the event and sends it to every manager.
func (n *TelegramNotifier) Handle(event *events.Event) error {
	text, err := Format(event, n.currency)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return n.Broadcast(text)
}

func (n *TelegramNotifier) Broadcast(text string) error {
	var errs []error
	for _, chatID := range n.managers {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to notify manager")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func formatMoney(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}

// Format renders an event as a plain-text manager message. Reservation
// costs are shown in currency.
func Format(event *events.Event, currency string) (string, error) {
	switch event.Type {
	case events.EventReservationCreated, events.EventReservationConfirmed, events.EventReservationCancelled:
		var p events.ReservationEventPayload
		if err := event.Decode(&p); err != nil {
			return "", fmt.Errorf("decode %s: %w", event.Type, err)
		}
		title := map[string]string{
			events.EventReservationCreated:   "Новая бронь",
			events.EventReservationConfirmed: "Бронь подтверждена",
			events.EventReservationCancelled: "Бронь отменена",
		}[event.Type]

		var b strings.Builder
		fmt.Fprintf(&b, "%s #%d\n", title, p.ReservationID)
		fmt.Fprintf(&b, "%s (%s)\n", p.ResourceName, p.ResourceKind)
		fmt.Fprintf(&b, "%s %s-%s\n", p.Date, p.StartTime, p.EndTime)
		fmt.Fprintf(&b, "Кто: %s", p.BookedBy)
		if p.Cost > 0 {
			fmt.Fprintf(&b, "\nСтоимость: %s", formatMoney(p.Cost, currency))
		}
		return b.String(), nil

	case events.EventFormSubmitted:
		var p events.FormEventPayload
		if err := event.Decode(&p); err != nil {
			return "", fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return fmt.Sprintf("Новая заявка: %s\n%s\nОт: %s\nНомер: %s", formKindTitle(p.Kind), p.Summary, p.Email, p.Reference), nil

	case events.EventDonationConfirmed:
		var p events.DonationEventPayload
		if err := event.Decode(&p); err != nil {
			return "", fmt.Errorf("decode %s: %w", event.Type, err)
		}
		donor := p.DonorName
		if donor == "" {
			donor = "anonymous"
		}
		return fmt.Sprintf("Пожертвование %s от %s\nФонд: %s\nНомер: %s", formatMoney(p.Amount, p.Currency), donor, p.Fund, p.Reference), nil
	}
	return "", nil
}

func formKindTitle(kind string) string {
	switch kind {
	case models.FormDamageReport:
		return "повреждение имущества лагеря"
	case models.FormLandAllocation:
		return "выделение земли"
	default:
		return kind
	}
}
