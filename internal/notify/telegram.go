package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"famrun/internal/models"
)

// Callback data prefixes for the inline payment buttons. The staff bot
// dispatches on them.
const (
	CallbackConfirm = "pay:confirm:"
	CallbackReject  = "pay:reject:"
)

type chatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts a digest of every status change to the staff chats.
type Telegram struct {
	bot   chatSender
	chats []int64
}

func NewTelegram(bot chatSender, chats map[int64]bool) *Telegram {
	ids := make([]int64, 0, len(chats))
	for id, ok := range chats {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &Telegram{bot: bot, chats: ids}
}

func (t *Telegram) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, chatID := range t.chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(StaffMessage(chatID, n)); err != nil {
			errs = append(errs, fmt.Errorf("telegram: chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// StaffMessage builds the chat message for n. Pending payments carry
// Confirm and Reject buttons.
func StaffMessage(chatID int64, n Notification) tgbotapi.MessageConfig {
	text := fmt.Sprintf("%s %s\n%s\npayment: %s", statusIcon(n.Status), n.RegistrationID, n.ParticipantName, n.Status)
	if n.Notes != "" {
		text += "\nnotes: " + n.Notes
	}
	if n.ReceiptNumber != "" {
		text += "\nreceipt: " + n.ReceiptNumber
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if n.Status == models.PaymentPending {
		msg.ReplyMarkup = PaymentKeyboard(n.RegistrationID)
	}
	return msg
}

func PaymentKeyboard(registrationID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", CallbackConfirm+registrationID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", CallbackReject+registrationID),
		),
	)
}

func statusIcon(s models.PaymentStatus) string {
	switch s {
	case models.PaymentConfirmed:
		return "✅"
	case models.PaymentRejected:
		return "❌"
	default:
		return "🕓"
	}
}
