package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"famrun/internal/models"
)

var confirmed = Notification{
	Email:           "ana@example.com",
	ParticipantName: "Ana Cruz",
	RegistrationID:  "REG-001",
	Status:          models.PaymentConfirmed,
	ReceiptNumber:   "FR-2026-ABCDEF12",
}

func TestMultiJoinsErrors(t *testing.T) {
	var calls int
	ok := Func(func(context.Context, Notification) error { calls++; return nil })
	boom := errors.New("boom")
	failing := Func(func(context.Context, Notification) error { calls++; return boom })

	err := Multi{ok, nil, failing, NewLog(zap.NewNop())}.Notify(context.Background(), confirmed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)

	assert.NoError(t, Multi{ok}.Notify(context.Background(), confirmed))
}

func TestBodyPerStatus(t *testing.T) {
	assert.Contains(t, Body(confirmed), "Receipt: FR-2026-ABCDEF12")

	rejected := confirmed
	rejected.Status = models.PaymentRejected
	rejected.Notes = "proof unreadable"
	assert.Contains(t, Body(rejected), "Reason: proof unreadable")
	assert.Contains(t, Subject(rejected), "needs attention")

	pending := confirmed
	pending.Status = models.PaymentPending
	assert.Contains(t, Body(pending), "waiting for payment verification")
}

type fakeMailSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeMailSender) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	f.sent = append(f.sent, msgs...)
	return f.err
}

func TestMailNotify(t *testing.T) {
	sender := &fakeMailSender{}
	m := &Mail{sender: sender, from: "famrun@example.org"}

	require.NoError(t, m.Notify(context.Background(), confirmed))
	require.Len(t, sender.sent, 1)

	var buf bytes.Buffer
	_, err := sender.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ana@example.com")
	assert.Contains(t, buf.String(), "FamRun payment confirmed")

	noEmail := confirmed
	noEmail.Email = ""
	require.NoError(t, m.Notify(context.Background(), noEmail))
	assert.Len(t, sender.sent, 1)

	sender.err = errors.New("smtp down")
	assert.ErrorContains(t, m.Notify(context.Background(), confirmed), "smtp down")
}

func TestNewMailValidates(t *testing.T) {
	_, err := NewMail(MailOptions{Host: "smtp.example.org"})
	assert.Error(t, err)
}

type fakeChat struct {
	sent   []tgbotapi.MessageConfig
	failOn int64
}

func (f *fakeChat) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if msg.ChatID == f.failOn {
		return tgbotapi.Message{}, errors.New("blocked")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func TestTelegramNotify(t *testing.T) {
	chat := &fakeChat{failOn: 30}
	tg := NewTelegram(chat, map[int64]bool{20: true, 10: true, 30: true, 40: false})

	err := tg.Notify(context.Background(), confirmed)
	assert.ErrorContains(t, err, "chat 30")
	require.Len(t, chat.sent, 2)
	assert.Equal(t, int64(10), chat.sent[0].ChatID)
	assert.Contains(t, chat.sent[0].Text, "receipt: FR-2026-ABCDEF12")
	assert.Nil(t, chat.sent[0].ReplyMarkup)
}

func TestStaffMessagePendingHasButtons(t *testing.T) {
	pending := confirmed
	pending.Status = models.PaymentPending
	msg := StaffMessage(1, pending)

	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, CallbackConfirm+"REG-001", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, CallbackReject+"REG-001", *kb.InlineKeyboard[0][1].CallbackData)
}
