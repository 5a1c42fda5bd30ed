// Package tgbot is the staff-facing Telegram bot: payment review buttons,
// status lookups, ticket scans and kit claims from a chat.
package tgbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"famrun/internal/apperr"
	"famrun/internal/config"
	"famrun/internal/kitclaim"
	"famrun/internal/models"
	"famrun/internal/notify"
	"famrun/internal/payments"
	"famrun/internal/registrations"
	"famrun/internal/sheets"
	"famrun/internal/store"
	"famrun/internal/ticket"
	"famrun/internal/util"
)

const (
	cbMenu    = "a:menu"
	cbPending = "a:pending"
	cbExport  = "a:export"
	cbSync    = "a:sync"
	cbClaim   = "k:claim:"

	pendingLimit = 20
)

type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Deps struct {
	Registrations *registrations.Service
	Payments      *payments.Service
	Claims        *kitclaim.Service
	Roster        sheets.RosterSync
	Log           *zap.Logger
}

type App struct {
	cfg  config.Config
	bot  botAPI
	deps Deps
	log  *zap.Logger

	// pending free-text input per chat, e.g. a rejection reason
	state map[int64]userState
}

type userState struct {
	Flow string
	Data map[string]string
}

// NewBotAPI connects to Telegram with the configured token.
func NewBotAPI(cfg config.Config) (*tgbotapi.BotAPI, error) {
	b, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	return b, nil
}

func New(cfg config.Config, bot botAPI, d Deps) *App {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &App{
		cfg:   cfg,
		bot:   bot,
		deps:  d,
		log:   log.Named("tgbot"),
		state: map[int64]userState{},
	}
}

func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message != nil {
				if err := a.handleMessage(ctx, upd.Message); err != nil {
					a.log.Warn("handle message", zap.Error(err))
				}
			} else if upd.CallbackQuery != nil {
				if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
					a.log.Warn("handle callback", zap.Error(err))
				}
			}
		}
	}
}

func (a *App) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := a.bot.Send(msg)
	return err
}

// isStaff accepts a configured staff chat or a configured user id.
func (a *App) isStaff(chatID, userID int64) bool {
	return a.cfg.StaffChats[chatID] || a.cfg.StaffChats[userID]
}

func actor(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}

func (a *App) fail(chatID int64, err error) error {
	return a.SendText(chatID, fmt.Sprintf("⚠️ %s: %v", apperr.CodeOf(err), err))
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil || m.Chat == nil {
		return nil
	}
	chatID := m.Chat.ID
	if !a.isStaff(chatID, m.From.ID) {
		return a.SendText(chatID, "Access denied.")
	}
	txt := strings.TrimSpace(m.Text)

	if m.IsCommand() {
		delete(a.state, chatID)
		return a.handleCommand(ctx, chatID, m.From.ID, m.Command(), strings.TrimSpace(m.CommandArguments()))
	}

	if st, ok := a.state[chatID]; ok {
		delete(a.state, chatID)
		return a.handleFlowInput(ctx, chatID, m.From.ID, txt, st)
	}

	// anything carrying the ticket separator is treated as a scanned QR payload
	if strings.Contains(txt, "|") {
		return a.showScan(ctx, chatID, txt)
	}
	return a.showMenu(chatID)
}

func (a *App) handleCommand(ctx context.Context, chatID, userID int64, cmd, args string) error {
	switch cmd {
	case "start", "help":
		return a.showMenu(chatID)
	case "status":
		if args == "" {
			return a.SendText(chatID, "Usage: /status <registration_id>")
		}
		reg, err := a.deps.Registrations.Get(ctx, args)
		if err != nil {
			return a.fail(chatID, err)
		}
		return a.showRegistration(chatID, reg)
	case "confirm":
		id, notes, _ := strings.Cut(args, " ")
		if id == "" {
			return a.SendText(chatID, "Usage: /confirm <registration_id> [notes]")
		}
		return a.transition(ctx, chatID, userID, id, models.PaymentConfirmed, notes)
	case "reject":
		id, notes, _ := strings.Cut(args, " ")
		if id == "" || strings.TrimSpace(notes) == "" {
			return a.SendText(chatID, "Usage: /reject <registration_id> <reason>")
		}
		return a.transition(ctx, chatID, userID, id, models.PaymentRejected, notes)
	case "pending":
		return a.showPending(ctx, chatID)
	case "scan":
		if args == "" {
			return a.SendText(chatID, "Usage: /scan <ticket payload>")
		}
		return a.showScan(ctx, chatID, args)
	case "claim":
		if args == "" {
			return a.SendText(chatID, "Usage: /claim <registration_id or ticket payload>")
		}
		return a.claim(ctx, chatID, userID, args)
	case "export":
		return a.sendExportLink(chatID)
	case "sync":
		return a.syncRoster(ctx, chatID)
	default:
		return a.SendText(chatID, "Unknown command. /help")
	}
}

func (a *App) handleFlowInput(ctx context.Context, chatID, userID int64, txt string, st userState) error {
	switch st.Flow {
	case "reject_reason":
		if txt == "" {
			a.state[chatID] = st
			return a.SendText(chatID, "The reason is empty. Type it again:")
		}
		return a.transition(ctx, chatID, userID, st.Data["registration_id"], models.PaymentRejected, txt)
	default:
		return a.SendText(chatID, "State reset. /help")
	}
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.From == nil {
		return nil
	}
	chatID := q.From.ID
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
	}
	data := q.Data

	// ack
	cb := tgbotapi.NewCallback(q.ID, "")
	_, _ = a.bot.Request(cb)

	if !a.isStaff(chatID, q.From.ID) {
		return a.SendText(chatID, "Access denied.")
	}

	switch {
	case strings.HasPrefix(data, notify.CallbackConfirm):
		id := strings.TrimPrefix(data, notify.CallbackConfirm)
		return a.transition(ctx, chatID, q.From.ID, id, models.PaymentConfirmed, "")
	case strings.HasPrefix(data, notify.CallbackReject):
		id := strings.TrimPrefix(data, notify.CallbackReject)
		a.state[chatID] = userState{Flow: "reject_reason", Data: map[string]string{"registration_id": id}}
		return a.SendText(chatID, "Rejecting "+id+". Type the reason:")
	case strings.HasPrefix(data, cbClaim):
		return a.claim(ctx, chatID, q.From.ID, strings.TrimPrefix(data, cbClaim))
	}

	switch data {
	case cbMenu:
		return a.showMenu(chatID)
	case cbPending:
		return a.showPending(ctx, chatID)
	case cbExport:
		return a.sendExportLink(chatID)
	case cbSync:
		return a.syncRoster(ctx, chatID)
	}
	return nil
}

// ---------- Actions ----------

func (a *App) transition(ctx context.Context, chatID, userID int64, id string, status models.PaymentStatus, notes string) error {
	res, err := a.deps.Payments.Transition(ctx, strings.TrimSpace(id), string(status), strings.TrimSpace(notes), actor(userID))
	if err != nil {
		return a.fail(chatID, err)
	}
	reg := res.Registration
	var b strings.Builder
	if res.NoOp {
		fmt.Fprintf(&b, "ℹ️ %s is already %s.", reg.RegistrationID, reg.PaymentStatus)
	} else {
		fmt.Fprintf(&b, "✅ %s: %s → %s", reg.RegistrationID, res.History.PreviousStatus, reg.PaymentStatus)
	}
	if res.Receipt != nil {
		fmt.Fprintf(&b, "\nreceipt: %s", res.Receipt.ReceiptNumber)
	}
	if res.ReceiptErr != nil {
		fmt.Fprintf(&b, "\n⚠️ %v", res.ReceiptErr)
	}
	if res.NotifyErr != nil {
		fmt.Fprintf(&b, "\n⚠️ %v", res.NotifyErr)
	}
	return a.SendText(chatID, b.String())
}

func (a *App) claim(ctx context.Context, chatID, userID int64, arg string) error {
	var (
		reg models.Registration
		err error
	)
	if strings.Contains(arg, "|") {
		reg, err = a.deps.Claims.Claim(ctx, arg, kitclaim.ClaimInput{}, actor(userID))
	} else {
		reg, err = a.deps.Claims.ClaimByID(ctx, arg, kitclaim.ClaimInput{}, actor(userID))
	}
	if err != nil {
		return a.fail(chatID, err)
	}
	return a.SendText(chatID, fmt.Sprintf("🎽 Kit handed to %s (%s, shirt %s).", reg.ActualClaimer, reg.RegistrationID, reg.ShirtSize))
}

func (a *App) sendExportLink(chatID int64) error {
	url := a.cfg.PublicURL("/export/registrations.csv?token=" + util.ExportToken(a.cfg.SessionSecret))
	return a.SendText(chatID, "📤 CSV export (link): "+url)
}

func (a *App) syncRoster(ctx context.Context, chatID int64) error {
	if a.deps.Roster == nil {
		return a.SendText(chatID, "Roster sync is not configured.")
	}
	regs, err := a.deps.Registrations.List(ctx, store.RegistrationFilter{})
	if err != nil {
		return a.fail(chatID, err)
	}
	if err := a.deps.Roster.SyncRegistrations(ctx, regs); err != nil {
		return a.fail(chatID, err)
	}
	return a.SendText(chatID, fmt.Sprintf("🔄 Roster synced: %d registrations.", len(regs)))
}

// ---------- Screens / Menus ----------

func (a *App) showMenu(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🏃 FamRun staff\n\n/status <id>\n/confirm <id> [notes]\n/reject <id> <reason>\n/scan <payload>\n/claim <id or payload>\n/pending\n/export\n/sync")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🕓 Pending payments", cbPending),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📤 CSV", cbExport),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Sync roster", cbSync),
		),
	)
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) showRegistration(chatID int64, reg models.Registration) error {
	msg := tgbotapi.NewMessage(chatID, describe(reg))
	switch {
	case reg.PaymentStatus != models.PaymentConfirmed:
		msg.ReplyMarkup = notify.PaymentKeyboard(reg.RegistrationID)
	case !reg.KitClaimed:
		msg.ReplyMarkup = claimKeyboard(reg.RegistrationID)
	}
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) showPending(ctx context.Context, chatID int64) error {
	regs, err := a.deps.Registrations.List(ctx, store.RegistrationFilter{
		PaymentStatus: models.PaymentPending,
		Limit:         pendingLimit,
	})
	if err != nil {
		return a.fail(chatID, err)
	}
	if len(regs) == 0 {
		return a.SendText(chatID, "No pending payments.")
	}
	for _, reg := range regs {
		if err := a.showRegistration(chatID, reg); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) showScan(ctx context.Context, chatID int64, payload string) error {
	res, err := a.deps.Registrations.Lookup(ctx, payload)
	if err != nil {
		return a.fail(chatID, err)
	}
	if !res.Consistent() {
		return a.SendText(chatID, fmt.Sprintf("⚠️ Ticket does not match %s: %s\n\n%s",
			res.Registration.RegistrationID, strings.Join(res.Mismatches, ", "), describe(res.Registration)))
	}
	return a.showRegistration(chatID, res.Registration)
}

func describe(reg models.Registration) string {
	claimed := "no"
	if reg.KitClaimed {
		claimed = "yes"
		if reg.ActualClaimer != "" {
			claimed += ", by " + reg.ActualClaimer
		}
	}
	return fmt.Sprintf("🎫 %s\n%s\n%s · %s · shirt %s\npayment: %s\nkit claimed: %s",
		reg.RegistrationID, reg.ParticipantName(), reg.Category, ticket.FormatPrice(reg.Price), reg.ShirtSize,
		reg.PaymentStatus, claimed)
}

func claimKeyboard(registrationID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎽 Hand out kit", cbClaim+registrationID),
		),
	)
}
