package main

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"famrun/internal/config"
	"famrun/internal/kitclaim"
	"famrun/internal/lock"
	"famrun/internal/notify"
	"famrun/internal/payments"
	"famrun/internal/registrations"
	"famrun/internal/server"
	"famrun/internal/session"
	"famrun/internal/sheets"
	"famrun/internal/store/sqlite"
	"famrun/internal/tgbot"
	"famrun/internal/ticket"
)

type app struct {
	deps   server.Deps
	store  *sqlite.Store
	bot    *tgbot.App
	botAPI *tgbotapi.BotAPI
	sheets *sheets.Client

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func openStore(ctx context.Context, cfg config.Config) (*sqlite.Store, error) {
	st, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return st, nil
}

func openSheets(ctx context.Context, cfg config.Config) (*sheets.Client, error) {
	if !cfg.SheetsEnabled() {
		return nil, nil
	}
	c, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("sheets: %w", err)
	}
	return c, nil
}

func newLocker(ctx context.Context, cfg config.Config, log *zap.Logger) (lock.Locker, func() error, error) {
	if !cfg.RedisEnabled() {
		return lock.NewLocal(), func() error { return nil }, nil
	}
	r, err := lock.NewRedis(lock.RedisOptions{Addr: cfg.RedisURL, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("registration locks shared through redis")
	return r, r.Close, nil
}

// build wires every component the serve command needs. Optional integrations
// are left out when their configuration is empty.
func build(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLocker)

	tokens, err := session.NewTokens(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	provider, err := payments.NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}

	notifiers := notify.Multi{notify.NewLog(log.Named("notify"))}
	if cfg.MailEnabled() {
		m, err := notify.NewMail(notify.MailOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, m)
	}
	if cfg.TelegramEnabled() {
		api, err := tgbot.NewBotAPI(cfg)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.botAPI = api
		notifiers = append(notifiers, notify.NewTelegram(api, cfg.StaffChats))
	}

	sh, err := openSheets(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.sheets = sh
	var (
		claimLog kitclaim.ClaimLog
		roster   sheets.RosterSync
	)
	if sh != nil {
		claimLog = sh
		roster = sh
	}

	regs := registrations.NewService(st, ticket.NewCodec(cfg.TicketPrefix), log.Named("registrations"))
	issuer := payments.NewIssuer(st, cfg.ReceiptPrefix, cfg.PublicURL(""), log.Named("receipts"))
	pay := payments.NewService(st, issuer, log.Named("payments"),
		payments.WithNotifier(notifiers),
		payments.WithLocker(locker),
	)
	claims := kitclaim.NewService(regs, st, locker, claimLog, log.Named("kitclaim"))

	a.deps = server.Deps{
		Config:        cfg,
		Log:           log.Named("http"),
		Registrations: regs,
		Payments:      pay,
		Claims:        claims,
		Reference:     st,
		Tokens:        tokens,
		Provider:      provider,
		Notifier:      notifiers,
		Roster:        roster,
	}

	if a.botAPI != nil {
		a.bot = tgbot.New(cfg, a.botAPI, tgbot.Deps{
			Registrations: regs,
			Payments:      pay,
			Claims:        claims,
			Roster:        roster,
			Log:           log,
		})
	}

	ok = true
	return a, nil
}
