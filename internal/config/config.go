package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DBPath        string `env:"FAMRUN_DB_PATH" envDefault:"famrun.db"`
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	BasePublicURL string `env:"BASE_PUBLIC_URL"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"12h"`

	TicketPrefix  string `env:"TICKET_PREFIX" envDefault:"FAMRUN"`
	ReceiptPrefix string `env:"RECEIPT_PREFIX" envDefault:"FR"`

	PaymentProvider      string `env:"PAYMENT_PROVIDER" envDefault:"stub"`
	PaymentWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET" envDefault:"change-me"`

	// PaymentStubAllowUnsigned lets the stub checkout page post without a signature.
	PaymentStubAllowUnsigned bool `env:"PAYMENT_STUB_ALLOW_UNSIGNED"`

	TelegramToken        string         `env:"TELEGRAM_BOT_TOKEN"`
	TelegramStaffChatIDs string         `env:"TELEGRAM_STAFF_CHAT_IDS"`
	StaffChats           map[int64]bool `env:"-"`

	SpreadsheetID            string `env:"GOOGLE_SHEETS_SPREADSHEET_ID"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`

	RedisURL      string `env:"REDIS_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       string `env:"REDIS_DB"`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`
}

// FromEnv reads configuration from the process environment. Optional
// integrations stay disabled when their variables are empty.
func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}

	c.BasePublicURL = strings.TrimRight(strings.TrimSpace(c.BasePublicURL), "/")
	c.PaymentProvider = strings.ToLower(strings.TrimSpace(c.PaymentProvider))
	c.StaffChats = parseChatIDs(c.TelegramStaffChatIDs)

	if strings.TrimSpace(c.SessionSecret) == "" {
		return c, fmt.Errorf("SESSION_SECRET is empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return c, fmt.Errorf("FAMRUN_DB_PATH is empty")
	}
	if (c.SpreadsheetID == "") != (c.GoogleServiceAccountJSON == "") {
		return c, fmt.Errorf("GOOGLE_SHEETS_SPREADSHEET_ID and GOOGLE_SERVICE_ACCOUNT_JSON must be set together")
	}
	if c.PaymentStubAllowUnsigned && c.PaymentProvider != "stub" {
		return c, fmt.Errorf("PAYMENT_STUB_ALLOW_UNSIGNED only applies to the stub provider")
	}
	if c.SMTPHost != "" && c.MailFrom == "" {
		return c, fmt.Errorf("MAIL_FROM is required when SMTP_HOST is set")
	}
	return c, nil
}

func (c Config) TelegramEnabled() bool { return c.TelegramToken != "" }
func (c Config) SheetsEnabled() bool   { return c.SpreadsheetID != "" }
func (c Config) MailEnabled() bool     { return c.SMTPHost != "" }
func (c Config) RedisEnabled() bool    { return c.RedisURL != "" }

// PublicURL joins path onto BASE_PUBLIC_URL, falling back to the local listener.
func (c Config) PublicURL(path string) string {
	base := c.BasePublicURL
	if base == "" {
		base = "http://localhost" + c.HTTPAddr
	}
	return base + path
}

func parseChatIDs(raw string) map[int64]bool {
	m := map[int64]bool{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m
	}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}
