package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mail sends participant notifications over SMTP.
type Mail struct {
	sender mailSender
	from   string
}

type MailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func NewMail(opts MailOptions) (*Mail, error) {
	if opts.Host == "" || opts.From == "" {
		return nil, fmt.Errorf("mail: host and from are required")
	}
	clientOpts := []mail.Option{
		mail.WithPort(opts.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if opts.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(opts.Username),
			mail.WithPassword(opts.Password),
		)
	}
	client, err := mail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("mail: new client: %w", err)
	}
	return &Mail{sender: client, from: opts.From}, nil
}

// Notify skips registrations without an e-mail address.
func (m *Mail) Notify(ctx context.Context, n Notification) error {
	if n.Email == "" {
		return nil
	}
	msg, err := m.message(n)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail: send to %s: %w", n.Email, err)
	}
	return nil
}

func (m *Mail) message(n Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("mail: from: %w", err)
	}
	if err := msg.To(n.Email); err != nil {
		return nil, fmt.Errorf("mail: to: %w", err)
	}
	msg.Subject(Subject(n))
	msg.SetBodyString(mail.TypeTextPlain, Body(n))
	return msg, nil
}
