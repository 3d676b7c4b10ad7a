package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

const receiptSubject = "Payment Receipt Confirmation"

type Mailer struct {
	client *mail.Client
	from   string
}

type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

func NewMailer(cfg MailerConfig) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}

	return &Mailer{client: client, from: cfg.From}, nil
}

func (m *Mailer) SendReceipt(ctx context.Context, r Receipt) error {
	msg, err := buildReceiptMessage(m.from, r)
	if err != nil {
		return err
	}

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending receipt %s: %w", r.ReceiptID, err)
	}

	return nil
}

func buildReceiptMessage(from string, r Receipt) (*mail.Msg, error) {
	text, html, err := renderReceipt(r)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("setting sender: %w", err)
	}

	if err := msg.To(r.To); err != nil {
		return nil, fmt.Errorf("setting recipient: %w", err)
	}

	msg.Subject(receiptSubject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	return msg, nil
}
