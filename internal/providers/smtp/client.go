package smtp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"campaignd/internal/domain"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

type Client struct {
	mc *mail.Client
}

func New(cfg Config) (*Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	mc, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Client{mc: mc}, nil
}

// Send returns the generated Message-ID as the provider message id.
func (c *Client) Send(ctx context.Context, msg domain.Message) (string, error) {
	m, err := buildMsg(msg)
	if err != nil {
		return "", err
	}
	if err := c.mc.DialAndSendWithContext(ctx, m); err != nil {
		return "", classify(err)
	}
	return strings.Trim(m.GetMessageID(), "<>"), nil
}

func buildMsg(msg domain.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(msg.From.Name, msg.From.Address); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAddress, err)
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetGenHeader(mail.Header("X-Campaign-Id"), msg.CampaignID)
	m.SetGenHeader(mail.Header("X-Tracking-Id"), msg.TrackingID)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}

// TempError is a 4xx SMTP reply or a dial failure.
type TempError struct{ Err error }

func (e *TempError) Error() string   { return "smtp: " + e.Err.Error() }
func (e *TempError) Unwrap() error   { return e.Err }
func (e *TempError) Temporary() bool { return true }

func classify(err error) error {
	var se *mail.SendError
	if errors.As(err, &se) && se.IsTemp() {
		return &TempError{Err: err}
	}
	return fmt.Errorf("smtp: %w", err)
}
