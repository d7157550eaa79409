// Package mailer turns accepted contact submissions into operator emails and
// hands them to the configured delivery provider.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/mopstar/mopstar-api/internal/contact"
	"github.com/mopstar/mopstar-api/internal/email"
	"github.com/mopstar/mopstar-api/internal/logging"
	"github.com/mopstar/mopstar-api/internal/metrics"
	"github.com/mopstar/mopstar-api/internal/provider"
)

// Config holds the fixed identities used for every outbound message.
type Config struct {
	// BusinessName is shown as the sender display name and in the body.
	BusinessName string
	// Sender is the From address.
	Sender string
	// Recipient is the operator mailbox. It is the only address mail is sent to.
	Recipient string
	// Location formats the submission time. Defaults to UTC.
	Location *time.Location
}

// Dispatcher verifies the provider, renders a message and sends it.
type Dispatcher struct {
	provider provider.Provider
	cfg      Config
}

// New creates a Dispatcher for p.
func New(p provider.Provider, cfg Config) (*Dispatcher, error) {
	if cfg.Recipient == "" {
		return nil, errors.New("mailer: recipient address is required")
	}
	if cfg.Sender == "" {
		return nil, errors.New("mailer: sender address is required")
	}
	if cfg.BusinessName == "" {
		cfg.BusinessName = "Mopstar Cleaning"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Dispatcher{provider: p, cfg: cfg}, nil
}

// Provider returns the name of the underlying provider.
func (d *Dispatcher) Provider() string {
	return d.provider.Name()
}

// Dispatch delivers sub to the operator recipient.
//
// The provider is verified before anything is rendered; a failed check
// returns an error wrapping provider.ErrMisconfigured and nothing is sent.
// Send failures are wrapped with provider.ErrAuth or provider.ErrTimeout
// when they can be classified, and returned as-is otherwise. Nothing is
// retried here.
func (d *Dispatcher) Dispatch(ctx context.Context, sub contact.Submission) error {
	logger := logging.FromContext(ctx)

	if err := d.provider.Verify(ctx); err != nil {
		logger.Error("mail service misconfigured",
			"provider", d.provider.Name(),
			"error", err,
		)
		if errors.Is(err, provider.ErrMisconfigured) {
			return err
		}
		return fmt.Errorf("%w: %v", provider.ErrMisconfigured, err)
	}

	msg, err := BuildMessage(d.cfg, sub)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	start := time.Now()
	err = d.provider.Send(ctx, msg)
	metrics.ObserveMailSend(d.provider.Name(), classify(err), time.Since(start))

	switch {
	case err == nil:
		logger.Info("contact email sent",
			"provider", d.provider.Name(),
			"reply_to", logging.RedactEmail(sub.Email),
		)
		return nil
	case errors.Is(err, provider.ErrAuth):
		logger.Error("mail provider rejected credentials",
			"provider", d.provider.Name(),
			"error", err,
		)
		return err
	case provider.IsTimeout(err):
		logger.Warn("mail provider timed out",
			"provider", d.provider.Name(),
			"error", err,
		)
		if errors.Is(err, provider.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %v", provider.ErrTimeout, err)
	default:
		logger.Error("mail provider error",
			"provider", d.provider.Name(),
			"error", err,
		)
		return fmt.Errorf("send failed: %w", err)
	}
}

// BuildMessage renders the operator email for sub.
func BuildMessage(cfg Config, sub contact.Submission) (*email.Message, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	received := sub.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}

	topic := sub.Service
	if topic == "" || topic == contact.DefaultService {
		topic = "Contact"
	}

	data := bodyData{
		Business:  cfg.BusinessName,
		Topic:     topic,
		Name:      sub.Name,
		Email:     sub.Email,
		Service:   sub.Service,
		Submitted: received.In(loc).Format("Jan 2, 2006 3:04 PM MST"),
		Message:   sub.Message,
	}

	var html, text bytes.Buffer
	if err := htmlBody.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}
	if err := textBody.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}

	from := (&mail.Address{Name: cfg.BusinessName, Address: cfg.Sender}).String()

	return &email.Message{
		From:     from,
		To:       cfg.Recipient,
		ReplyTo:  sub.Email,
		Subject:  fmt.Sprintf("New %s Form Submission from %s", topic, sub.Name),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, provider.ErrAuth):
		return "auth"
	case provider.IsTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}
