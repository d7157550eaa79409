// Package smtp implements a Provider that relays mail through an SMTP
// server with PLAIN authentication, over implicit TLS or STARTTLS.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	netsmtp "net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/jordan-wright/email"

	message "github.com/mopstar/mopstar-api/internal/email"
	"github.com/mopstar/mopstar-api/internal/provider"
)

const defaultTimeout = 10 * time.Second

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL selects implicit TLS (usually port 465). Otherwise STARTTLS is
	// used when the server offers it.
	SSL bool
	// Timeout bounds dialing and each session. Defaults to 10s.
	Timeout time.Duration
	// TLSConfig overrides the client TLS settings.
	TLSConfig *tls.Config
}

// Provider sends mail over SMTP.
type Provider struct {
	cfg  Config
	addr string
}

// New creates a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
		if cfg.SSL {
			cfg.Port = 465
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TLSConfig == nil {
		cfg.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return &Provider{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}, nil
}

// Verify opens a session, authenticates and quits without sending.
func (p *Provider) Verify(ctx context.Context) error {
	c, done, err := p.session(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", provider.ErrMisconfigured, err)
	}
	defer done()

	if err := c.Quit(); err != nil {
		return fmt.Errorf("%w: %w", provider.ErrMisconfigured, classify(ctx, err))
	}
	return nil
}

// Send delivers msg in a fresh session.
func (p *Provider) Send(ctx context.Context, msg *message.Message) error {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return fmt.Errorf("invalid sender address %q: %w", msg.From, err)
	}
	raw, err := render(msg)
	if err != nil {
		return err
	}

	c, done, err := p.session(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := c.Mail(from.Address); err != nil {
		return classify(ctx, err)
	}
	for _, rcpt := range msg.Recipients() {
		if err := c.Rcpt(rcpt); err != nil {
			return classify(ctx, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return classify(ctx, err)
	}
	if _, err := w.Write(raw); err != nil {
		return classify(ctx, err)
	}
	if err := w.Close(); err != nil {
		return classify(ctx, err)
	}
	// The message is accepted once DATA completes.
	_ = c.Quit()
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// session dials, upgrades to TLS where possible and authenticates. done
// closes the connection and must always be called.
func (p *Provider) session(ctx context.Context) (*netsmtp.Client, func(), error) {
	dialer := &net.Dialer{Timeout: p.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return nil, nil, classify(ctx, err)
	}

	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	if p.cfg.SSL {
		conn = tls.Client(conn, p.cfg.TLSConfig)
	}

	c, err := netsmtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		stop()
		conn.Close()
		return nil, nil, classify(ctx, err)
	}
	done := func() {
		stop()
		c.Close()
	}

	if !p.cfg.SSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(p.cfg.TLSConfig); err != nil {
				done()
				return nil, nil, classify(ctx, err)
			}
		}
	}

	if p.cfg.Username != "" {
		auth := netsmtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
		if err := c.Auth(auth); err != nil {
			done()
			return nil, nil, classify(ctx, err)
		}
	}
	return c, done, nil
}

// render builds the MIME message.
func render(msg *message.Message) ([]byte, error) {
	e := email.NewEmail()
	e.From = msg.From
	e.To = msg.Recipients()
	if msg.ReplyTo != "" {
		e.ReplyTo = []string{msg.ReplyTo}
	}
	e.Subject = msg.Subject
	e.Text = []byte(msg.TextBody)
	if msg.HTMLBody != "" {
		e.HTML = []byte(msg.HTMLBody)
	}
	raw, err := e.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return raw, nil
}

// authCodes are SMTP replies that mean the credentials were refused.
var authCodes = map[int]bool{
	530: true, // authentication required
	534: true, // mechanism too weak
	535: true, // credentials invalid
	538: true, // encryption required
}

// classify maps a session error onto the provider error classes.
func classify(ctx context.Context, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && authCodes[protoErr.Code] {
		return fmt.Errorf("%w: %w", provider.ErrAuth, err)
	}
	if provider.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", provider.ErrTimeout, err)
	}
	return fmt.Errorf("smtp: %w", err)
}
