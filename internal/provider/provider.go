// Package provider defines the interface for email delivery backends and the
// error classes every backend maps its failures onto.
package provider

import (
	"context"
	"errors"
	"net"

	"github.com/mopstar/mopstar-api/internal/email"
)

// Provider is the interface that email delivery backends must implement.
type Provider interface {
	// Verify checks connectivity and credentials without sending anything.
	Verify(ctx context.Context) error

	// Send delivers a rendered message through this provider.
	Send(ctx context.Context, msg *email.Message) error

	// Name returns the human-readable name of this provider.
	Name() string
}

var (
	// ErrMisconfigured means the provider could not be verified. Every
	// submission fails until an operator fixes the configuration.
	ErrMisconfigured = errors.New("mail service misconfigured")

	// ErrAuth means the provider rejected our credentials. Not retryable.
	ErrAuth = errors.New("mail provider authentication failed")

	// ErrTimeout means the provider did not answer in time. The caller may retry.
	ErrTimeout = errors.New("mail provider timed out")
)

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
