package contactclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mopstar/mopstar-api/internal/contact"
)

// State is a step of the form's lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// ErrorKind tells apart why a submission ended in StateError.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindClientRateExceeded ErrorKind = "client-rate-exceeded"
	KindValidationFailed   ErrorKind = "validation-failed"
	KindNetworkTimeout     ErrorKind = "network-timeout"
	KindRateLimited        ErrorKind = "rate-limited"
	KindServerError        ErrorKind = "server-error"
)

// Local pre-flight policy, matching the server default.
const (
	DefaultLocalLimit  = 5
	DefaultLocalWindow = 15 * time.Minute
)

// Submitter sends a request to the API. *Client implements it.
type Submitter interface {
	Submit(ctx context.Context, req contact.Request) (Response, error)
}

// FormConfig tunes a Form. Zero values take the defaults.
type FormConfig struct {
	LocalLimit  int
	LocalWindow time.Duration
	// FallbackContact is offered when the failure is not the user's to fix.
	FallbackContact string
	// OnStateChange, if set, is called on every transition.
	OnStateChange func(State)
}

// Form holds the fields being edited and the outcome of the last submit.
// It is not safe for concurrent use.
type Form struct {
	// Fields is the request the next Submit sends.
	Fields contact.Request

	submitter Submitter
	log       *SubmissionLog
	cfg       FormConfig
	now       func() time.Time

	state   State
	kind    ErrorKind
	message string
}

// NewForm creates an idle Form.
func NewForm(submitter Submitter, log *SubmissionLog, cfg FormConfig) *Form {
	if cfg.LocalLimit <= 0 {
		cfg.LocalLimit = DefaultLocalLimit
	}
	if cfg.LocalWindow <= 0 {
		cfg.LocalWindow = DefaultLocalWindow
	}
	if cfg.FallbackContact == "" {
		cfg.FallbackContact = "info@mopstarcleaning.com"
	}
	if log == nil {
		log = NewMemoryLog()
	}
	return &Form{
		submitter: submitter,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
		state:     StateIdle,
	}
}

func (f *Form) State() State         { return f.state }
func (f *Form) ErrorKind() ErrorKind { return f.kind }

// Message is the text to show the user for the current state.
func (f *Form) Message() string { return f.message }

// Submit runs the form through pre-flight, validation and the network call,
// leaving it in StateSuccess or StateError. On success Fields is cleared.
func (f *Form) Submit(ctx context.Context) State {
	if f.state == StateSubmitting {
		return f.state
	}

	now := f.now()
	if f.log.Recent(now, f.cfg.LocalWindow) >= f.cfg.LocalLimit {
		return f.fail(KindClientRateExceeded,
			"You have submitted too many requests. Please try again later.")
	}

	f.transition(StateValidating)
	if _, err := contact.Validate(f.Fields); err != nil {
		var verr *contact.ValidationError
		if errors.As(err, &verr) {
			return f.fail(KindValidationFailed, strings.Join(verr.Problems, ", "))
		}
		return f.fail(KindValidationFailed, err.Error())
	}

	f.transition(StateSubmitting)
	resp, err := f.submitter.Submit(ctx, f.Fields)
	switch {
	case err != nil:
		slog.Warn("contact submission failed", "error", err)
		return f.fail(KindNetworkTimeout, fmt.Sprintf(
			"The request timed out. Please check your connection and try again, or contact us at %s.",
			f.cfg.FallbackContact))
	case resp.StatusCode == http.StatusTooManyRequests:
		return f.fail(KindRateLimited, resp.Message)
	case resp.StatusCode == http.StatusBadRequest:
		return f.fail(KindValidationFailed, resp.Message)
	case resp.StatusCode != http.StatusOK || !resp.Success:
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("Something went wrong. Please try again later or contact us at %s.", f.cfg.FallbackContact)
		}
		return f.fail(KindServerError, msg)
	}

	if err := f.log.Append(now); err != nil {
		slog.Warn("failed to record submission", "error", err)
	}
	f.Fields = contact.Request{}
	f.kind = KindNone
	f.message = resp.Message
	f.transition(StateSuccess)
	return f.state
}

// Reset returns the form to idle, keeping Fields.
func (f *Form) Reset() {
	f.kind = KindNone
	f.message = ""
	f.transition(StateIdle)
}

func (f *Form) fail(kind ErrorKind, message string) State {
	f.kind = kind
	f.message = message
	f.transition(StateError)
	return f.state
}

func (f *Form) transition(s State) {
	f.state = s
	if f.cfg.OnStateChange != nil {
		f.cfg.OnStateChange(s)
	}
}
