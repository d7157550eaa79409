package contact

import (
	"context"
	"errors"
	"time"

	"github.com/mopstar/mopstar-api/internal/logging"
	"github.com/mopstar/mopstar-api/internal/metrics"
	"github.com/mopstar/mopstar-api/internal/provider"
	"github.com/mopstar/mopstar-api/internal/ratelimit"
)

// Dispatcher delivers an accepted submission to the operator.
type Dispatcher interface {
	Dispatch(ctx context.Context, sub Submission) error
}

// Limiter admits or rejects submissions per origin.
type Limiter interface {
	Allow(ctx context.Context, origin string, now time.Time) ratelimit.Decision
	Release(ctx context.Context, origin, token string) error
	Window() time.Duration
	Limit() int
}

// ServiceConfig tunes the submission pipeline.
type ServiceConfig struct {
	// SendAttempts bounds delivery attempts when the provider times out.
	SendAttempts int
	// RetryDelay is the wait before the second attempt; it doubles after that.
	RetryDelay time.Duration
	// DispatchTimeout bounds the whole dispatch stage, independent of the client.
	DispatchTimeout time.Duration
}

const (
	defaultSendAttempts    = 2
	defaultRetryDelay      = 500 * time.Millisecond
	defaultDispatchTimeout = 30 * time.Second

	// releaseTimeout bounds returning a slot after a failed dispatch.
	releaseTimeout = 5 * time.Second
)

// Result describes an accepted submission.
type Result struct {
	Submission Submission
	Attempts   int
	Decision   ratelimit.Decision
}

// Service runs a submission through rate limiting, validation and dispatch.
type Service struct {
	limiter    Limiter
	dispatcher Dispatcher
	cfg        ServiceConfig
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

// NewService creates a Service.
func NewService(limiter Limiter, dispatcher Dispatcher, cfg ServiceConfig) *Service {
	if cfg.SendAttempts <= 0 {
		cfg.SendAttempts = defaultSendAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = defaultDispatchTimeout
	}
	return &Service{
		limiter:    limiter,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
		sleep:      sleepWithContext,
	}
}

// Submit processes one submission from origin.
//
// Rate-limit rejections return *RateLimitError and validation failures
// *ValidationError; neither reaches the dispatcher. Dispatch errors are
// returned wrapped as produced by the Dispatcher. A misconfigured mail
// service gives the origin its slot back.
//
// Dispatch runs on a context detached from ctx's cancellation, so a client
// that hangs up does not abort a send already in flight.
func (s *Service) Submit(ctx context.Context, origin string, req Request) (Result, error) {
	logger := logging.FromContext(ctx)
	now := s.now()

	decision := s.limiter.Allow(ctx, origin, now)
	if !decision.Allowed {
		metrics.IncContactSubmission("rate_limited")
		logger.Warn("contact submission rate limited",
			"origin", origin,
			"retry_after", decision.RetryAfter,
		)
		return Result{Decision: decision}, &RateLimitError{
			Limit:      s.limiter.Limit(),
			Window:     s.limiter.Window(),
			RetryAfter: decision.RetryAfter,
		}
	}

	sub, err := Validate(req)
	if err != nil {
		metrics.IncContactSubmission("invalid")
		logger.Info("contact submission rejected", "problems", err.Error())
		return Result{Decision: decision}, err
	}
	sub.ReceivedAt = now

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DispatchTimeout)
	defer cancel()

	attempts, err := s.dispatch(dctx, sub)
	result := Result{Submission: sub, Attempts: attempts, Decision: decision}

	switch {
	case err == nil:
		metrics.IncContactSubmission("sent")
		return result, nil
	case errors.Is(err, provider.ErrMisconfigured):
		metrics.IncContactSubmission("misconfigured")
		// dctx may have expired with the dispatch; release on its own deadline.
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		if relErr := s.limiter.Release(rctx, origin, decision.Token); relErr != nil {
			logger.Warn("failed to release rate limit slot", "origin", origin, "error", relErr)
		}
		rcancel()
	case errors.Is(err, provider.ErrAuth):
		metrics.IncContactSubmission("auth_failed")
	case provider.IsTimeout(err):
		metrics.IncContactSubmission("timeout")
	default:
		metrics.IncContactSubmission("failed")
	}
	return result, err
}

// dispatch sends sub, retrying only on provider timeouts.
func (s *Service) dispatch(ctx context.Context, sub Submission) (int, error) {
	var err error
	for attempt := 1; attempt <= s.cfg.SendAttempts; attempt++ {
		if attempt > 1 {
			logging.FromContext(ctx).Info("retrying contact email after timeout",
				"attempt", attempt,
				"max_attempts", s.cfg.SendAttempts,
			)
			if serr := s.sleep(ctx, backoffDelay(s.cfg.RetryDelay, attempt-1)); serr != nil {
				return attempt - 1, err
			}
		}

		err = s.dispatcher.Dispatch(ctx, sub)
		if err == nil || !provider.IsTimeout(err) {
			return attempt, err
		}
	}
	return s.cfg.SendAttempts, err
}

// backoffDelay returns base doubled for each retry after the first.
func backoffDelay(base time.Duration, retry int) time.Duration {
	delay := base
	for i := 1; i < retry; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
