package contact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mopstar/mopstar-api/internal/provider"
	"github.com/mopstar/mopstar-api/internal/ratelimit"
)

// mockDispatcher records submissions and returns scripted errors.
type mockDispatcher struct {
	mu    sync.Mutex
	errs  []error
	calls []Submission
}

func (m *mockDispatcher) Dispatch(_ context.Context, sub Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sub)
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var validRequest = Request{
	Name:    "Jane Doe",
	Email:   "jane@example.com",
	Message: "Please quote an office clean for 200m2.",
	Service: "office",
}

func newTestService(d Dispatcher) (*Service, *time.Time) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(
		ratelimit.New(ratelimit.NewMemoryStore(), 15*time.Minute, 5),
		d,
		ServiceConfig{SendAttempts: 2, RetryDelay: time.Millisecond},
	)
	svc.now = func() time.Time { return now }
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc, &now
}

func TestSubmit_Success(t *testing.T) {
	t.Parallel()

	d := &mockDispatcher{}
	svc, now := newTestService(d)

	res, err := svc.Submit(context.Background(), "203.0.113.7", validRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.count() != 1 {
		t.Fatalf("dispatch calls: got %d, want 1", d.count())
	}
	sub := d.calls[0]
	if sub.Name != "Jane Doe" || sub.Email != "jane@example.com" || sub.Service != "office" ||
		sub.Message != "Please quote an office clean for 200m2." {
		t.Errorf("unexpected submission: %+v", sub)
	}
	if !sub.ReceivedAt.Equal(*now) {
		t.Errorf("ReceivedAt: got %s, want %s", sub.ReceivedAt, *now)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts: got %d, want 1", res.Attempts)
	}
	if res.Decision.Remaining != 4 {
		t.Errorf("Remaining: got %d, want 4", res.Decision.Remaining)
	}
}

func TestSubmit_ValidationNeverDispatches(t *testing.T) {
	t.Parallel()

	d := &mockDispatcher{}
	svc, _ := newTestService(d)

	_, err := svc.Submit(context.Background(), "203.0.113.7", Request{Name: "J", Email: "bad", Message: "short"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if d.count() != 0 {
		t.Errorf("dispatcher should not be called, got %d calls", d.count())
	}
}

func TestSubmit_RateLimitSixth(t *testing.T) {
	t.Parallel()

	d := &mockDispatcher{}
	svc, _ := newTestService(d)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Submit(ctx, "203.0.113.7", validRequest); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
	}

	_, err := svc.Submit(ctx, "203.0.113.7", validRequest)
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rlErr.Limit != 5 || rlErr.Window != 15*time.Minute {
		t.Errorf("unexpected policy in error: %+v", rlErr)
	}
	if d.count() != 5 {
		t.Errorf("dispatch calls: got %d, want 5", d.count())
	}

	if _, err := svc.Submit(ctx, "198.51.100.2", validRequest); err != nil {
		t.Errorf("different origin should be accepted, got %v", err)
	}
}

func TestSubmit_InvalidInputStillCountsAgainstLimit(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(&mockDispatcher{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Submit(ctx, "a", Request{})
	}
	_, err := svc.Submit(ctx, "a", validRequest)
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected rate limit after five attempts, got %v", err)
	}
}

func TestSubmit_MisconfiguredReleasesSlot(t *testing.T) {
	t.Parallel()

	misconfigured := fmt.Errorf("%w: dial tcp: connection refused", provider.ErrMisconfigured)
	d := &mockDispatcher{errs: []error{
		misconfigured, misconfigured, misconfigured, misconfigured, misconfigured, misconfigured,
	}}
	svc, _ := newTestService(d)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := svc.Submit(ctx, "a", validRequest)
		if !errors.Is(err, provider.ErrMisconfigured) {
			t.Fatalf("attempt %d: expected ErrMisconfigured, got %v", i+1, err)
		}
	}

	// Six misconfigured attempts did not use up the allowance.
	if _, err := svc.Submit(ctx, "a", validRequest); err != nil {
		t.Fatalf("expected success once the provider recovers, got %v", err)
	}
}

func TestSubmit_AuthFailureNotRetried(t *testing.T) {
	t.Parallel()

	d := &mockDispatcher{errs: []error{fmt.Errorf("%w: 535 bad credentials", provider.ErrAuth)}}
	svc, _ := newTestService(d)

	res, err := svc.Submit(context.Background(), "a", validRequest)
	if !errors.Is(err, provider.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if d.count() != 1 || res.Attempts != 1 {
		t.Errorf("auth failures must not be retried: calls=%d attempts=%d", d.count(), res.Attempts)
	}
}

func TestSubmit_TimeoutRetriedOnce(t *testing.T) {
	t.Parallel()

	d := &mockDispatcher{errs: []error{provider.ErrTimeout}}
	svc, _ := newTestService(d)

	res, err := svc.Submit(context.Background(), "a", validRequest)
	if err != nil {
		t.Fatalf("expected success on retry, got %v", err)
	}
	if res.Attempts != 2 || d.count() != 2 {
		t.Errorf("attempts: got %d (calls %d), want 2", res.Attempts, d.count())
	}
}

func TestSubmit_TimeoutRetriesBounded(t *testing.T) {
	t.Parallel()

	d := &mockDispatcher{errs: []error{provider.ErrTimeout, provider.ErrTimeout, provider.ErrTimeout}}
	svc, _ := newTestService(d)

	_, err := svc.Submit(context.Background(), "a", validRequest)
	if !errors.Is(err, provider.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if d.count() != 2 {
		t.Errorf("dispatch calls: got %d, want 2", d.count())
	}
}

func TestSubmit_GenericErrorNotRetried(t *testing.T) {
	t.Parallel()

	d := &mockDispatcher{errs: []error{errors.New("550 mailbox unavailable")}}
	svc, _ := newTestService(d)

	if _, err := svc.Submit(context.Background(), "a", validRequest); err == nil {
		t.Fatal("expected error")
	}
	if d.count() != 1 {
		t.Errorf("dispatch calls: got %d, want 1", d.count())
	}
}

func TestSubmit_NotIdempotent(t *testing.T) {
	t.Parallel()

	d := &mockDispatcher{}
	svc, _ := newTestService(d)

	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(context.Background(), "a", validRequest); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
	}
	if d.count() != 2 {
		t.Errorf("identical payloads should produce two dispatches, got %d", d.count())
	}
}

// cancelAwareDispatcher fails if it observes a cancelled context.
type cancelAwareDispatcher struct{ sawCancel bool }

func (c *cancelAwareDispatcher) Dispatch(ctx context.Context, _ Submission) error {
	if ctx.Err() != nil {
		c.sawCancel = true
		return ctx.Err()
	}
	return nil
}

func TestSubmit_ClientCancellationDoesNotAbortDispatch(t *testing.T) {
	t.Parallel()

	d := &cancelAwareDispatcher{}
	svc, _ := newTestService(d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Submit(ctx, "a", validRequest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.sawCancel {
		t.Error("dispatch context should be detached from the client context")
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	base := 500 * time.Millisecond
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	for i, w := range want {
		if got := backoffDelay(base, i+1); got != w {
			t.Errorf("backoffDelay(%d): got %s, want %s", i+1, got, w)
		}
	}
}

// releaseRecorder wraps a Limiter and records the context state on Release.
type releaseRecorder struct {
	*ratelimit.Limiter
	releaseCtxErr error
	released      int
}

func (r *releaseRecorder) Release(ctx context.Context, origin, token string) error {
	r.released++
	r.releaseCtxErr = ctx.Err()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return r.Limiter.Release(ctx, origin, token)
}

// hangingDispatcher blocks until its context expires, then reports a
// misconfigured provider.
type hangingDispatcher struct{}

func (hangingDispatcher) Dispatch(ctx context.Context, _ Submission) error {
	<-ctx.Done()
	return fmt.Errorf("%w: verify: %w", provider.ErrMisconfigured, ctx.Err())
}

func TestSubmit_ReleaseSurvivesExpiredDispatch(t *testing.T) {
	t.Parallel()

	limiter := &releaseRecorder{Limiter: ratelimit.New(ratelimit.NewMemoryStore(), 15*time.Minute, 1)}
	svc := NewService(limiter, hangingDispatcher{}, ServiceConfig{
		SendAttempts:    1,
		DispatchTimeout: 10 * time.Millisecond,
	})

	_, err := svc.Submit(context.Background(), "a", validRequest)
	if !errors.Is(err, provider.ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
	if limiter.released != 1 {
		t.Fatalf("Release calls: got %d, want 1", limiter.released)
	}
	if limiter.releaseCtxErr != nil {
		t.Errorf("release ran on an expired context: %v", limiter.releaseCtxErr)
	}

	// The single slot was returned, so the origin is admitted again.
	d := limiter.Allow(context.Background(), "a", time.Now())
	if !d.Allowed {
		t.Error("slot should have been released")
	}
}
