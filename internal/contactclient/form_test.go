package contactclient

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mopstar/mopstar-api/internal/contact"
)

type fakeSubmitter struct {
	resp  Response
	err   error
	calls int
}

func (f *fakeSubmitter) Submit(context.Context, contact.Request) (Response, error) {
	f.calls++
	return f.resp, f.err
}

var okResponse = Response{
	StatusCode: http.StatusOK,
	Success:    true,
	Message:    "Thank you for contacting us! We will get back to you shortly.",
}

func newTestForm(s Submitter, log *SubmissionLog, states *[]State) (*Form, *time.Time) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg := FormConfig{}
	if states != nil {
		cfg.OnStateChange = func(st State) { *states = append(*states, st) }
	}
	f := NewForm(s, log, cfg)
	f.now = func() time.Time { return now }
	return f, &now
}

func TestForm_Success(t *testing.T) {
	t.Parallel()

	s := &fakeSubmitter{resp: okResponse}
	log := NewMemoryLog()
	var states []State
	f, now := newTestForm(s, log, &states)
	f.Fields = validRequest

	if got := f.Submit(context.Background()); got != StateSuccess {
		t.Fatalf("state: got %s (%s: %s)", got, f.ErrorKind(), f.Message())
	}

	want := []State{StateValidating, StateSubmitting, StateSuccess}
	if !slices.Equal(states, want) {
		t.Errorf("transitions: got %v, want %v", states, want)
	}
	if f.Fields != (contact.Request{}) {
		t.Errorf("fields should be cleared, got %+v", f.Fields)
	}
	if f.Message() != okResponse.Message {
		t.Errorf("message: got %q", f.Message())
	}
	if n := log.Recent(*now, DefaultLocalWindow); n != 1 {
		t.Errorf("log entries: got %d, want 1", n)
	}
}

func TestForm_ClientRateExceeded(t *testing.T) {
	t.Parallel()

	s := &fakeSubmitter{resp: okResponse}
	log := NewMemoryLog()
	var states []State
	f, now := newTestForm(s, log, &states)

	for i := 0; i < DefaultLocalLimit; i++ {
		log.Append(now.Add(-time.Duration(i) * time.Minute))
	}
	f.Fields = validRequest

	if got := f.Submit(context.Background()); got != StateError {
		t.Fatalf("state: got %s", got)
	}
	if f.ErrorKind() != KindClientRateExceeded {
		t.Errorf("kind: got %s", f.ErrorKind())
	}
	if s.calls != 0 {
		t.Errorf("no network call expected, got %d", s.calls)
	}
	if !slices.Equal(states, []State{StateError}) {
		t.Errorf("pre-flight should skip validation, got %v", states)
	}

	// Once the oldest entry leaves the window the form submits again.
	*now = now.Add(DefaultLocalWindow - 4*time.Minute + time.Second)
	f.Reset()
	if got := f.Submit(context.Background()); got != StateSuccess {
		t.Errorf("expected success after the window moved, got %s (%s)", got, f.ErrorKind())
	}
}

func TestForm_ValidationFailedSkipsNetwork(t *testing.T) {
	t.Parallel()

	s := &fakeSubmitter{resp: okResponse}
	f, _ := newTestForm(s, nil, nil)
	f.Fields = contact.Request{Name: "J", Email: "bad", Message: "short"}

	if got := f.Submit(context.Background()); got != StateError {
		t.Fatalf("state: got %s", got)
	}
	if f.ErrorKind() != KindValidationFailed {
		t.Errorf("kind: got %s", f.ErrorKind())
	}
	if s.calls != 0 {
		t.Errorf("no network call expected, got %d", s.calls)
	}
	if f.Fields.Name != "J" {
		t.Error("fields must be kept on failure")
	}
}

func TestForm_ErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp Response
		err  error
		want ErrorKind
	}{
		{"network timeout", Response{}, fmt.Errorf("%w: i/o timeout", ErrNetworkTimeout), KindNetworkTimeout},
		{"server rate limited", Response{StatusCode: http.StatusTooManyRequests, Message: "Too many"}, nil, KindRateLimited},
		{"server validation", Response{StatusCode: http.StatusBadRequest, Message: "Email is required"}, nil, KindValidationFailed},
		{"server error", Response{StatusCode: http.StatusInternalServerError, Message: "Something went wrong"}, nil, KindServerError},
		{"unexpected success false", Response{StatusCode: http.StatusOK}, nil, KindServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			log := NewMemoryLog()
			f, now := newTestForm(&fakeSubmitter{resp: tt.resp, err: tt.err}, log, nil)
			f.Fields = validRequest

			if got := f.Submit(context.Background()); got != StateError {
				t.Fatalf("state: got %s", got)
			}
			if f.ErrorKind() != tt.want {
				t.Errorf("kind: got %s, want %s", f.ErrorKind(), tt.want)
			}
			if f.Message() == "" {
				t.Error("error state needs a message")
			}
			if log.Recent(*now, DefaultLocalWindow) != 0 {
				t.Error("failed submissions must not be logged")
			}
		})
	}
}

func TestForm_TimeoutMessageOffersFallback(t *testing.T) {
	t.Parallel()

	f, _ := newTestForm(&fakeSubmitter{err: ErrNetworkTimeout}, nil, nil)
	f.Fields = validRequest
	f.Submit(context.Background())

	if !strings.Contains(f.Message(), "info@mopstarcleaning.com") {
		t.Errorf("message should include the fallback contact: %q", f.Message())
	}
}

type validationFixture struct {
	Name    string          `yaml:"name"`
	Request contact.Request `yaml:"request"`
	Errors  []string        `yaml:"errors"`
}

// The form must reject exactly what the server rejects, with the same text.
func TestForm_ValidationParity(t *testing.T) {
	t.Parallel()

	data, err := os.ReadFile(filepath.Join("..", "contact", "testdata", "validation.yaml"))
	if err != nil {
		t.Fatalf("read fixtures: %v", err)
	}
	var fixtures []validationFixture
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		t.Fatalf("parse fixtures: %v", err)
	}

	for _, fx := range fixtures {
		fx := fx
		t.Run(fx.Name, func(t *testing.T) {
			t.Parallel()

			s := &fakeSubmitter{resp: okResponse}
			f, _ := newTestForm(s, nil, nil)
			f.Fields = fx.Request
			state := f.Submit(context.Background())

			if len(fx.Errors) == 0 {
				if state != StateSuccess {
					t.Errorf("expected success, got %s: %s", f.ErrorKind(), f.Message())
				}
				return
			}
			if f.ErrorKind() != KindValidationFailed {
				t.Fatalf("kind: got %s", f.ErrorKind())
			}
			if want := strings.Join(fx.Errors, ", "); f.Message() != want {
				t.Errorf("message: got %q, want %q", f.Message(), want)
			}
			if s.calls != 0 {
				t.Error("invalid input must not reach the network")
			}
		})
	}
}

func TestFileLog_PersistsAndPrunes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "submissions.json")
	log, err := OpenFileLog(path)
	if err != nil {
		t.Fatalf("OpenFileLog: %v", err)
	}

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, ago := range []time.Duration{20 * time.Minute, 10 * time.Minute, time.Minute} {
		if err := log.Append(now.Add(-ago)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	reopened, err := OpenFileLog(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n := reopened.Recent(now, 15*time.Minute); n != 2 {
		t.Errorf("recent entries: got %d, want 2", n)
	}
}

func TestFileLog_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "submissions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFileLog(path); err == nil {
		t.Error("expected error for corrupt log")
	}
}
