package stdout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mopstar/mopstar-api/internal/email"
)

func TestSend_BasicEmail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	msg := &email.Message{
		From:     `"Mopstar Cleaning" <noreply@example.com>`,
		To:       "ops@example.com",
		ReplyTo:  "jane@example.com",
		Subject:  "New Contact Form Submission from Jane Doe",
		TextBody: "Name: Jane Doe",
	}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		`From: "Mopstar Cleaning" <noreply@example.com>`,
		"To: ops@example.com",
		"Reply-To: jane@example.com",
		"Subject: New Contact Form Submission from Jane Doe",
		"Name: Jane Doe\n",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if !strings.HasPrefix(output, separator) || !strings.HasSuffix(output, separator) {
		t.Error("output should be framed by separator lines")
	}
}

func TestSend_FallsBackToHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	err := p.Send(context.Background(), &email.Message{To: "ops@example.com", HTMLBody: "<p>Hi</p>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "<p>Hi</p>") {
		t.Error("output missing html body")
	}
	if strings.Contains(buf.String(), "Reply-To:") {
		t.Error("Reply-To line should be omitted when empty")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestSend_WriteError(t *testing.T) {
	t.Parallel()

	p := NewWithWriter(failingWriter{})
	if err := p.Send(context.Background(), &email.Message{To: "ops@example.com"}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestSend_Concurrent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Send(context.Background(), &email.Message{To: "ops@example.com", TextBody: "x"})
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "To: ops@example.com"); got != 10 {
		t.Errorf("messages written: got %d, want 10", got)
	}
}

func TestVerifyAndName(t *testing.T) {
	t.Parallel()

	p := New()
	if err := p.Verify(context.Background()); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if p.Name() != "stdout" {
		t.Errorf("Name: got %q", p.Name())
	}
}
