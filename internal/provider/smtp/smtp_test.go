package smtp

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	message "github.com/mopstar/mopstar-api/internal/email"
	"github.com/mopstar/mopstar-api/internal/provider"
)

// fakeServer is a scripted SMTP server good enough for net/smtp.
type fakeServer struct {
	ln         net.Listener
	rejectAuth bool
	silent     bool

	mu    sync.Mutex
	from  string
	rcpts []string
	data  string
	auths int
}

func startFakeServer(t *testing.T, rejectAuth, silent bool) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, rejectAuth: rejectAuth, silent: silent}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	if s.silent {
		time.Sleep(2 * time.Second)
		return
	}

	r := bufio.NewReader(conn)
	reply := func(line string) { conn.Write([]byte(line + "\r\n")) }
	reply("220 fake.local ESMTP")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])

		switch verb {
		case "EHLO":
			reply("250-fake.local")
			reply("250 AUTH PLAIN")
		case "AUTH":
			s.mu.Lock()
			s.auths++
			s.mu.Unlock()
			if s.rejectAuth {
				reply("535 5.7.8 authentication credentials invalid")
			} else {
				reply("235 2.7.0 accepted")
			}
		case "MAIL":
			s.mu.Lock()
			s.from = line
			s.mu.Unlock()
			reply("250 ok")
		case "RCPT":
			s.mu.Lock()
			s.rcpts = append(s.rcpts, line)
			s.mu.Unlock()
			reply("250 ok")
		case "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 queued")
		case "QUIT":
			reply("221 bye")
			return
		case "*":
			reply("501 cancelled")
		default:
			reply("250 ok")
		}
	}
}

func (s *fakeServer) provider(t *testing.T, timeout time.Duration) *Provider {
	t.Helper()
	host, portStr, _ := net.SplitHostPort(s.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	p, err := New(Config{
		Host:     host,
		Port:     port,
		Username: "mailer@example.com",
		Password: "app-password",
		Timeout:  timeout,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

var testMessage = &message.Message{
	From:     `"Mopstar Cleaning" <noreply@example.com>`,
	To:       "ops@example.com",
	ReplyTo:  "jane@example.com",
	Subject:  "New Contact Form Submission from Jane Doe",
	TextBody: "Name: Jane Doe",
	HTMLBody: "<p>Name: Jane Doe</p>",
}

func TestSend_DeliversMessage(t *testing.T) {
	t.Parallel()

	s := startFakeServer(t, false, false)
	p := s.provider(t, 2*time.Second)

	if err := p.Send(context.Background(), testMessage); err != nil {
		t.Fatalf("Send: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !strings.Contains(s.from, "<noreply@example.com>") {
		t.Errorf("MAIL FROM: got %q", s.from)
	}
	if len(s.rcpts) != 1 || !strings.Contains(s.rcpts[0], "<ops@example.com>") {
		t.Errorf("RCPT: got %v", s.rcpts)
	}
	for _, want := range []string{"Reply-To: jane@example.com", "Subject: New Contact Form Submission from Jane Doe", "Name: Jane Doe"} {
		if !strings.Contains(s.data, want) {
			t.Errorf("DATA missing %q", want)
		}
	}
	if s.auths != 1 {
		t.Errorf("AUTH commands: got %d, want 1", s.auths)
	}
}

func TestSend_AuthRejected(t *testing.T) {
	t.Parallel()

	s := startFakeServer(t, true, false)
	p := s.provider(t, 2*time.Second)

	err := p.Send(context.Background(), testMessage)
	if !errors.Is(err, provider.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != "" {
		t.Error("no message should be transferred after auth failure")
	}
}

func TestSend_Timeout(t *testing.T) {
	t.Parallel()

	s := startFakeServer(t, false, true)
	p := s.provider(t, 100*time.Millisecond)

	err := p.Send(context.Background(), testMessage)
	if !errors.Is(err, provider.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	ok := startFakeServer(t, false, false)
	if err := ok.provider(t, 2*time.Second).Verify(context.Background()); err != nil {
		t.Errorf("Verify: %v", err)
	}
	ok.mu.Lock()
	if ok.data != "" {
		t.Error("Verify must not send a message")
	}
	ok.mu.Unlock()

	bad := startFakeServer(t, true, false)
	err := bad.provider(t, 2*time.Second).Verify(context.Background())
	if !errors.Is(err, provider.ErrMisconfigured) || !errors.Is(err, provider.ErrAuth) {
		t.Errorf("expected ErrMisconfigured wrapping ErrAuth, got %v", err)
	}
}

func TestVerify_Unreachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	p, _ := New(Config{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second})
	if err := p.Verify(context.Background()); !errors.Is(err, provider.ErrMisconfigured) {
		t.Errorf("expected ErrMisconfigured, got %v", err)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing host")
	}

	p, _ := New(Config{Host: "smtp.example.com", SSL: true})
	if p.addr != "smtp.example.com:465" {
		t.Errorf("addr: got %q", p.addr)
	}
	p, _ = New(Config{Host: "smtp.example.com"})
	if p.addr != "smtp.example.com:587" {
		t.Errorf("addr: got %q", p.addr)
	}
	if p.Name() != "smtp" {
		t.Errorf("Name: got %q", p.Name())
	}
}
