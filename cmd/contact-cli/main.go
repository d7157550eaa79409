// Package main is a terminal front end for the contact form.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mopstar/mopstar-api/internal/contactclient"
	"github.com/mopstar/mopstar-api/internal/logging"
)

func main() {
	apiURL := flag.String("api", envOr("MOPSTAR_API_URL", "http://localhost:4000"), "API base URL")
	logPath := flag.String("log", defaultLogPath(), "file recording recent submissions (empty keeps it in memory)")
	name := flag.String("name", "", "your name")
	email := flag.String("email", "", "your email address")
	service := flag.String("service", "", "service you are interested in (optional)")
	message := flag.String("message", "", "your message; read from stdin when empty")
	verbose := flag.Bool("v", false, "log retries and state changes")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logging.Setup(os.Stderr, level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *apiURL, *logPath, *name, *email, *service, *message); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, apiURL, logPath, name, email, service, message string) error {
	client, err := contactclient.NewClient(contactclient.ClientConfig{BaseURL: apiURL})
	if err != nil {
		return err
	}

	submissions := contactclient.NewMemoryLog()
	if logPath != "" {
		if submissions, err = contactclient.OpenFileLog(logPath); err != nil {
			return err
		}
	}

	in := bufio.NewReader(os.Stdin)
	if name == "" {
		name = prompt(in, "Name: ")
	}
	if email == "" {
		email = prompt(in, "Email: ")
	}
	if message == "" {
		fmt.Fprint(os.Stderr, "Message (end with Ctrl-D):\n")
		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		message = string(data)
	}

	form := contactclient.NewForm(client, submissions, contactclient.FormConfig{
		OnStateChange: func(s contactclient.State) {
			slog.Debug("form state", "state", s)
			if s == contactclient.StateSubmitting {
				fmt.Fprintln(os.Stderr, "Sending...")
			}
		},
	})
	form.Fields.Name = name
	form.Fields.Email = email
	form.Fields.Service = service
	form.Fields.Message = message

	if form.Submit(ctx) == contactclient.StateSuccess {
		fmt.Println(form.Message())
		return nil
	}
	return fmt.Errorf("%s: %s", form.ErrorKind(), form.Message())
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Fprint(os.Stderr, label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultLogPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mopstar", "contact-submissions.json")
}
