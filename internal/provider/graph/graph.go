// Package graph implements a Provider that sends emails via the Microsoft Graph API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mopstar/mopstar-api/internal/email"
	"github.com/mopstar/mopstar-api/internal/provider"
)

const (
	defaultAuthority = "https://login.microsoftonline.com"
	defaultGraphURL  = "https://graph.microsoft.com/v1.0"
	graphScope       = "https://graph.microsoft.com/.default"
)

// Config holds the configuration for creating a Provider.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Sender is the mailbox that sends on behalf of the application.
	Sender string
	// Timeout bounds each HTTP call. Defaults to 30s.
	Timeout time.Duration

	// TokenURL and GraphURL override the Microsoft endpoints.
	TokenURL string
	GraphURL string
}

// Provider sends emails via the Graph sendMail endpoint using OAuth2
// client credentials.
type Provider struct {
	sendURL string
	tokens  oauth2.TokenSource
	client  *http.Client
}

// New creates a Provider. No network calls are made until Verify or Send.
func New(cfg Config) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("%s/%s/oauth2/v2.0/token", defaultAuthority, url.PathEscape(cfg.TenantID))
	}
	graphURL := cfg.GraphURL
	if graphURL == "" {
		graphURL = defaultGraphURL
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}

	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	tokens := cc.TokenSource(ctx)

	return &Provider{
		sendURL: fmt.Sprintf("%s/users/%s/sendMail", graphURL, url.PathEscape(cfg.Sender)),
		tokens:  tokens,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &oauth2.Transport{Source: tokens, Base: base.Transport},
		},
	}
}

// Verify acquires an access token, which proves the tenant, client ID and
// secret are valid. The token source is shared and not context-aware, so
// Verify returns when ctx ends; a fetch still in flight is bounded by
// Config.Timeout and its token is cached for the next call.
func (p *Provider) Verify(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := p.tokens.Token()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: graph token: %w", provider.ErrMisconfigured, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: graph token: %w", provider.ErrMisconfigured, ctx.Err())
	}
}

// Send delivers msg. A 202 Accepted response is success.
func (p *Provider) Send(ctx context.Context, msg *email.Message) error {
	bodyJSON, err := json.Marshal(buildSendMailRequest(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sendURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: %w", provider.ErrAuth, err)
		}
		if provider.IsTimeout(err) {
			return fmt.Errorf("%w: %w", provider.ErrTimeout, err)
		}
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := string(body)
	var graphErr graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErr); jsonErr == nil && graphErr.Error.Message != "" {
		message = graphErr.Error.Message
	}
	return &sendError{statusCode: resp.StatusCode, message: message}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "msgraph"
}

// sendError is a non-2xx response from the sendMail endpoint.
type sendError struct {
	statusCode int
	message    string
}

func (e *sendError) Error() string {
	return fmt.Sprintf("graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// Unwrap maps the status onto the provider error classes.
func (e *sendError) Unwrap() error {
	switch e.statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.ErrAuth
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return provider.ErrTimeout
	default:
		return nil
	}
}
