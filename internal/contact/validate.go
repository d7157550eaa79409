// Package contact implements the contact-form submission pipeline: input
// validation and sanitization, and the service that rate-checks, validates
// and dispatches a submission to the operator mailbox.
package contact

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultService is used when a submission does not name a service.
const DefaultService = "N/A"

// Field length bounds in characters. Names are measured trimmed, messages
// trimmed and tag-stripped.
const (
	NameMinLen    = 2
	NameMaxLen    = 50
	MessageMinLen = 10
	MessageMaxLen = 1000
)

// Request is the raw payload of a contact form submission.
type Request struct {
	Name    string `json:"name" yaml:"name"`
	Email   string `json:"email" yaml:"email"`
	Message string `json:"message" yaml:"message"`
	Service string `json:"service,omitempty" yaml:"service,omitempty"`
}

// Submission is a validated and sanitized contact request. It lives for a
// single request and is never persisted.
type Submission struct {
	Name       string
	Email      string
	Message    string
	Service    string
	ReceivedAt time.Time
}

// Validate checks every field of req independently and returns either a
// normalized Submission or a *ValidationError listing each violated rule in
// field order. ReceivedAt is left zero; the caller stamps it.
func Validate(req Request) (Submission, error) {
	var problems []string

	// Length is measured on the trimmed input; tags are stripped only from
	// the value that is kept.
	rawName := strings.TrimSpace(req.Name)
	switch n := utf8.RuneCountInString(rawName); {
	case n == 0:
		problems = append(problems, "Name is required")
	case n < NameMinLen:
		problems = append(problems, "Name must be at least 2 characters long")
	case n > NameMaxLen:
		problems = append(problems, "Name must be less than 50 characters")
	}

	addr := strings.TrimSpace(req.Email)
	switch {
	case addr == "":
		problems = append(problems, "Email is required")
	case !ValidEmail(addr):
		problems = append(problems, "Please enter a valid email address")
	}

	message := StripTags(req.Message)
	switch n := utf8.RuneCountInString(message); {
	case n == 0:
		problems = append(problems, "Message is required")
	case n < MessageMinLen:
		problems = append(problems, "Message must be at least 10 characters long")
	case n > MessageMaxLen:
		problems = append(problems, "Message must be less than 1000 characters")
	}

	if len(problems) > 0 {
		return Submission{}, &ValidationError{Problems: problems}
	}

	name := StripTags(rawName)
	service := StripTags(req.Service)
	if service == "" {
		service = DefaultService
	}

	return Submission{
		Name:    name,
		Email:   NormalizeEmail(addr),
		Message: message,
		Service: service,
	}, nil
}
