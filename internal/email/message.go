// Package email defines the outbound message model handed to delivery providers.
package email

// Message is a fully rendered email ready for delivery. It is built once per
// accepted contact submission and discarded after the send attempt.
type Message struct {
	// From is the sender identity, e.g. `"Mopstar Cleaning" <noreply@example.com>`.
	From string

	// To is the fixed operator recipient. It is never taken from user input.
	To string

	// ReplyTo is the submitter's normalized address so operators can answer directly.
	ReplyTo string

	Subject  string
	TextBody string
	HTMLBody string
}

// Recipients returns the envelope recipients of the message.
func (m *Message) Recipients() []string {
	if m.To == "" {
		return nil
	}
	return []string{m.To}
}
