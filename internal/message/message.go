// Package message defines the validated inbound support message consumed by
// the workflow orchestrator. Transport, parsing, and sender allow-listing
// happen upstream; by the time a Message reaches intake it is already vetted.
package message

import (
	"errors"
	"strings"
	"time"
)

// Message is one inbound support request. Immutable once constructed.
type Message struct {
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Validate enforces the boundary contract with the ingestion collaborator:
// sender, subject, and body are non-empty and a receive timestamp is present.
func (m *Message) Validate() error {
	var errs []error
	if strings.TrimSpace(m.From) == "" {
		errs = append(errs, errors.New("message: sender is required"))
	}
	if strings.TrimSpace(m.Subject) == "" {
		errs = append(errs, errors.New("message: subject is required"))
	}
	if strings.TrimSpace(m.Body) == "" {
		errs = append(errs, errors.New("message: body is required"))
	}
	if m.ReceivedAt.IsZero() {
		errs = append(errs, errors.New("message: received_at is required"))
	}
	return errors.Join(errs...)
}

// Query returns the knowledge-base query text for this message:
// subject and body joined, the same text the generator prompt embeds.
func (m *Message) Query() string {
	return m.Subject + "\n\n" + m.Body
}
