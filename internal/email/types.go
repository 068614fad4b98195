package email

import (
	"strings"
	"time"

	"load-triage/internal/parser"
)

// DefaultSubject is used when an inbound email has no subject
const DefaultSubject = "Load Inquiry"

// Body is the full body of an inbound email as delivered by the mail webhook
type Body struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// RawEmail is one inbound email as received by the triage service
type RawEmail struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	BodyPreview string `json:"bodyPreview"`
	Body        Body   `json:"body"`
}

// SubjectOrDefault returns the subject, or DefaultSubject when it is blank
func (e *RawEmail) SubjectOrDefault() string {
	if strings.TrimSpace(e.Subject) == "" {
		return DefaultSubject
	}
	return e.Subject
}

// IsHTML reports whether the full body is HTML. Without a content type the
// body itself is inspected.
func (e *RawEmail) IsHTML() bool {
	if strings.TrimSpace(e.Body.ContentType) == "" {
		return parser.LooksLikeHTML(e.Body.Content)
	}
	return strings.Contains(strings.ToLower(e.Body.ContentType), "html")
}

// TextToScan returns the preview when present, otherwise the full body.
// HTML bodies are converted to text; if conversion fails the markup is returned as is.
func (e *RawEmail) TextToScan() string {
	if e.BodyPreview != "" {
		return e.BodyPreview
	}
	if e.Body.Content == "" {
		return ""
	}
	if e.IsHTML() {
		if text, err := parser.HTMLToText(e.Body.Content); err == nil {
			return text
		}
	}
	return e.Body.Content
}

// Message represents a mailbox message with parsed content
type Message struct {
	ID         string            `json:"id"`
	ThreadID   string            `json:"thread_id"`
	MessageID  string            `json:"message_id"`
	References string            `json:"references,omitempty"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	Date       time.Time         `json:"date"`
	Headers    map[string]string `json:"headers,omitempty"`

	// Content in different formats
	PlainText string `json:"plain_text"`
	HTMLText  string `json:"html_text"`

	// Gmail-specific fields
	Labels []string `json:"labels,omitempty"`
}

// ToRawEmail converts a mailbox message into the triage input, preferring the plain text part
func (m *Message) ToRawEmail() RawEmail {
	raw := RawEmail{
		ID:      m.ID,
		Subject: m.Subject,
	}
	switch {
	case m.PlainText != "":
		raw.Body = Body{ContentType: "text", Content: m.PlainText}
	case m.HTMLText != "":
		raw.Body = Body{ContentType: "html", Content: m.HTMLText}
	}
	return raw
}
