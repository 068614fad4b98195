package email

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// ParseMIME reads a raw RFC 822 message into a Message
func ParseMIME(r io.Reader) (*Message, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIME message: %w", err)
	}

	msg := &Message{
		MessageID:  strings.TrimSpace(env.GetHeader("Message-ID")),
		References: strings.TrimSpace(env.GetHeader("References")),
		From:       env.GetHeader("From"),
		To:         env.GetHeader("To"),
		Subject:    env.GetHeader("Subject"),
		Headers:    make(map[string]string),
		PlainText:  env.Text,
		HTMLText:   env.HTML,
	}
	msg.ID = strings.Trim(msg.MessageID, "<>")

	for _, key := range env.GetHeaderKeys() {
		msg.Headers[key] = env.GetHeader(key)
	}

	if date := env.GetHeader("Date"); date != "" {
		if parsed, err := mail.ParseDate(date); err == nil {
			msg.Date = parsed
		}
	}

	// enmime down-converts HTML-only messages into Text; keep the HTML as the source of truth
	if env.HTML != "" && strings.TrimSpace(env.Root.ContentType) == "text/html" {
		msg.PlainText = ""
	}

	return msg, nil
}

// BuildReply renders a threaded plain-text reply to original as an RFC 822 message
func BuildReply(from string, original *Message, subject, body string) ([]byte, error) {
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	recipient, err := mail.ParseAddress(original.From)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", original.From, err)
	}

	builder := enmime.Builder().
		From(sender.Name, sender.Address).
		To(recipient.Name, recipient.Address).
		Subject(subject).
		Date(time.Now()).
		Text([]byte(body))

	if original.MessageID != "" {
		references := strings.TrimSpace(original.References + " " + original.MessageID)
		builder = builder.
			Header("In-Reply-To", original.MessageID).
			Header("References", references)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build reply: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}
	return buf.Bytes(), nil
}
