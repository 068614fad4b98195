package reply

import (
	"bytes"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"load-triage/internal/miner"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

const (
	// DefaultSubject is used when the inbound email has no subject
	DefaultSubject = "Load Inquiry"
	// DefaultSignature signs every reply unless configured otherwise
	DefaultSignature = "Balto Booking"

	// FallbackSubject and FallbackBody are sent when nothing better can be produced
	FallbackSubject = "Re: Load Inquiry"
	FallbackBody    = "Thank you for your email. We are processing your inquiry and will respond shortly."

	referenceNeededSuffix = " - DAT Reference Number Needed"
)

// Kind identifies which reply template was used
type Kind string

const (
	KindDetailed         Kind = "detailed"
	KindAcknowledged     Kind = "acknowledged"
	KindRequestReference Kind = "request_reference"
)

var allKinds = []Kind{KindDetailed, KindAcknowledged, KindRequestReference}

// Email is a rendered reply
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Kind    Kind   `json:"kind"`
}

// templateData is everything a reply template can reference
type templateData struct {
	Reference   string
	Subject     string
	Pickup      string
	Delivery    string
	Commodity   string
	Weight      string
	Rate        string
	Temperature string
	Signature   string
}

// Config configures a Formatter
type Config struct {
	Signature string
	Logger    *slog.Logger
}

// Formatter renders reply emails from extraction results
type Formatter struct {
	templates map[Kind]*template.Template
	signature string
	logger    *slog.Logger
}

// NewFormatter parses the embedded reply templates
func NewFormatter(config *Config) (*Formatter, error) {
	if config == nil {
		config = &Config{}
	}
	f := &Formatter{
		templates: make(map[Kind]*template.Template),
		signature: config.Signature,
		logger:    config.Logger,
	}
	if strings.TrimSpace(f.signature) == "" {
		f.signature = DefaultSignature
	}
	if f.logger == nil {
		f.logger = slog.New(slog.DiscardHandler)
	}

	for _, kind := range allKinds {
		content, err := embeddedTemplates.ReadFile("templates/" + string(kind) + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %s: %w", kind, err)
		}

		tmpl, err := template.New(string(kind)).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", kind, err)
		}

		f.templates[kind] = tmpl
	}

	return f, nil
}

// Select picks the template for the given inputs: details beat a bare reference,
// which beats nothing
func Select(reference string, details *miner.LoadDetails) Kind {
	switch {
	case reference != "" && details != nil:
		return KindDetailed
	case reference != "":
		return KindAcknowledged
	default:
		return KindRequestReference
	}
}

// Format renders the reply for an inquiry. It never fails; a template error
// produces the generic fallback reply.
func (f *Formatter) Format(reference string, details *miner.LoadDetails, subject, originalBody string) Email {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}

	kind := Select(reference, details)
	data := templateData{
		Reference: reference,
		Subject:   subject,
		Signature: f.signature,
	}
	if details != nil {
		data.Pickup = details.PickupDisplay()
		data.Delivery = details.DeliveryDisplay()
		data.Commodity = details.Commodity
		data.Weight = details.Weight
		data.Rate = details.Rate
		data.Temperature = details.Temperature
	}

	body, err := f.render(kind, data)
	if err != nil {
		f.logger.Error("Failed to render reply, using fallback",
			"template", string(kind),
			"error", err,
			"original_body_chars", len(originalBody))
		return Fallback()
	}

	replySubject := "Re: " + subject
	if kind == KindRequestReference {
		replySubject += referenceNeededSuffix
	}

	return Email{Subject: replySubject, Body: body, Kind: kind}
}

// Fallback is the reply used when processing fails outright
func Fallback() Email {
	return Email{Subject: FallbackSubject, Body: FallbackBody}
}

func (f *Formatter) render(kind Kind, data templateData) (string, error) {
	tmpl, ok := f.templates[kind]
	if !ok {
		return "", fmt.Errorf("unknown template: %s", kind)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
