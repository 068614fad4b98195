package parser

import (
	"log/slog"
	"regexp"
	"strings"
)

// Labels whose numbers look like load references but are carrier or billing identifiers.
// Order matters: each pattern runs against the text left by the previous one.
var exclusionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)MC\s*[#:\-]?\s*\d+`),
	regexp.MustCompile(`(?i)DOT\s*[#:\-]?\s*\d+`),
	regexp.MustCompile(`(?i)USDOT\s*[#:\-]?\s*\d+`),
	regexp.MustCompile(`(?i)invoice\s*[#:\-]?\s*\d+`),
	regexp.MustCompile(`(?i)bill\s*[#:\-]?\s*\d+`),
}

var referenceCleaner = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// referenceRules are listed from most to least specific
var referenceRules = []Rule{
	{
		Name:        "order_number",
		Regex:       regexp.MustCompile(`(?i)order\s*#?\s*(\d{6,8})`),
		Description: "Order # followed by 6-8 digits",
	},
	{
		Name:        "reference_number",
		Regex:       regexp.MustCompile(`(?i)reference\s+number\s+(\d{6,8})`),
		Description: "Reference number followed by 6-8 digits",
	},
	{
		Name:        "ref_label",
		Regex:       regexp.MustCompile(`(?i)ref[:\s]+(\d{6,8})`),
		Description: "Ref: or Ref followed by 6-8 digits",
	},
	{
		Name:        "six_digit",
		Regex:       regexp.MustCompile(`\b(\d{6})\b`),
		Description: "Standalone 6-digit number",
	},
	{
		Name:        "load_label",
		Regex:       regexp.MustCompile(`(?i)load\s*(?:reference|ref|number|id|#)[:\-\s]*([A-Z0-9\-_]+)`),
		Description: "Load ref/reference/number/id/# label with alphanumeric value",
	},
	{
		Name:        "carrier_code",
		Regex:       regexp.MustCompile(`([A-Z]{2,4}[\-_\s]*\d{3,8}[\-_\s]*[A-Z0-9]*)`),
		Description: "2-4 uppercase letters, 3-8 digits, optional alphanumeric suffix",
	},
	{
		Name:        "letter_prefixed",
		Regex:       regexp.MustCompile(`([A-HJ-Z]+\d{4,8}[A-Z0-9]*)`),
		Description: "Letters other than I followed by 4-8 digits",
	},
}

func init() {
	for i := range referenceRules {
		referenceRules[i].Extract = extractReference
		referenceRules[i].Validate = IsValidReference
	}
}

// ReferenceRules returns a copy of the ordered load reference cascade
func ReferenceRules() []Rule {
	rules := make([]Rule, len(referenceRules))
	copy(rules, referenceRules)
	return rules
}

// ExtractorConfig configures reference extraction
type ExtractorConfig struct {
	Policy InvalidMatchPolicy
	Logger *slog.Logger
}

// ReferenceExtractor finds load references in free-form email text
type ReferenceExtractor struct {
	rules  []Rule
	policy InvalidMatchPolicy
	logger *slog.Logger
}

// NewReferenceExtractor creates an extractor; a nil config uses FallThrough and discards logs
func NewReferenceExtractor(config *ExtractorConfig) *ReferenceExtractor {
	if config == nil {
		config = &ExtractorConfig{Policy: FallThrough}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &ReferenceExtractor{
		rules:  ReferenceRules(),
		policy: config.Policy,
		logger: logger,
	}
}

// Policy returns the configured invalid match policy
func (e *ReferenceExtractor) Policy() InvalidMatchPolicy {
	return e.policy
}

// Extract returns the most likely load reference in text
func (e *ReferenceExtractor) Extract(text string) (string, bool) {
	match, ok := e.ExtractMatch(text)
	if !ok {
		return "", false
	}
	return match.Value, true
}

// ExtractMatch is Extract with the winning rule attached
func (e *ReferenceExtractor) ExtractMatch(text string) (Match, bool) {
	if strings.TrimSpace(text) == "" {
		return Match{}, false
	}

	stripped := e.stripExclusions(text)

	match, ok := FirstValid(stripped, e.rules, e.policy)
	if !ok {
		e.logger.Debug("No valid load reference found", "policy", e.policy.String())
		return Match{}, false
	}

	e.logger.Debug("Found load reference", "reference", match.Value, "rule", match.Rule)
	return match, true
}

func (e *ReferenceExtractor) stripExclusions(text string) string {
	stripped := StripExclusions(text)
	if len(stripped) != len(text) {
		e.logger.Debug("Ignoring excluded identifiers", "removed_chars", len(text)-len(stripped))
	}
	return stripped
}

// StripExclusions removes MC, DOT, USDOT, invoice and bill numbers from text
func StripExclusions(text string) string {
	for _, pattern := range exclusionPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return text
}

// CleanReference trims a raw capture and drops everything but letters, digits, '-' and '_'
func CleanReference(raw string) string {
	return referenceCleaner.ReplaceAllString(strings.TrimSpace(raw), "")
}

// IsValidReference rejects short candidates and MC/DOT look-alikes
func IsValidReference(candidate string) bool {
	if len(candidate) < 4 {
		return false
	}
	upper := strings.ToUpper(candidate)
	return !strings.HasPrefix(upper, "MC") && !strings.HasPrefix(upper, "DOT")
}

func extractReference(submatch []string) string {
	if len(submatch) < 2 {
		return ""
	}
	return CleanReference(submatch[1])
}
