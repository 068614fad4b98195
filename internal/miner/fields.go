package miner

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"load-triage/internal/parser"
)

const (
	maxCommodityLength = 100
	minRate            = 500
	maxRate            = 10000
)

var (
	commodityPattern = regexp.MustCompile(`(?i)\b\d+\s*(?:pallets?|boxes|box|pieces?|pcs|skids?|cartons?)\b[^\n\r]*`)
	lowerUpper       = regexp.MustCompile(`([a-z])([A-Z])`)
	digitLetter      = regexp.MustCompile(`(\d)([A-Za-z])`)
	letterDigit      = regexp.MustCompile(`([A-Za-z])(\d)`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
	sentenceBreak    = regexp.MustCompile(`[.;]`)

	weightPattern = regexp.MustCompile(`(?i)\b(?:\d{1,3}(?:,\d{3})+|\d+)\s*(?:lbs?|pounds?)\b`)

	refrigeratedWord = regexp.MustCompile(`(?i)\brefrigerated\b`)
	frozenWord       = regexp.MustCompile(`(?i)\bfrozen\b`)
)

// tempRange captures both ends of a range like 34F-38F, 34°F – 38°F or 34-38
const tempRange = `(\d{1,3})\s*°?\s*F?\s*[-–]\s*(\d{1,3})\s*°?\s*F?`

// gap is the stretch of non-digit text allowed between a range and its keyword
const gap = `\D{0,30}?`

var temperatureRules = []parser.Rule{
	{Name: "range_refrigerated", Regex: regexp.MustCompile(`(?i)` + tempRange + gap + `\brefrigerated`)},
	{Name: "refrigerated_range", Regex: regexp.MustCompile(`(?i)\brefrigerated` + gap + tempRange)},
	{Name: "range_frozen", Regex: regexp.MustCompile(`(?i)` + tempRange + gap + `\bfrozen`)},
	{Name: "frozen_range", Regex: regexp.MustCompile(`(?i)\bfrozen` + gap + tempRange)},
	{Name: "range_temp", Regex: regexp.MustCompile(`(?i)` + tempRange + gap + `\btemp(?:erature)?\b`)},
	{Name: "temp_range", Regex: regexp.MustCompile(`(?i)\btemp(?:erature)?\b` + gap + tempRange)},
}

// rateAmount matches comma grouped or plain dollar digits
const rateAmount = `\$\s*(\d{1,3}(?:,\d{3})+|\d+)`

var rateRules = []parser.Rule{
	{Name: "labeled", Regex: regexp.MustCompile(`(?i)\b(?:rate|price|target|pay)\b[^$\d\n]{0,20}` + rateAmount)},
	{Name: "near_shipment", Regex: regexp.MustCompile(`(?i)\bshipment\b[^$]{0,100}?` + rateAmount)},
	{Name: "near_load", Regex: regexp.MustCompile(`(?i)\bload\b[^$]{0,100}?` + rateAmount)},
}

func init() {
	for i := range temperatureRules {
		temperatureRules[i].Extract = formatTemperature
	}
	for i := range rateRules {
		rateRules[i].AllMatches = true
		rateRules[i].Extract = formatRate
		rateRules[i].Validate = rateInRange
	}
}

// ExtractCommodity returns the cleaned commodity line or DefaultCommodity
func ExtractCommodity(text string) string {
	raw := commodityPattern.FindString(text)
	if raw == "" {
		return DefaultCommodity
	}
	return CleanCommodity(raw)
}

// CleanCommodity separates run-together words and numbers, collapses whitespace
// and shortens long descriptions to their first sentence or 100 characters
func CleanCommodity(raw string) string {
	cleaned := lowerUpper.ReplaceAllString(raw, "$1 $2")
	cleaned = digitLetter.ReplaceAllString(cleaned, "$1 $2")
	cleaned = letterDigit.ReplaceAllString(cleaned, "$1 $2")
	cleaned = strings.TrimSpace(whitespaceRun.ReplaceAllString(cleaned, " "))

	if cleaned == "" {
		return DefaultCommodity
	}
	if utf8.RuneCountInString(cleaned) <= maxCommodityLength {
		return cleaned
	}

	first := strings.TrimSpace(sentenceBreak.Split(cleaned, 2)[0])
	if first != "" && utf8.RuneCountInString(first) <= maxCommodityLength {
		return first
	}
	return string([]rune(cleaned)[:maxCommodityLength]) + "..."
}

// ExtractTemperature returns a normalized temperature requirement, a bare
// Refrigerated or Frozen when no range is given, or an empty string
func ExtractTemperature(text string) string {
	if match, ok := parser.FirstValid(text, temperatureRules, parser.FallThrough); ok {
		return match.Value
	}
	if refrigeratedWord.MatchString(text) {
		return "Refrigerated"
	}
	if frozenWord.MatchString(text) {
		return "Frozen"
	}
	return ""
}

func formatTemperature(submatch []string) string {
	if len(submatch) < 3 {
		return ""
	}
	return "Refrigerated " + submatch[1] + "°F – " + submatch[2] + "°F"
}

// ExtractRate returns the first plausible dollar rate or DefaultRate
func ExtractRate(text string) string {
	if match, ok := parser.FirstValid(text, rateRules, parser.FallThrough); ok {
		return match.Value
	}
	return DefaultRate
}

func formatRate(submatch []string) string {
	if len(submatch) < 2 {
		return ""
	}
	return "$" + submatch[1]
}

func rateInRange(candidate string) bool {
	digits := strings.ReplaceAll(strings.TrimPrefix(candidate, "$"), ",", "")
	amount, err := strconv.Atoi(digits)
	if err != nil {
		return false
	}
	return amount >= minRate && amount <= maxRate
}

// ExtractWeight returns the first weight expression verbatim or DefaultWeight
func ExtractWeight(text string) string {
	if weight := weightPattern.FindString(text); weight != "" {
		return weight
	}
	return DefaultWeight
}
