package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is a single step in an ordered extraction cascade
type Rule struct {
	Name        string
	Regex       *regexp.Regexp
	Description string

	// Extract turns a submatch into a candidate. Nil means capture group 1, trimmed.
	Extract func(submatch []string) string

	// Validate reports whether a candidate is usable. Nil accepts any non-empty candidate.
	Validate func(candidate string) bool

	// AllMatches tries every match of the rule in source order instead of only the first
	AllMatches bool
}

// Match is the outcome of a successful cascade evaluation
type Match struct {
	Rule  string `json:"rule"`
	Value string `json:"value"`
	Raw   string `json:"raw"`
	Index int    `json:"index"`
}

// InvalidMatchPolicy controls what happens when a rule matches but its candidate fails validation
type InvalidMatchPolicy int

const (
	// FallThrough continues with the next rule
	FallThrough InvalidMatchPolicy = iota
	// StopAtFirstMatch ends the cascade with no result
	StopAtFirstMatch
)

func (p InvalidMatchPolicy) String() string {
	switch p {
	case StopAtFirstMatch:
		return "stop"
	default:
		return "fallthrough"
	}
}

// ParseInvalidMatchPolicy parses a policy name as used in configuration
func ParseInvalidMatchPolicy(name string) (InvalidMatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fallthrough", "fall-through", "continue":
		return FallThrough, nil
	case "stop", "first-match", "stop-at-first-match":
		return StopAtFirstMatch, nil
	default:
		return FallThrough, fmt.Errorf("unknown invalid match policy: %q", name)
	}
}

// FirstValid evaluates rules in order and returns the first candidate that validates
func FirstValid(text string, rules []Rule, policy InvalidMatchPolicy) (Match, bool) {
	if text == "" {
		return Match{}, false
	}

	for _, rule := range rules {
		var found [][]int
		if rule.AllMatches {
			found = rule.Regex.FindAllStringSubmatchIndex(text, -1)
		} else if loc := rule.Regex.FindStringSubmatchIndex(text); loc != nil {
			found = [][]int{loc}
		}
		if len(found) == 0 {
			continue
		}

		for _, loc := range found {
			submatch := submatchStrings(text, loc)
			candidate := rule.extract(submatch)
			if rule.valid(candidate) {
				return Match{
					Rule:  rule.Name,
					Value: candidate,
					Raw:   submatch[0],
					Index: loc[0],
				}, true
			}
		}

		if policy == StopAtFirstMatch {
			return Match{}, false
		}
	}

	return Match{}, false
}

func (r Rule) extract(submatch []string) string {
	if r.Extract != nil {
		return r.Extract(submatch)
	}
	if len(submatch) < 2 {
		return strings.TrimSpace(submatch[0])
	}
	return strings.TrimSpace(submatch[1])
}

func (r Rule) valid(candidate string) bool {
	if r.Validate != nil {
		return r.Validate(candidate)
	}
	return candidate != ""
}

// submatchStrings converts an index slice into strings; unmatched groups are empty
func submatchStrings(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		start, end := loc[2*i], loc[2*i+1]
		if start >= 0 && end >= 0 {
			out[i] = text[start:end]
		}
	}
	return out
}
