package parser

import (
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstValid(t *testing.T) {
	rules := []Rule{
		{
			Name:     "long_number",
			Regex:    regexp.MustCompile(`#(\d+)`),
			Validate: func(c string) bool { return len(c) >= 3 },
		},
		{
			Name:  "word",
			Regex: regexp.MustCompile(`word:(\w+)`),
		},
	}

	tests := []struct {
		name     string
		text     string
		policy   InvalidMatchPolicy
		expected string
		rule     string
		found    bool
	}{
		{name: "first rule wins", text: "#12345 word:abc", policy: FallThrough, expected: "12345", rule: "long_number", found: true},
		{name: "falls through on invalid", text: "#12 word:abc", policy: FallThrough, expected: "abc", rule: "word", found: true},
		{name: "stops on invalid", text: "#12 word:abc", policy: StopAtFirstMatch, found: false},
		{name: "skips rules without matches", text: "word:xyz", policy: StopAtFirstMatch, expected: "xyz", rule: "word", found: true},
		{name: "nothing matches", text: "plain text", policy: FallThrough, found: false},
		{name: "empty text", text: "", policy: FallThrough, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, found := FirstValid(tt.text, rules, tt.policy)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.expected, match.Value)
			assert.Equal(t, tt.rule, match.Rule)
		})
	}
}

func TestFirstValid_AllMatches(t *testing.T) {
	inRange := func(c string) bool {
		n, err := strconv.Atoi(c)
		return err == nil && n >= 500 && n <= 10000
	}

	single := Rule{Name: "amount", Regex: regexp.MustCompile(`\$(\d+)`), Validate: inRange}
	every := single
	every.AllMatches = true

	text := "fuel $50 then linehaul $2500"

	_, found := FirstValid(text, []Rule{single}, FallThrough)
	assert.False(t, found, "only the first match is tried by default")

	match, found := FirstValid(text, []Rule{every}, FallThrough)
	require.True(t, found)
	assert.Equal(t, "2500", match.Value)
	assert.Equal(t, "$2500", match.Raw)
	assert.Equal(t, 23, match.Index)
}

func TestFirstValid_CustomExtract(t *testing.T) {
	rule := Rule{
		Name:    "range",
		Regex:   regexp.MustCompile(`(\d+)-(\d+)`),
		Extract: func(s []string) string { return s[1] + " to " + s[2] },
	}

	match, found := FirstValid("temp 34-38", []Rule{rule}, FallThrough)
	require.True(t, found)
	assert.Equal(t, "34 to 38", match.Value)
}

func TestFirstValid_NoCaptureGroupUsesWholeMatch(t *testing.T) {
	rule := Rule{Name: "weight", Regex: regexp.MustCompile(`\d+ lbs`)}

	match, found := FirstValid("about 42000 lbs", []Rule{rule}, FallThrough)
	require.True(t, found)
	assert.Equal(t, "42000 lbs", match.Value)
}

func TestParseInvalidMatchPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected InvalidMatchPolicy
		wantErr  bool
	}{
		{input: "", expected: FallThrough},
		{input: "fallthrough", expected: FallThrough},
		{input: "Fall-Through", expected: FallThrough},
		{input: "continue", expected: FallThrough},
		{input: "stop", expected: StopAtFirstMatch},
		{input: " first-match ", expected: StopAtFirstMatch},
		{input: "stop-at-first-match", expected: StopAtFirstMatch},
		{input: "sometimes", expected: FallThrough, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			policy, err := ParseInvalidMatchPolicy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, policy)
		})
	}
}

func TestInvalidMatchPolicy_String(t *testing.T) {
	assert.Equal(t, "fallthrough", FallThrough.String())
	assert.Equal(t, "stop", StopAtFirstMatch.String())
}
