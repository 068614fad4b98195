package miner

import (
	"regexp"
	"sort"
	"strings"
)

const (
	dateWindowBefore = 200
	dateWindowAfter  = 300
)

const streetSuffixes = `Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Way|Highway|Hwy|Parkway|Pkwy|Court|Ct`

// cityName allows up to three capitalized words on one line, optionally after "St."
const cityName = `((?:St\.[ \t]*)?[A-Z][a-zA-Z]+(?:[ \t]+[A-Z][a-zA-Z]+){0,2})`

const stateZip = `,[ \t]*([A-Z]{2})\b(?:[ \t]+\d{5}(?:-\d{4})?)?`

// locationPatterns are scanned in full; results are merged by source position
var locationPatterns = []*regexp.Regexp{
	// 123 Main Street Springfield, IL
	regexp.MustCompile(`\b\d+[ \t]+(?:[A-Z][a-zA-Z]*[ \t]+){1,4}(?:` + streetSuffixes + `)\b\.?,?[ \t]+` + cityName + stateZip),
	// Springfield, IL 62701
	regexp.MustCompile(`\b` + cityName + stateZip),
	// Industrial Parkway Fort Worth, TX
	regexp.MustCompile(`\b(?:[A-Z][a-zA-Z]*[ \t]+){1,4}(?:` + streetSuffixes + `)\b\.?,?[ \t]+` + cityName + stateZip),
}

// embeddedSuffix strips everything through the last street suffix that follows another word
var embeddedSuffix = regexp.MustCompile(`^(?:.*[ \t])?\S+[ \t]+(?:` + streetSuffixes + `)\.?,?[ \t]+`)

// leadingSuffix leaves "St" alone so St Louis and St Paul survive
var leadingSuffix = regexp.MustCompile(`^(?:Street|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Way|Highway|Hwy|Parkway|Pkwy|Court|Ct)\.?,?[ \t]+`)

var datePattern = regexp.MustCompile(
	`\b(?:(?:Mon(?:day)?|Tue(?:s(?:day)?)?|Wed(?:nesday)?|Thu(?:r(?:s(?:day)?)?)?|Fri(?:day)?|Sat(?:urday)?|Sun(?:day)?)\b\.?,?[ \t]+)?` +
		`(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\b\.?[ \t]+\d{1,2}(?:st|nd|rd|th)?\b` +
		`|\b\d{1,2}[/-]\d{1,2}[/-](?:\d{4}|\d{2})\b`)

// leadingLabels are page labels that get glued onto a city by the capitalized-word pattern
var leadingLabels = map[string]bool{
	"pickup": true, "pick": true, "up": true, "delivery": true, "deliver": true,
	"origin": true, "destination": true, "dest": true, "shipper": true,
	"consignee": true, "from": true, "to": true, "stop": true, "the": true,
	"load": true, "at": true, "in": true, "near": true, "location": true,
	"city": true,
	// sign-offs that precede a comma and a two-letter word
	"thanks": true, "thank": true, "regards": true, "hi": true, "hello": true,
	"dear": true, "cheers": true, "best": true,
}

var validStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true,
	"DE": true, "DC": true, "FL": true, "GA": true, "HI": true, "ID": true, "IL": true,
	"IN": true, "IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true,
	"MA": true, "MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true,
	"NV": true, "NH": true, "NJ": true, "NM": true, "NY": true, "NC": true, "ND": true,
	"OH": true, "OK": true, "OR": true, "PA": true, "RI": true, "SC": true, "SD": true,
	"TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "PR": true,
	// Canadian provinces and territories
	"AB": true, "BC": true, "MB": true, "NB": true, "NL": true, "NS": true, "NT": true,
	"NU": true, "ON": true, "PE": true, "QC": true, "SK": true, "YT": true,
}

type locationHit struct {
	location string
	words    int
	index    int
	end      int
}

// ExtractLocations returns the distinct locations on a page in source order,
// each paired with the first date found near it
func ExtractLocations(text string) []LocationDate {
	var hits []locationHit
	for _, pattern := range locationPatterns {
		for _, loc := range pattern.FindAllStringSubmatchIndex(text, -1) {
			city := CleanCity(text[loc[2]:loc[3]])
			state := text[loc[4]:loc[5]]
			if city == "" || !validStates[state] {
				continue
			}
			hits = append(hits, locationHit{
				location: city + ", " + state,
				words:    len(strings.Fields(city)),
				index:    loc[0],
				end:      loc[1],
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].index < hits[j].index
	})

	seen := make(map[string]bool)
	var locations []LocationDate
	for _, hit := range longestOverlapping(hits) {
		key := strings.ToLower(hit.location)
		if seen[key] {
			continue
		}
		seen[key] = true
		locations = append(locations, LocationDate{
			Location: hit.location,
			Date:     dateNear(text, hit.index),
		})
	}
	return locations
}

// longestOverlapping keeps one hit per run of overlapping matches: the one with
// the most city words, earliest on ties. hits must be sorted by index.
func longestOverlapping(hits []locationHit) []locationHit {
	var kept []locationHit
	for _, hit := range hits {
		last := len(kept) - 1
		if last >= 0 && hit.index < kept[last].end {
			if hit.words > kept[last].words {
				hit.end = max(hit.end, kept[last].end)
				kept[last] = hit
			} else {
				kept[last].end = max(kept[last].end, hit.end)
			}
			continue
		}
		kept = append(kept, hit)
	}
	return kept
}

// CleanCity drops leading page labels and an embedded street address from a city match
func CleanCity(city string) string {
	city = stripLabels(city)
	city = strings.TrimSpace(embeddedSuffix.ReplaceAllString(city, ""))
	city = strings.TrimSpace(leadingSuffix.ReplaceAllString(city, ""))
	return stripLabels(city)
}

func stripLabels(city string) string {
	words := strings.Fields(city)
	for len(words) > 1 && leadingLabels[strings.ToLower(words[0])] {
		words = words[1:]
	}
	if len(words) == 1 && leadingLabels[strings.ToLower(words[0])] {
		return ""
	}
	return strings.Join(words, " ")
}

func dateNear(text string, index int) string {
	start := max(index-dateWindowBefore, 0)
	end := min(index+dateWindowAfter, len(text))
	return strings.TrimSpace(datePattern.FindString(text[start:end]))
}
