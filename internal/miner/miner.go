package miner

import (
	"log/slog"
	"strings"
)

// DefaultMinPageChars is the shortest page text considered a real load details page
const DefaultMinPageChars = 1000

// Config configures a Miner
type Config struct {
	MinPageChars int
	Logger       *slog.Logger
}

// Miner turns scraped page text into LoadDetails
type Miner struct {
	minPageChars int
	logger       *slog.Logger
}

// New creates a Miner; zero values fall back to defaults
func New(config *Config) *Miner {
	if config == nil {
		config = &Config{}
	}
	minChars := config.MinPageChars
	if minChars <= 0 {
		minChars = DefaultMinPageChars
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Miner{minPageChars: minChars, logger: logger}
}

// MinPageChars returns the configured usable page threshold
func (m *Miner) MinPageChars() int {
	return m.minPageChars
}

// Mine extracts every field it can from pageText; missing fields get their defaults
func (m *Miner) Mine(pageText string) LoadDetails {
	details := LoadDetails{
		Commodity:   ExtractCommodity(pageText),
		Weight:      ExtractWeight(pageText),
		Rate:        ExtractRate(pageText),
		Temperature: ExtractTemperature(pageText),
	}

	locations := ExtractLocations(pageText)
	if len(locations) > 0 {
		details.Pickup = &locations[0]
	}
	if len(locations) > 1 {
		details.Delivery = &locations[1]
	}

	m.logger.Debug("Mined load details",
		"locations", len(locations),
		"commodity", details.Commodity,
		"weight", details.Weight,
		"rate", details.Rate,
		"temperature", details.Temperature)

	return details
}

// MineUsable mines pageText and reports whether it looked like a real load page:
// long enough and with at least one location
func (m *Miner) MineUsable(pageText string) (*LoadDetails, bool) {
	length := len(strings.TrimSpace(pageText))
	if length < m.minPageChars {
		m.logger.Debug("Page text too short for load details", "chars", length, "min_chars", m.minPageChars)
		return nil, false
	}

	details := m.Mine(pageText)
	if !details.HasLocation() {
		m.logger.Debug("No locations found on page")
		return nil, false
	}
	return &details, true
}
