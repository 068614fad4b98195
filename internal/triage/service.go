package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"load-triage/internal/browser"
	"load-triage/internal/database"
	"load-triage/internal/email"
	"load-triage/internal/miner"
	"load-triage/internal/parser"
	"load-triage/internal/ratelimit"
	"load-triage/internal/reply"
)

// Modes reported in Result.Mode
const (
	ModePortal = "portal-lookup"
	ModeBasic  = "reference-only"
)

// LoadLookup fetches the portal page text for a load reference
type LoadLookup interface {
	Lookup(ctx context.Context, reference string) (string, error)
}

// DetailsCache holds mined details per reference; a miss is (nil, nil)
type DetailsCache interface {
	Get(reference string) (*miner.LoadDetails, error)
	Set(reference string, details *miner.LoadDetails) error
}

// History records triage results and answers rate limit queries
type History interface {
	Record(inquiry *database.Inquiry) error
	LastFailedLookup(reference string) (*time.Time, error)
}

// Config wires a Service. Extractor, Miner and Formatter default when nil;
// a nil Lookup disables the portal lookup.
type Config struct {
	Extractor *parser.ReferenceExtractor
	Miner     *miner.Miner
	Formatter *reply.Formatter
	Lookup    LoadLookup
	Cache     DetailsCache
	History   History
	RateLimit ratelimit.Config
	Logger    *slog.Logger
}

// Options adjust a single triage
type Options struct {
	// Source is recorded in the triage history
	Source string
	// ForceLookup bypasses the cache and the failed lookup rate limit
	ForceLookup bool
}

// Result is the outcome of triaging one inbound email
type Result struct {
	Success               bool               `json:"success"`
	RequestID             string             `json:"requestId"`
	LoadReference         *string            `json:"loadReference"`
	LoadInfo              *miner.LoadDetails `json:"loadInfo"`
	ResponseSubject       string             `json:"responseSubject"`
	ResponseBody          string             `json:"responseBody"`
	QuotefactoryAttempted bool               `json:"quotefactoryAttempted"`
	QuotefactorySuccess   bool               `json:"quotefactorySuccess"`
	ReplyToEmailID        string             `json:"replyToEmailId"`
	Timestamp             time.Time          `json:"timestamp"`
	Mode                  string             `json:"mode"`

	ReferenceRule string     `json:"-"`
	ReplyKind     reply.Kind `json:"-"`
	CacheHit      bool       `json:"-"`
	RateLimited   bool       `json:"-"`
	LookupRan     bool       `json:"-"`
	LookupError   string     `json:"-"`
	InquiryID     int64      `json:"-"`
}

// Reference returns the load reference, or "" when none was found
func (r *Result) Reference() string {
	if r.LoadReference == nil {
		return ""
	}
	return *r.LoadReference
}

// Service triages inbound load inquiries
type Service struct {
	extractor *parser.ReferenceExtractor
	miner     *miner.Miner
	formatter *reply.Formatter
	lookup    LoadLookup
	cache     DetailsCache
	history   History
	rateLimit ratelimit.Config
	logger    *slog.Logger
}

// NewService creates a triage service
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = &Config{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Service{
		extractor: config.Extractor,
		miner:     config.Miner,
		formatter: config.Formatter,
		lookup:    config.Lookup,
		cache:     config.Cache,
		history:   config.History,
		rateLimit: config.RateLimit,
		logger:    logger,
	}

	if s.extractor == nil {
		s.extractor = parser.NewReferenceExtractor(&parser.ExtractorConfig{Logger: logger})
	}
	if s.miner == nil {
		s.miner = miner.New(&miner.Config{Logger: logger})
	}
	if s.formatter == nil {
		formatter, err := reply.NewFormatter(&reply.Config{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to create reply formatter: %w", err)
		}
		s.formatter = formatter
	}

	return s, nil
}

// LookupEnabled reports whether references are looked up in the portal
func (s *Service) LookupEnabled() bool {
	return s.lookup != nil
}

// Triage extracts the load reference from msg, looks the load up when possible
// and renders the reply. It always produces a reply.
func (s *Service) Triage(ctx context.Context, msg email.RawEmail, opts Options) *Result {
	start := time.Now()
	result := &Result{
		Success:        true,
		RequestID:      uuid.NewString(),
		ReplyToEmailID: msg.ID,
		Mode:           ModeBasic,
	}
	if s.LookupEnabled() {
		result.Mode = ModePortal
	}

	logger := s.logger.With("request_id", result.RequestID, "email_id", msg.ID)

	text := msg.TextToScan()
	subject := msg.SubjectOrDefault()

	var reference string
	if match, ok := s.extractor.ExtractMatch(text); ok {
		reference = match.Value
		result.LoadReference = &reference
		result.ReferenceRule = match.Rule
	}

	if reference != "" && s.LookupEnabled() {
		result.QuotefactoryAttempted = true
		result.LoadInfo = s.resolveDetails(ctx, logger, reference, opts, result)
		result.QuotefactorySuccess = result.LoadInfo != nil
	}

	replyEmail := s.formatter.Format(reference, result.LoadInfo, subject, text)
	result.ResponseSubject = replyEmail.Subject
	result.ResponseBody = replyEmail.Body
	result.ReplyKind = replyEmail.Kind
	result.Timestamp = time.Now().UTC()

	s.record(logger, msg, subject, opts, result)

	logger.Info("Triaged inquiry",
		"reference", reference,
		"rule", result.ReferenceRule,
		"reply", string(result.ReplyKind),
		"lookup_ran", result.LookupRan,
		"cache_hit", result.CacheHit,
		"duration", time.Since(start))

	return result
}

// resolveDetails returns mined details from the cache or a portal lookup, or nil
func (s *Service) resolveDetails(ctx context.Context, logger *slog.Logger, reference string, opts Options, result *Result) *miner.LoadDetails {
	if s.cache != nil && !opts.ForceLookup {
		details, err := s.cache.Get(reference)
		if err != nil {
			logger.Warn("Failed to read lookup cache", "reference", reference, "error", err)
		} else if details != nil {
			result.CacheHit = true
			return details
		}
	}

	if s.rateLimited(logger, reference, opts) {
		result.RateLimited = true
		return nil
	}

	result.LookupRan = true
	pageText, err := s.lookup.Lookup(ctx, reference)
	if err != nil {
		result.LookupError = err.Error()

		var lookupErr *browser.LookupError
		if errors.As(err, &lookupErr) {
			logger.Warn("Portal lookup failed", "reference", reference, "step", lookupErr.Step, "error", lookupErr.Err)
		} else {
			logger.Warn("Portal lookup failed", "reference", reference, "error", err)
		}
		return nil
	}

	details, ok := s.miner.MineUsable(pageText)
	if !ok {
		result.LookupError = "page had no usable load details"
		logger.Info("Portal page had no usable load details", "reference", reference, "page_chars", len(pageText))
		return nil
	}

	if s.cache != nil {
		if err := s.cache.Set(reference, details); err != nil {
			logger.Warn("Failed to cache load details", "reference", reference, "error", err)
		}
	}
	return details
}

func (s *Service) rateLimited(logger *slog.Logger, reference string, opts Options) bool {
	if s.history == nil || s.rateLimit == nil {
		return false
	}

	var lastFailure *time.Time
	if !opts.ForceLookup && !s.rateLimit.GetDisableRateLimit() {
		failure, err := s.history.LastFailedLookup(reference)
		if err != nil {
			logger.Warn("Failed to check lookup history", "reference", reference, "error", err)
			return false
		}
		lastFailure = failure
	}

	check := ratelimit.CheckLookupRateLimit(s.rateLimit, lastFailure, opts.ForceLookup)
	if check.ShouldBlock {
		logger.Info("Skipping portal lookup after recent failure",
			"reference", reference,
			"reason", check.Reason,
			"retry_in", check.RemainingTime.Round(time.Second))
	}
	return check.ShouldBlock
}

func (s *Service) record(logger *slog.Logger, msg email.RawEmail, subject string, opts Options, result *Result) {
	if s.history == nil {
		return
	}

	source := opts.Source
	if source == "" {
		source = database.SourceWebhook
	}

	inquiry := &database.Inquiry{
		RequestID:       result.RequestID,
		EmailID:         msg.ID,
		Source:          source,
		Subject:         subject,
		LoadReference:   result.Reference(),
		ReferenceRule:   result.ReferenceRule,
		LookupAttempted: result.LookupRan,
		LookupSucceeded: result.LookupRan && result.LoadInfo != nil,
		LookupError:     result.LookupError,
		ReplyKind:       string(result.ReplyKind),
		ResponseSubject: result.ResponseSubject,
		ResponseBody:    result.ResponseBody,
		Mode:            result.Mode,
		CreatedAt:       result.Timestamp,
	}

	if result.LoadInfo != nil {
		if data, err := json.Marshal(result.LoadInfo); err == nil {
			inquiry.LoadInfo = data
		}
	}

	if err := s.history.Record(inquiry); err != nil {
		logger.Warn("Failed to record inquiry", "error", err)
		return
	}
	result.InquiryID = inquiry.ID
}
