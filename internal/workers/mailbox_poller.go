package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"load-triage/internal/database"
	"load-triage/internal/email"
	"load-triage/internal/triage"
)

// Mailbox is the inbox the poller reads inquiries from and writes reply drafts to
type Mailbox interface {
	Search(ctx context.Context, query string) ([]email.Message, error)
	CreateReplyDraft(ctx context.Context, original *email.Message, subject, body string) (string, error)
}

// Triager produces a reply for an inbound email
type Triager interface {
	Triage(ctx context.Context, msg email.RawEmail, opts triage.Options) *triage.Result
}

// InquiryStore tracks which messages were already triaged and drafted
type InquiryStore interface {
	GetByEmailID(emailID string) (*database.Inquiry, error)
	SetDraftID(id int64, draftID string) error
}

// MailboxPollerConfig configures the mailbox poller behavior
type MailboxPollerConfig struct {
	CheckInterval     time.Duration
	SearchQuery       string
	DryRun            bool
	ProcessingTimeout time.Duration
}

// PollMetrics tracks polling statistics
type PollMetrics struct {
	TotalRuns     atomic.Int64
	Messages      atomic.Int64
	Triaged       atomic.Int64
	Skipped       atomic.Int64
	Errors        atomic.Int64
	DraftsCreated atomic.Int64
	LastRun       atomic.Value // time.Time
	LastError     atomic.Value // string
}

// PollSummary reports the outcome of one polling run
type PollSummary struct {
	Messages int              `json:"messages"`
	Skipped  int              `json:"skipped"`
	Errors   int              `json:"errors"`
	Drafts   int              `json:"drafts"`
	Results  []*triage.Result `json:"results"`
}

// MailboxPoller triages unseen inquiries from a mailbox on a fixed interval
type MailboxPoller struct {
	ctx     context.Context
	cancel  context.CancelFunc
	config  *MailboxPollerConfig
	mailbox Mailbox
	triager Triager
	store   InquiryStore
	paused  atomic.Bool
	started atomic.Bool
	logger  *slog.Logger
	metrics *PollMetrics
	done    chan struct{}
}

// NewMailboxPoller creates a new mailbox poller
func NewMailboxPoller(
	config *MailboxPollerConfig,
	mailbox Mailbox,
	triager Triager,
	store InquiryStore,
	logger *slog.Logger,
) *MailboxPoller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MailboxPoller{
		ctx:     ctx,
		cancel:  cancel,
		config:  config,
		mailbox: mailbox,
		triager: triager,
		store:   store,
		logger:  logger,
		metrics: &PollMetrics{},
		done:    make(chan struct{}),
	}
}

// Start runs a poll immediately and then on every interval until ctx is cancelled or Stop is called
func (p *MailboxPoller) Start(ctx context.Context) {
	p.logger.Info("Starting mailbox poller",
		"check_interval", p.config.CheckInterval,
		"search_query", p.config.SearchQuery,
		"dry_run", p.config.DryRun)

	if !p.started.CompareAndSwap(false, true) {
		return
	}

	stop := context.AfterFunc(ctx, p.cancel)
	go func() {
		defer stop()
		p.pollingLoop()
	}()
}

// Stop stops the poller and waits for an in-flight run to finish
func (p *MailboxPoller) Stop() {
	p.logger.Info("Stopping mailbox poller")
	p.cancel()
	if p.started.Load() {
		<-p.done
	}
}

// Pause temporarily pauses polling
func (p *MailboxPoller) Pause() {
	p.paused.Store(true)
	p.logger.Info("Mailbox poller paused")
}

// Resume resumes polling
func (p *MailboxPoller) Resume() {
	p.paused.Store(false)
	p.logger.Info("Mailbox poller resumed")
}

// IsPaused returns true if the poller is currently paused
func (p *MailboxPoller) IsPaused() bool {
	return p.paused.Load()
}

// IsRunning returns true until the poller is stopped
func (p *MailboxPoller) IsRunning() bool {
	select {
	case <-p.ctx.Done():
		return false
	default:
		return true
	}
}

// GetMetrics returns current polling metrics
func (p *MailboxPoller) GetMetrics() *PollMetrics {
	return p.metrics
}

func (p *MailboxPoller) pollingLoop() {
	defer close(p.done)

	ticker := time.NewTicker(p.config.CheckInterval)
	defer ticker.Stop()

	p.runScheduled()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info("Mailbox polling loop stopped")
			return
		case <-ticker.C:
			if !p.paused.Load() {
				p.runScheduled()
			}
		}
	}
}

func (p *MailboxPoller) runScheduled() {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.ProcessingTimeout)
	defer cancel()

	if _, err := p.RunOnce(ctx); err != nil {
		p.logger.Error("Mailbox polling run failed", "error", err)
	}
}

// RunOnce searches the mailbox once and triages every message not seen before
func (p *MailboxPoller) RunOnce(ctx context.Context) (*PollSummary, error) {
	start := time.Now()
	p.metrics.TotalRuns.Add(1)
	p.metrics.LastRun.Store(start)

	messages, err := p.mailbox.Search(ctx, p.config.SearchQuery)
	if err != nil {
		p.metrics.LastError.Store(err.Error())
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}

	summary := &PollSummary{Messages: len(messages)}
	p.metrics.Messages.Add(int64(len(messages)))

	for i := range messages {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		p.processMessage(ctx, &messages[i], summary)
	}

	p.logger.Info("Mailbox polling run complete",
		"messages", summary.Messages,
		"triaged", len(summary.Results),
		"skipped", summary.Skipped,
		"drafts", summary.Drafts,
		"errors", summary.Errors,
		"duration", time.Since(start))

	return summary, nil
}

func (p *MailboxPoller) processMessage(ctx context.Context, msg *email.Message, summary *PollSummary) {
	logger := p.logger.With("message_id", msg.ID, "subject", msg.Subject)

	previous, err := p.store.GetByEmailID(msg.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		logger.Warn("Failed to check triage history", "error", err)
		p.recordError(summary, err)
		return
	}
	if previous != nil {
		if p.config.DryRun || previous.DraftID != "" {
			logger.Debug("Message already triaged")
			summary.Skipped++
			p.metrics.Skipped.Add(1)
			return
		}
		// Triaged before but the draft was never saved
		logger.Info("Retrying reply draft", "inquiry_id", previous.ID)
		p.createDraft(ctx, logger, msg, previous.ID, previous.ResponseSubject, previous.ResponseBody, summary)
		return
	}

	result := p.triager.Triage(ctx, msg.ToRawEmail(), triage.Options{Source: database.SourceGmail})
	summary.Results = append(summary.Results, result)
	p.metrics.Triaged.Add(1)

	if p.config.DryRun {
		logger.Info("Dry run, not creating reply draft", "reply_subject", result.ResponseSubject)
		return
	}

	p.createDraft(ctx, logger, msg, result.InquiryID, result.ResponseSubject, result.ResponseBody, summary)
}

func (p *MailboxPoller) createDraft(ctx context.Context, logger *slog.Logger, msg *email.Message, inquiryID int64, subject, body string, summary *PollSummary) {
	draftID, err := p.mailbox.CreateReplyDraft(ctx, msg, subject, body)
	if err != nil {
		logger.Warn("Failed to create reply draft", "error", err)
		p.recordError(summary, err)
		return
	}
	summary.Drafts++
	p.metrics.DraftsCreated.Add(1)

	if inquiryID != 0 {
		if err := p.store.SetDraftID(inquiryID, draftID); err != nil {
			logger.Warn("Failed to record draft ID", "draft_id", draftID, "error", err)
		}
	}
}

func (p *MailboxPoller) recordError(summary *PollSummary, err error) {
	summary.Errors++
	p.metrics.Errors.Add(1)
	p.metrics.LastError.Store(err.Error())
}
