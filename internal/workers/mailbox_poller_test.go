package workers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"load-triage/internal/database"
	"load-triage/internal/email"
	"load-triage/internal/triage"
)

type mockMailbox struct {
	mock.Mock
	mu       sync.Mutex
	searches int
}

func (m *mockMailbox) Search(ctx context.Context, query string) ([]email.Message, error) {
	m.mu.Lock()
	m.searches++
	m.mu.Unlock()

	args := m.Called(ctx, query)
	messages, _ := args.Get(0).([]email.Message)
	return messages, args.Error(1)
}

func (m *mockMailbox) CreateReplyDraft(ctx context.Context, original *email.Message, subject, body string) (string, error) {
	args := m.Called(ctx, original, subject, body)
	return args.String(0), args.Error(1)
}

func (m *mockMailbox) searchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searches
}

func setupPoller(t *testing.T, dryRun bool) (*MailboxPoller, *mockMailbox, *database.DB) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "poller.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service, err := triage.NewService(&triage.Config{History: db.Inquiries})
	require.NoError(t, err)

	mailbox := &mockMailbox{}
	poller := NewMailboxPoller(&MailboxPollerConfig{
		CheckInterval: time.Hour,
		SearchQuery:   "is:unread",
		DryRun:        dryRun,
	}, mailbox, service, db.Inquiries, nil)

	return poller, mailbox, db
}

var inbox = []email.Message{
	{ID: "m1", ThreadID: "t1", From: "shipper@example.com", Subject: "Load", PlainText: "Can you cover order 1234567?"},
	{ID: "m2", ThreadID: "t2", From: "broker@example.com", Subject: "Truck?", PlainText: "Need a truck tomorrow"},
}

func TestMailboxPoller_RunOnce_CreatesDrafts(t *testing.T) {
	poller, mailbox, db := setupPoller(t, false)

	mailbox.On("Search", mock.Anything, "is:unread").Return(inbox, nil)
	mailbox.On("CreateReplyDraft", mock.Anything, mock.MatchedBy(func(m *email.Message) bool { return m.ID == "m1" }),
		"Re: Load", mock.AnythingOfType("string")).Return("d1", nil).Once()
	mailbox.On("CreateReplyDraft", mock.Anything, mock.MatchedBy(func(m *email.Message) bool { return m.ID == "m2" }),
		"Re: Truck? - DAT Reference Number Needed", mock.AnythingOfType("string")).Return("d2", nil).Once()

	summary, err := poller.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Messages)
	assert.Equal(t, 2, summary.Drafts)
	assert.Zero(t, summary.Errors)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "1234567", summary.Results[0].Reference())
	mailbox.AssertExpectations(t)

	recorded, err := db.Inquiries.GetByEmailID("m1")
	require.NoError(t, err)
	assert.Equal(t, "d1", recorded.DraftID)
	assert.Equal(t, database.SourceGmail, recorded.Source)

	// A second run skips everything already triaged
	summary, err = poller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Empty(t, summary.Results)
	mailbox.AssertNumberOfCalls(t, "CreateReplyDraft", 2)

	metrics := poller.GetMetrics()
	assert.Equal(t, int64(2), metrics.TotalRuns.Load())
	assert.Equal(t, int64(2), metrics.Triaged.Load())
	assert.Equal(t, int64(2), metrics.DraftsCreated.Load())
}

func TestMailboxPoller_RunOnce_DryRun(t *testing.T) {
	poller, mailbox, db := setupPoller(t, true)
	mailbox.On("Search", mock.Anything, "is:unread").Return(inbox[:1], nil)

	summary, err := poller.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Len(t, summary.Results, 1)
	assert.Zero(t, summary.Drafts)
	mailbox.AssertNotCalled(t, "CreateReplyDraft", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	recorded, err := db.Inquiries.GetByEmailID("m1")
	require.NoError(t, err)
	assert.Empty(t, recorded.DraftID)
}

func TestMailboxPoller_RunOnce_Errors(t *testing.T) {
	t.Run("search failure", func(t *testing.T) {
		poller, mailbox, _ := setupPoller(t, false)
		mailbox.On("Search", mock.Anything, "is:unread").Return(nil, errors.New("quota exceeded"))

		_, err := poller.RunOnce(context.Background())
		assert.ErrorContains(t, err, "quota exceeded")
		assert.Equal(t, "quota exceeded", poller.GetMetrics().LastError.Load())
	})

	t.Run("draft failure", func(t *testing.T) {
		poller, mailbox, db := setupPoller(t, false)
		mailbox.On("Search", mock.Anything, "is:unread").Return(inbox[:1], nil)
		mailbox.On("CreateReplyDraft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("insufficient scope"))

		summary, err := poller.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Errors)
		assert.Zero(t, summary.Drafts)

		recorded, err := db.Inquiries.GetByEmailID("m1")
		require.NoError(t, err)
		assert.Empty(t, recorded.DraftID)
	})
}

func TestMailboxPoller_RunOnce_RetriesFailedDraft(t *testing.T) {
	poller, mailbox, db := setupPoller(t, false)
	isM1 := mock.MatchedBy(func(m *email.Message) bool { return m.ID == "m1" })

	mailbox.On("Search", mock.Anything, "is:unread").Return(inbox[:1], nil)
	mailbox.On("CreateReplyDraft", mock.Anything, isM1, "Re: Load", mock.AnythingOfType("string")).
		Return("", errors.New("backend error")).Once()
	mailbox.On("CreateReplyDraft", mock.Anything, isM1, "Re: Load", mock.AnythingOfType("string")).
		Return("d1", nil).Once()

	summary, err := poller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Zero(t, summary.Drafts)

	// The stored reply is drafted without triaging again
	summary, err = poller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Drafts)
	assert.Zero(t, summary.Skipped)
	assert.Empty(t, summary.Results)

	recorded, err := db.Inquiries.GetByEmailID("m1")
	require.NoError(t, err)
	assert.Equal(t, "d1", recorded.DraftID)

	inquiries, err := db.Inquiries.List(0)
	require.NoError(t, err)
	assert.Len(t, inquiries, 1)

	summary, err = poller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	mailbox.AssertNumberOfCalls(t, "CreateReplyDraft", 2)
	assert.Equal(t, int64(1), poller.GetMetrics().Triaged.Load())
}

func TestMailboxPoller_StartStop(t *testing.T) {
	poller, mailbox, _ := setupPoller(t, true)
	mailbox.On("Search", mock.Anything, "is:unread").Return(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	assert.True(t, poller.IsRunning())
	assert.Eventually(t, func() bool { return mailbox.searchCount() == 1 }, time.Second, 10*time.Millisecond,
		"the first poll runs immediately")

	poller.Pause()
	assert.True(t, poller.IsPaused())
	poller.Resume()
	assert.False(t, poller.IsPaused())

	cancel()
	assert.Eventually(t, func() bool { return !poller.IsRunning() }, time.Second, 10*time.Millisecond)
	poller.Stop()
}

func TestMailboxPoller_StopWithoutStart(t *testing.T) {
	poller, _, _ := setupPoller(t, true)
	poller.Stop()
	assert.False(t, poller.IsRunning())
}
