package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"load-triage/internal/cli"
	"load-triage/internal/database"
)

// resetFlags restores the package-level flag values between runs of rootCmd
func resetFlags() {
	configFile, envFile, format, logLevel = "", "", cli.FormatText, ""
	quiet, noColor = false, false
	extractFile, mineFile = "", ""
	triageSubject, triageID, triageFile, triageServer, triageAPIKey = "", "", "", "", ""
	triageMIME, triageForce, triageNoLookup = false, false, false
	inquiriesLimit, inquiriesServer, inquiriesAPIKey = database.DefaultListLimit, "", ""
	pollOnce, pollDryRun, servePoll = false, false, false
	tokenClientID, tokenClientSecret, tokenPort = "", "", 8090
}

// execute runs the root command with args and stdin, returning stdout
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)

	err := rootCmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("LOAD_TRIAGE_DATABASE_PATH", dbPath)
	t.Setenv("LOAD_TRIAGE_PORTAL_ENABLED", "false")
	t.Setenv("LOAD_TRIAGE_LOGGING_LEVEL", "error")
	return dbPath
}

func TestExtractCommand(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name     string
		stdin    string
		args     []string
		expected string
	}{
		{"text from args", "", []string{"extract", "-q", "Can you cover order #1234567?"}, "1234567\n"},
		{"text from stdin", "Ref: 7654321 still available?", []string{"extract", "-q"}, "7654321\n"},
		{"nothing found", "", []string{"extract", "hello there"}, "No load reference found.\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestExtractCommand_JSON(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "", "extract", "--format", "json", "what's the rate on order #1234567")
	require.NoError(t, err)

	var response map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "1234567", response["loadReference"])
	assert.NotEmpty(t, response["rule"])
}

func TestExtractCommand_ArgsAndFile(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "extract", "--file", "inquiry.txt", "order 1234567")
	assert.ErrorContains(t, err, "not both")
}

func TestTriageCommand_RecordsHistory(t *testing.T) {
	dbPath := setupEnv(t)

	out, err := execute(t, "", "triage", "--format", "json", "--no-lookup",
		"--id", "cli-42", "--subject", "Reefer out of Dallas",
		"Can you cover order #1234567?")
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "1234567", result["loadReference"])
	assert.Equal(t, "Re: Reefer out of Dallas", result["responseSubject"])
	assert.Equal(t, "cli-42", result["replyToEmailId"])

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	inquiry, err := db.Inquiries.GetByEmailID("cli-42")
	require.NoError(t, err)
	assert.Equal(t, database.SourceCLI, inquiry.Source)
	assert.Equal(t, "1234567", inquiry.LoadReference)
}

func TestTriageCommand_MIME(t *testing.T) {
	setupEnv(t)

	raw := "From: Dispatch <dispatch@carrier.example>\r\n" +
		"To: loads@broker.example\r\n" +
		"Subject: Truck available\r\n" +
		"Message-ID: <abc@carrier.example>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Do you still have anything out of Memphis?\r\n"

	out, err := execute(t, raw, "triage", "--mime", "--no-lookup")
	require.NoError(t, err)
	assert.Contains(t, out, "Subject: Re: Truck available - DAT Reference Number Needed")
}

func TestTriageCommand_EmptyBody(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "   ", "triage", "--no-lookup")
	assert.ErrorContains(t, err, "empty")
}

func TestInquiriesCommand(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "triage", "--no-lookup", "--id", "cli-1", "order 1234567 please")
	require.NoError(t, err)
	_, err = execute(t, "", "triage", "--no-lookup", "--id", "cli-2", "anything available?")
	require.NoError(t, err)

	out, err := execute(t, "", "inquiries", "-q")
	require.NoError(t, err)
	assert.Equal(t, "cli-2\ncli-1\n", out)

	out, err = execute(t, "", "inquiries", "cli-1")
	require.NoError(t, err)
	assert.Contains(t, out, "1234567")

	_, err = execute(t, "", "inquiries", "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = execute(t, "", "inquiries", "--limit", "0")
	assert.ErrorContains(t, err, "invalid limit")
}

func TestMineCommand(t *testing.T) {
	setupEnv(t)

	page := "Pickup Dallas, TX 10/21 Delivery Memphis, TN 10/22 Commodity: Frozen Chicken Weight 42,000 lbs Rate $2,150"
	out, err := execute(t, page, "mine", "--format", "json")
	require.NoError(t, err)

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &details))
	assert.Contains(t, details, "commodity")
}

func TestPollCommand_RequiresGmail(t *testing.T) {
	setupEnv(t)
	t.Setenv("LOAD_TRIAGE_GMAIL_CLIENT_ID", "")
	t.Setenv("GMAIL_CLIENT_ID", "")

	_, err := execute(t, "", "poll", "--once")
	assert.ErrorContains(t, err, "gmail credentials are not configured")
}

func TestUnknownFormat(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "extract", "--format", "yaml", "1234567")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestAwaitAuthCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type outcome struct {
		code string
		err  error
	}
	done := make(chan outcome, 1)
	listening := make(chan string, 1)

	go func() {
		code, err := awaitAuthCode(ctx, "127.0.0.1:0", "state-1", func(addr string) { listening <- addr })
		done <- outcome{code, err}
	}()

	addr := <-listening

	resp, err := http.Get("http://" + addr + "/callback?state=wrong&code=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/callback?state=state-1&code=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	result := <-done
	require.NoError(t, result.err)
	assert.Equal(t, "abc", result.code)
}

func TestAwaitAuthCode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	_, err := awaitAuthCode(ctx, "127.0.0.1:0", "state-1", func(string) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)
}
