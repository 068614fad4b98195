// Copyright 2024 Load Triage
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"load-triage/internal/config"
	"load-triage/internal/email"
	"load-triage/internal/handlers"
	"load-triage/internal/server"
	"load-triage/internal/workers"
)

var servePoll bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook and history API",
	Long: `Serve the HTTP API. Inbound emails are posted to /api/webhook as JSON or to
/api/inbound/mime as raw RFC 5322 messages; every request gets a reply body back.

With --poll the Gmail mailbox poller runs alongside the server and can be
paused and resumed through /api/admin/poller.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&servePoll, "poll", false, "also poll Gmail for inquiries and draft replies")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	a, err := newApp(cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	h := &server.Handlers{
		Triage:    handlers.NewTriageHandler(a.service, a.extractor, a.miner, logger),
		Inquiries: handlers.NewInquiryHandler(a.db.Inquiries, logger),
	}
	if a.pool != nil {
		h.Health = handlers.NewHealthHandler(a.db, a.pool, a.cache)
	} else {
		h.Health = handlers.NewHealthHandler(a.db, nil, a.cache)
	}

	if servePoll {
		poller, err := newPoller(ctx, cfg, a, false, logger)
		if err != nil {
			return err
		}
		h.Admin = handlers.NewAdminHandler(poller, logger)

		pollCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		poller.Start(pollCtx)
		defer poller.Stop()
	}

	srv := &http.Server{
		Addr: cfg.Address(),
		Handler: server.NewRouter(h, &server.RouterConfig{
			APIKey:         cfg.WebhookAPIKey,
			RequestTimeout: cfg.PortalTimeout + time.Minute,
			Logger:         logger,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PortalTimeout + 2*time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Serving load-triage API",
		"auth", cfg.WebhookAPIKey != "",
		"lookup_enabled", a.service.LookupEnabled(),
		"poller", servePoll)

	return server.NewSignalHandler(srv, 30*time.Second, logger).Run(ctx)
}

// newMailbox connects to Gmail with the configured OAuth2 credentials
func newMailbox(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*email.GmailClient, error) {
	if !cfg.HasGmailCredentials() {
		return nil, errors.New("gmail credentials are not configured (set gmail.client_id, gmail.client_secret and gmail.refresh_token)")
	}
	client, err := email.NewGmailClient(ctx, &email.GmailConfig{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		RefreshToken: cfg.GmailRefreshToken,
		AccessToken:  cfg.GmailAccessToken,
		UserEmail:    cfg.GmailUserEmail,
		MaxResults:   cfg.GmailMaxResults,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gmail: %w", err)
	}
	return client, nil
}

// newPoller builds a mailbox poller over Gmail; drafts are skipped when dryRun is set
// or drafting is disabled in the configuration
func newPoller(ctx context.Context, cfg *config.Config, a *app, dryRun bool, logger *slog.Logger) (*workers.MailboxPoller, error) {
	mailbox, err := newMailbox(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return workers.NewMailboxPoller(&workers.MailboxPollerConfig{
		CheckInterval:     cfg.GmailPollInterval,
		SearchQuery:       cfg.GmailQuery,
		DryRun:            dryRun || !cfg.GmailCreateDrafts,
		ProcessingTimeout: cfg.PortalTimeout + time.Minute,
	}, mailbox, a.service, a.db.Inquiries, logger), nil
}
