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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"load-triage/internal/cli"
	"load-triage/internal/database"
	"load-triage/internal/email"
	"load-triage/internal/triage"
)

var (
	triageSubject  string
	triageID       string
	triageFile     string
	triageMIME     bool
	triageServer   string
	triageAPIKey   string
	triageForce    bool
	triageNoLookup bool
)

var triageCmd = &cobra.Command{
	Use:   "triage [text...]",
	Short: "Triage one inquiry and print the drafted reply",
	Long: `Triage one inbound inquiry: find the load reference, look the load up in
QuoteFactory when enabled, and print the reply that would be sent.

The inquiry body comes from arguments, --file or stdin. With --mime the input is
parsed as a full RFC 5322 message and its subject and Message-ID are used.
With --server the inquiry is posted to a running load-triage server instead.`,
	Example: `  load-triage triage --subject "Reefer out of Dallas" "Can you cover order #1234567?"
  load-triage triage --mime --file inquiry.eml
  load-triage triage --server http://localhost:8080 --file body.txt`,
	RunE: runTriage,
}

func init() {
	triageCmd.Flags().StringVar(&triageSubject, "subject", "", "subject of the inquiry")
	triageCmd.Flags().StringVar(&triageID, "id", "", "email ID recorded in history (default: generated)")
	triageCmd.Flags().StringVar(&triageFile, "file", "", "read the inquiry from a file ('-' for stdin)")
	triageCmd.Flags().BoolVar(&triageMIME, "mime", false, "parse the input as a raw RFC 5322 message")
	triageCmd.Flags().StringVar(&triageServer, "server", "", "triage through a running server at this URL")
	triageCmd.Flags().StringVar(&triageAPIKey, "api-key", "", "bearer token for --server (default: webhook.api_key)")
	triageCmd.Flags().BoolVar(&triageForce, "force", false, "bypass the lookup cache and the failed lookup rate limit")
	triageCmd.Flags().BoolVar(&triageNoLookup, "no-lookup", false, "skip the QuoteFactory lookup")
	triageCmd.MarkFlagsMutuallyExclusive("server", "force")
	triageCmd.MarkFlagsMutuallyExclusive("server", "no-lookup")
	rootCmd.AddCommand(triageCmd)
}

func runTriage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	msg, err := readInquiry(cmd, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if triageServer != "" {
		apiKey := triageAPIKey
		if apiKey == "" {
			apiKey = cfg.WebhookAPIKey
		}
		client := cli.NewClient(triageServer, apiKey, cfg.PortalTimeout+time.Minute)

		var result *triage.Result
		err := cli.WithSpinner(cmd.ErrOrStderr(), "Triaging on "+triageServer, spinnerEnabled(cmd), func() error {
			var err error
			result, err = client.Triage(ctx, msg)
			return err
		})
		if err != nil {
			return err
		}
		return formatter.PrintResult(result)
	}

	a, err := newApp(cfg, logger, appOptions{noLookup: triageNoLookup})
	if err != nil {
		return err
	}
	defer a.Close()

	opts := triage.Options{Source: database.SourceCLI, ForceLookup: triageForce}
	if !a.service.LookupEnabled() {
		return formatter.PrintResult(a.service.Triage(ctx, msg, opts))
	}

	var result *triage.Result
	_ = cli.WithSpinner(cmd.ErrOrStderr(), "Looking the load up in QuoteFactory", spinnerEnabled(cmd), func() error {
		result = a.service.Triage(ctx, msg, opts)
		return nil
	})
	return formatter.PrintResult(result)
}

// readInquiry builds the inbound email from the command input and flags
func readInquiry(cmd *cobra.Command, args []string) (email.RawEmail, error) {
	text, err := readInput(cmd, args, triageFile)
	if err != nil {
		return email.RawEmail{}, err
	}

	var msg email.RawEmail
	if triageMIME {
		parsed, err := email.ParseMIME(strings.NewReader(text))
		if err != nil {
			return email.RawEmail{}, fmt.Errorf("failed to parse message: %w", err)
		}
		msg = parsed.ToRawEmail()
	} else {
		if strings.TrimSpace(text) == "" {
			return email.RawEmail{}, errors.New("inquiry body is empty")
		}
		msg = email.RawEmail{BodyPreview: text}
	}

	if triageSubject != "" {
		msg.Subject = triageSubject
	}
	if triageID != "" {
		msg.ID = triageID
	}
	if msg.ID == "" {
		msg.ID = "cli-" + uuid.NewString()
	}
	return msg, nil
}
