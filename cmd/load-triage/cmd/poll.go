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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"load-triage/internal/cli"
	"load-triage/internal/workers"
)

var (
	pollOnce   bool
	pollDryRun bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Triage new Gmail inquiries and create reply drafts",
	Long: `Search Gmail for new inquiries, triage each one, and save the reply as a
draft on the original thread. Messages already in the triage history are
skipped. Without --once the search repeats every gmail.poll_interval until
interrupted.`,
	Example: `  load-triage poll --once --dry-run
  load-triage poll --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "run a single poll and print a summary")
	pollCmd.Flags().BoolVar(&pollDryRun, "dry-run", false, "triage without creating drafts")
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	poller, err := newPoller(ctx, cfg, a, pollDryRun, logger)
	if err != nil {
		return err
	}

	if pollOnce {
		var summary *workers.PollSummary
		err := cli.WithSpinner(cmd.ErrOrStderr(), "Polling Gmail", spinnerEnabled(cmd), func() error {
			var err error
			summary, err = poller.RunOnce(ctx)
			return err
		})
		if err != nil {
			return err
		}
		return formatter.PrintPollSummary(summary)
	}

	poller.Start(ctx)
	<-ctx.Done()
	poller.Stop()

	metrics := poller.GetMetrics()
	logger.Info("Mailbox poller stopped",
		"runs", metrics.TotalRuns.Load(),
		"triaged", metrics.Triaged.Load(),
		"drafts", metrics.DraftsCreated.Load(),
		"errors", metrics.Errors.Load())
	return nil
}
