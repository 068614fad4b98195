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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"load-triage/internal/cli"
	"load-triage/internal/database"
)

var (
	inquiriesLimit  int
	inquiriesServer string
	inquiriesAPIKey string
)

var inquiriesCmd = &cobra.Command{
	Use:     "inquiries [email-id]",
	Aliases: []string{"history"},
	Short:   "Show triage history",
	Long: `List the most recent triaged inquiries, or show the reply drafted for one
email ID. Reads the local database, or a running server with --server.`,
	Example: `  load-triage inquiries --limit 10
  load-triage inquiries AAMk-42 --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInquiries,
}

func init() {
	inquiriesCmd.Flags().IntVarP(&inquiriesLimit, "limit", "n", database.DefaultListLimit, "maximum number of inquiries to list")
	inquiriesCmd.Flags().StringVar(&inquiriesServer, "server", "", "read history from a running server at this URL")
	inquiriesCmd.Flags().StringVar(&inquiriesAPIKey, "api-key", "", "bearer token for --server (default: webhook.api_key)")
	rootCmd.AddCommand(inquiriesCmd)
}

func runInquiries(cmd *cobra.Command, args []string) error {
	if inquiriesLimit <= 0 {
		return fmt.Errorf("invalid limit: %d", inquiriesLimit)
	}

	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if inquiriesServer != "" {
		apiKey := inquiriesAPIKey
		if apiKey == "" {
			apiKey = cfg.WebhookAPIKey
		}
		client := cli.NewClient(inquiriesServer, apiKey, 30*time.Second)
		if len(args) == 1 {
			inquiry, err := client.Inquiry(ctx, args[0])
			if err != nil {
				return err
			}
			return formatter.PrintInquiry(inquiry)
		}
		inquiries, err := client.Inquiries(ctx, inquiriesLimit)
		if err != nil {
			return err
		}
		return formatter.PrintInquiries(inquiries)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		inquiry, err := db.Inquiries.GetByEmailID(args[0])
		if err != nil {
			return err
		}
		return formatter.PrintInquiry(inquiry)
	}
	inquiries, err := db.Inquiries.List(inquiriesLimit)
	if err != nil {
		return err
	}
	return formatter.PrintInquiries(inquiries)
}
