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
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"load-triage/internal/cli"
	"load-triage/internal/config"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

var (
	configFile string
	envFile    string
	format     string
	quiet      bool
	noColor    bool
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "load-triage",
	Short: "Freight load inquiry triage",
	Long: `Load Triage reads inbound freight inquiry emails, finds the load reference,
looks the load up in QuoteFactory when configured, and drafts a reply.

CONFIGURATION:
    Settings come from defaults, an optional config file (config.yaml, .toml or
    .json in ., ./config or ~/.load-triage), a .env file and LOAD_TRIAGE_*
    environment variables, in increasing priority.

    LOAD_TRIAGE_SERVER_PORT            - HTTP port (default: 8080, legacy PORT)
    LOAD_TRIAGE_DATABASE_PATH          - SQLite database (default: ./load-triage.db)
    LOAD_TRIAGE_WEBHOOK_API_KEY        - Bearer token required on /api routes
    LOAD_TRIAGE_PORTAL_ENABLED         - Look loads up in QuoteFactory (default: false)
    LOAD_TRIAGE_PORTAL_USERNAME        - QuoteFactory login (legacy QUOTEFACTORY_USERNAME)
    LOAD_TRIAGE_PORTAL_PASSWORD        - QuoteFactory password (legacy QUOTEFACTORY_PASSWORD)
    LOAD_TRIAGE_BROWSER_USER_DATA_DIR  - Chrome profile holding a logged-in session
    LOAD_TRIAGE_GMAIL_CLIENT_ID        - OAuth2 client ID for mailbox polling
    LOAD_TRIAGE_GMAIL_CLIENT_SECRET    - OAuth2 client secret
    LOAD_TRIAGE_GMAIL_REFRESH_TOKEN    - OAuth2 refresh token

EXAMPLES:
    # Serve the webhook API
    load-triage serve

    # Find the load reference in a message
    echo "Can you cover order #1234567?" | load-triage extract

    # Triage a saved email without a portal lookup
    load-triage triage --mime --file inquiry.eml --no-lookup

    # Triage unread Gmail once without creating drafts
    load-triage poll --once --dry-run`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(Version)); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load (default is .env in current directory)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", cli.FormatText, "Output format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// loadConfiguration loads configuration and applies command line overrides
func loadConfiguration() (*config.Config, error) {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = strings.ToLower(logLevel)
	}
	return cfg, nil
}

// newLogger builds the structured logger described by the logging settings
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newFormatter returns the output formatter for the global output flags
func newFormatter(cmd *cobra.Command) (*cli.OutputFormatter, error) {
	color := false
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		color = cli.ColorEnabled(f, noColor) && format != cli.FormatJSON
	}
	return cli.NewOutputFormatter(cmd.OutOrStdout(), cmd.ErrOrStderr(), format, quiet, color)
}

// spinnerEnabled reports whether progress spinners can animate on stderr
func spinnerEnabled(cmd *cobra.Command) bool {
	f, ok := cmd.ErrOrStderr().(*os.File)
	return ok && !quiet && os.Getenv("CI") == "" && cli.ColorEnabled(f, noColor)
}
