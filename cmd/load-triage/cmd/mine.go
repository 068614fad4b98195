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
	"github.com/spf13/cobra"

	"load-triage/internal/miner"
)

var mineFile string

var mineCmd = &cobra.Command{
	Use:   "mine [text...]",
	Short: "Mine load details from saved portal page text",
	Long: `Mine pickup, delivery, commodity, weight, rate and temperature from the text
of a QuoteFactory load page. Useful for checking the miner against a saved page.`,
	Example: `  load-triage mine --file load-page.txt
  pbpaste | load-triage mine --format json`,
	RunE: runMine,
}

func init() {
	mineCmd.Flags().StringVar(&mineFile, "file", "", "read page text from a file ('-' for stdin)")
	rootCmd.AddCommand(mineCmd)
}

func runMine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	text, err := readInput(cmd, args, mineFile)
	if err != nil {
		return err
	}

	m := miner.New(&miner.Config{MinPageChars: cfg.PortalMinPageChars, Logger: logger})
	details, usable := m.MineUsable(text)
	if !usable {
		logger.Warn("Page text does not look like a load page; details may be missing",
			"chars", len(text),
			"min_chars", m.MinPageChars())
		mined := m.Mine(text)
		details = &mined
	}
	return formatter.PrintDetails(*details)
}
