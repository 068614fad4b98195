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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"load-triage/internal/parser"
)

var extractFile string

var extractCmd = &cobra.Command{
	Use:   "extract [text...]",
	Short: "Find the load reference in a piece of text",
	Long: `Run the reference extraction rules over text given as arguments, read from
--file, or piped on stdin, and print the first valid load reference.`,
	Example: `  load-triage extract "Is order #1234567 still open?"
  load-triage extract --file inquiry.txt --format json`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractFile, "file", "", "read text from a file ('-' for stdin)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	text, err := readInput(cmd, args, extractFile)
	if err != nil {
		return err
	}

	extractor := parser.NewReferenceExtractor(&parser.ExtractorConfig{
		Policy: cfg.ReferencePolicy,
		Logger: logger,
	})
	match, found := extractor.ExtractMatch(text)
	return formatter.PrintMatch(match, found)
}

// readInput returns the command's text input from args, a file or stdin
func readInput(cmd *cobra.Command, args []string, file string) (string, error) {
	if len(args) > 0 {
		if file != "" {
			return "", errors.New("give text as arguments or --file, not both")
		}
		return strings.Join(args, " "), nil
	}

	var r io.Reader
	switch file {
	case "":
		if f, ok := cmd.InOrStdin().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			return "", errors.New("no input: pass text as arguments, use --file, or pipe it on stdin")
		}
		r = cmd.InOrStdin()
	case "-":
		r = cmd.InOrStdin()
	default:
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}
