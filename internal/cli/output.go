package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"load-triage/internal/database"
	"load-triage/internal/miner"
	"load-triage/internal/parser"
	"load-triage/internal/triage"
	"load-triage/internal/workers"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ColorEnabled reports whether f is a terminal that should get coloured output
func ColorEnabled(f *os.File, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	return termenv.NewOutput(f).EnvColorProfile() != termenv.Ascii
}

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{title: plain, label: plain, success: plain, failure: plain, muted: plain}
	}
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		label:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("240")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

// OutputFormatter handles different output formats
type OutputFormatter struct {
	out    io.Writer
	errOut io.Writer
	format string
	quiet  bool
	styles styles
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(out, errOut io.Writer, format string, quiet, color bool) (*OutputFormatter, error) {
	if format == "" {
		format = FormatText
	}
	if format != FormatText && format != FormatJSON {
		return nil, fmt.Errorf("unsupported format: %s (must be one of: text, json)", format)
	}
	return &OutputFormatter{
		out:    out,
		errOut: errOut,
		format: format,
		quiet:  quiet,
		styles: newStyles(color),
	}, nil
}

func (f *OutputFormatter) writeJSON(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintResult prints a triage result with the reply it produced
func (f *OutputFormatter) PrintResult(result *triage.Result) error {
	if f.format == FormatJSON {
		return f.writeJSON(result)
	}
	if f.quiet {
		fmt.Fprintln(f.out, result.Reference())
		return nil
	}

	reference := result.Reference()
	if reference == "" {
		reference = f.styles.muted.Render("none")
	}

	f.field("Reference", reference)
	if result.ReferenceRule != "" {
		f.field("Rule", result.ReferenceRule)
	}
	f.field("Mode", result.Mode)
	if result.QuotefactoryAttempted {
		lookup := f.styles.failure.Render("failed")
		switch {
		case result.CacheHit:
			lookup = f.styles.success.Render("cached")
		case result.QuotefactorySuccess:
			lookup = f.styles.success.Render("found")
		case result.RateLimited:
			lookup = f.styles.muted.Render("skipped after recent failure")
		}
		f.field("Lookup", lookup)
		if result.LookupError != "" {
			f.field("Lookup error", result.LookupError)
		}
	}
	if result.LoadInfo != nil {
		f.printDetails(*result.LoadInfo)
	}

	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, f.styles.title.Render("Subject: "+result.ResponseSubject))
	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, result.ResponseBody)
	return nil
}

// PrintMatch prints the reference found in a text, if any
func (f *OutputFormatter) PrintMatch(match parser.Match, found bool) error {
	if f.format == FormatJSON {
		response := struct {
			LoadReference *string `json:"loadReference"`
			Rule          string  `json:"rule,omitempty"`
		}{}
		if found {
			response.LoadReference = &match.Value
			response.Rule = match.Rule
		}
		return f.writeJSON(response)
	}

	if !found {
		if !f.quiet {
			fmt.Fprintln(f.out, f.styles.muted.Render("No load reference found."))
		}
		return nil
	}
	if f.quiet {
		fmt.Fprintln(f.out, match.Value)
		return nil
	}
	f.field("Reference", match.Value)
	f.field("Rule", match.Rule)
	f.field("Matched", strings.TrimSpace(match.Raw))
	return nil
}

// PrintDetails prints mined load details
func (f *OutputFormatter) PrintDetails(details miner.LoadDetails) error {
	if f.format == FormatJSON {
		return f.writeJSON(details)
	}
	f.printDetails(details)
	return nil
}

func (f *OutputFormatter) printDetails(details miner.LoadDetails) {
	f.field("Pickup", details.PickupDisplay())
	f.field("Delivery", details.DeliveryDisplay())
	f.field("Commodity", details.Commodity)
	f.field("Weight", details.Weight)
	f.field("Rate", details.Rate)
	if details.Temperature != "" {
		f.field("Temperature", details.Temperature)
	}
}

// PrintInquiries prints triage history entries
func (f *OutputFormatter) PrintInquiries(inquiries []database.Inquiry) error {
	if f.format == FormatJSON {
		return f.writeJSON(inquiries)
	}
	if f.quiet {
		for _, inquiry := range inquiries {
			fmt.Fprintln(f.out, inquiry.EmailID)
		}
		return nil
	}
	if len(inquiries) == 0 {
		fmt.Fprintln(f.out, "No inquiries found.")
		return nil
	}

	w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tEMAIL\tSOURCE\tREFERENCE\tLOOKUP\tREPLY\tCREATED")
	for _, inquiry := range inquiries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inquiry.ID,
			truncate(inquiry.EmailID, 20),
			inquiry.Source,
			orDash(inquiry.LoadReference),
			lookupStatus(inquiry),
			inquiry.ReplyKind,
			inquiry.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// PrintInquiry prints one triage history entry
func (f *OutputFormatter) PrintInquiry(inquiry *database.Inquiry) error {
	if f.format == FormatJSON {
		return f.writeJSON(inquiry)
	}
	if f.quiet {
		fmt.Fprintln(f.out, inquiry.EmailID)
		return nil
	}

	f.field("Inquiry ID", fmt.Sprintf("%d", inquiry.ID))
	f.field("Request ID", inquiry.RequestID)
	f.field("Email", inquiry.EmailID)
	f.field("Source", inquiry.Source)
	f.field("Subject", inquiry.Subject)
	f.field("Reference", orDash(inquiry.LoadReference))
	f.field("Lookup", lookupStatus(*inquiry))
	if inquiry.LookupError != "" {
		f.field("Lookup error", inquiry.LookupError)
	}
	if inquiry.DraftID != "" {
		f.field("Draft", inquiry.DraftID)
	}
	f.field("Created", inquiry.CreatedAt.Local().Format("2006-01-02 15:04:05"))

	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, f.styles.title.Render("Subject: "+inquiry.ResponseSubject))
	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, inquiry.ResponseBody)
	return nil
}

// PrintPollSummary prints the outcome of one mailbox polling run
func (f *OutputFormatter) PrintPollSummary(summary *workers.PollSummary) error {
	if f.format == FormatJSON {
		return f.writeJSON(summary)
	}
	if f.quiet {
		return nil
	}

	if len(summary.Results) > 0 {
		w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tREFERENCE\tREPLY SUBJECT")
		for _, result := range summary.Results {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				truncate(result.ReplyToEmailID, 20),
				orDash(result.Reference()),
				truncate(result.ResponseSubject, 60))
		}
		w.Flush()
		fmt.Fprintln(f.out)
	}

	f.PrintSuccess(fmt.Sprintf("%d messages, %d triaged, %d skipped, %d drafts, %d errors",
		summary.Messages, len(summary.Results), summary.Skipped, summary.Drafts, summary.Errors))
	return nil
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Fprintln(f.out, f.styles.success.Render("✓ "+message))
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	fmt.Fprintln(f.errOut, f.styles.failure.Render(fmt.Sprintf("✗ Error: %v", err)))
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Fprintln(f.out, f.styles.muted.Render("ℹ "+message))
	}
}

func (f *OutputFormatter) field(label, value string) {
	fmt.Fprintf(f.out, "%s %s\n", f.styles.label.Render(label+":"), value)
}

func lookupStatus(inquiry database.Inquiry) string {
	switch {
	case !inquiry.LookupAttempted:
		return "-"
	case inquiry.LookupSucceeded:
		return "ok"
	default:
		return "failed"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
