package bootstrap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"secure-scrub/internal/domain"
	"secure-scrub/internal/inspect"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", cyan("→"), fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", yellow("⚠"), fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", red("✗"), fmt.Sprintf(format, args...))
}

// progressView drives a progress bar from orchestrator callbacks. The bar is
// created on the first update because the file count is only known after
// enumeration.
type progressView struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	bar     *progressbar.ProgressBar
}

func newProgressView(w io.Writer, enabled bool) *progressView {
	return &progressView{w: w, enabled: enabled}
}

func (p *progressView) update(progress domain.Progress) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		p.bar = progressbar.NewOptions(progress.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription("scrubbing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
	}
	p.bar.Describe(filepath.Base(progress.Path))
	_ = p.bar.Set(progress.Done)
}

func (p *progressView) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// renderOutcomes prints one row per file followed by any warnings.
func renderOutcomes(w io.Writer, result domain.BatchResult) {
	if len(result.Outcomes) == 0 {
		printWarning(w, "No files found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
		bold("STATUS"), bold("FILE"), bold("BEFORE"), bold("AFTER"), bold("SAVED"), bold("RESULT"))

	var warnings []string
	for _, outcome := range result.Outcomes {
		name := displayPath(outcome.Source)
		switch outcome.Status {
		case domain.StatusSuccess:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				green("✓ ok"),
				name,
				humanize.IBytes(uint64(outcome.OriginalSize)),
				humanize.IBytes(uint64(outcome.FinalSize)),
				savedPercent(outcome.OriginalSize, outcome.FinalSize),
				fmt.Sprintf("%s → %s", outcome.Strategy, filepath.Base(outcome.FinalPath)),
			)
		case domain.StatusSkipped:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				yellow("- skip"), name, "-", "-", "-", dim(outcomeNote(outcome)))
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				red("✗ fail"), name, "-", "-", "-", outcomeNote(outcome))
		}
		for _, warning := range outcome.Warnings {
			warnings = append(warnings, fmt.Sprintf("%s: %s", name, warning))
		}
	}
	_ = tw.Flush()

	if len(warnings) > 0 {
		fmt.Fprintln(w)
		for _, warning := range warnings {
			printWarning(w, "%s", warning)
		}
	}
}

// renderSummary prints the totals line.
func renderSummary(w io.Writer, result domain.BatchResult) {
	var saved int64
	for _, outcome := range result.Outcomes {
		if outcome.Status == domain.StatusSuccess && outcome.OriginalSize > outcome.FinalSize {
			saved += outcome.OriginalSize - outcome.FinalSize
		}
	}

	fmt.Fprintf(w, "\n%s %s, %s, %s",
		bold("Done:"),
		green(fmt.Sprintf("%d succeeded", result.Succeeded)),
		yellow(fmt.Sprintf("%d skipped", result.Skipped)),
		red(fmt.Sprintf("%d failed", result.Failed)),
	)
	if saved > 0 {
		fmt.Fprintf(w, " (saved %s)", humanize.IBytes(uint64(saved)))
	}
	fmt.Fprintln(w)
}

// renderDiagnostics prints a doctor report with install suggestions for
// missing tools.
func renderDiagnostics(w io.Writer, report domain.DiagnosticReport, goos string, available func(string) bool) {
	for _, item := range report.Items {
		switch item.Status {
		case domain.DiagnosticStatusPass:
			printSuccess(w, "%s: %s", bold(item.Name), item.Message)
			continue
		case domain.DiagnosticStatusWarn:
			printWarning(w, "%s: %s", bold(item.Name), item.Message)
		default:
			printError(w, "%s: %s", bold(item.Name), item.Message)
		}
		if item.Hint != "" {
			fmt.Fprintf(w, "    %s\n", dim(item.Hint))
		}
		if toolID, ok := strings.CutPrefix(item.ID, "tool_"); ok {
			for _, hint := range installHints(goos, toolID, available) {
				fmt.Fprintf(w, "    %s %s\n", cyan("$"), hint)
			}
		}
	}
}

// renderInspection prints the metadata fields found in one file.
func renderInspection(w io.Writer, report inspect.Report) {
	details := []string{string(report.Format), humanize.IBytes(uint64(report.Size))}
	if report.Width > 0 && report.Height > 0 {
		details = append(details, fmt.Sprintf("%dx%d", report.Width, report.Height))
	}
	if report.Pages > 0 {
		details = append(details, humanize.Comma(int64(report.Pages))+" pages")
	}
	fmt.Fprintf(w, "%s %s\n", bold(displayPath(report.Path)), dim("("+strings.Join(details, ", ")+")"))

	if report.Clean() {
		printSuccess(w, "no identifying metadata")
		return
	}
	for _, field := range report.Fields {
		fmt.Fprintf(w, "  %s %s: %s\n", yellow("•"), field.Name, field.Value)
	}
}

func outcomeNote(outcome domain.Outcome) string {
	switch {
	case outcome.Reason != "" && outcome.Message != "":
		return outcome.Reason + ": " + outcome.Message
	case outcome.Reason != "":
		return outcome.Reason
	default:
		return outcome.Message
	}
}

func savedPercent(original, final int64) string {
	if original <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(original-final)*100/float64(original))
}

// displayPath shortens paths below the working directory.
func displayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
