package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Iron-Ham/shipyard/internal/job"
)

var titler = cases.Title(language.English)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	summaryStyle = lipgloss.NewStyle().Bold(true)

	stateStyles = map[job.BuildState]lipgloss.Style{
		job.StateSuccess:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		job.StateFailure:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		job.StateUnstable: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		job.StateAborted:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		job.StateUnknown:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
)

// maxDetail truncates error details in the table; the file reports keep them whole.
const maxDetail = 60

// Terminal prints a summary table of the report.
type Terminal struct {
	Out   io.Writer
	Color bool
}

// NewTerminal creates a Terminal writing to out. Colors are enabled when out
// is a terminal.
func NewTerminal(out io.Writer) *Terminal {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Terminal{Out: out, Color: color}
}

// StateLabel renders a state for people: "SUCCESS" becomes "Success".
func StateLabel(s job.BuildState) string {
	return titler.String(strings.ToLower(s.String()))
}

func (t *Terminal) style(s lipgloss.Style, text string) string {
	if !t.Color {
		return text
	}
	return s.Render(text)
}

// Write prints one line per result followed by a summary.
func (t *Terminal) Write(_ context.Context, report *job.Report) error {
	if report == nil || report.Len() == 0 {
		_, err := fmt.Fprintln(t.Out, t.style(mutedStyle, "No jobs were run."))
		return err
	}

	header := []string{"JOB", "ENV", "STATUS", "BUILD", "DURATION", "KIND", "ERROR"}
	rows := make([][]string, 0, report.Len())
	for _, r := range report.Results {
		build := "-"
		if r.BuildNumber > 0 {
			build = "#" + strconv.Itoa(r.BuildNumber)
		}
		rows = append(rows, []string{
			r.JobIdentity, r.Environment, StateLabel(r.State), build,
			r.Duration().Round(time.Second).String(), ErrorKindLabel(r.ErrorKind),
			truncate(r.Detail, maxDetail),
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var sb strings.Builder
	for i, h := range header {
		sb.WriteString(t.pad(t.style(headerStyle, h), widths[i], i == len(header)-1))
	}
	sb.WriteString("\n")
	for n, row := range rows {
		state := report.Results[n].State
		for i, cell := range row {
			switch i {
			case 2:
				cell = t.style(stateStyles[state], cell)
			case 5:
				cell = t.style(stateStyles[state], cell)
			case 6:
				cell = t.style(mutedStyle, cell)
			}
			sb.WriteString(t.pad(cell, widths[i], i == len(row)-1))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(t.style(summaryStyle, Summary(report)))
	sb.WriteString("\n")

	_, err := io.WriteString(t.Out, sb.String())
	return err
}

// pad right-pads cell to width visible columns plus a gutter.
func (t *Terminal) pad(cell string, width int, last bool) string {
	if last {
		return strings.TrimRight(cell, " ")
	}
	return cell + strings.Repeat(" ", width-lipgloss.Width(cell)+2)
}

// Summary is a one-line account of a report, e.g.
// "5 jobs in 2m3s: 3 Success, 1 Failure, 1 Unknown".
func Summary(report *job.Report) string {
	counts := report.Counts()
	var parts []string
	for _, s := range job.States() {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, StateLabel(s)))
		}
	}
	noun := "jobs"
	if report.Len() == 1 {
		noun = "job"
	}
	elapsed := report.FinishedAt.Sub(report.StartedAt).Round(time.Second)
	return fmt.Sprintf("%d %s in %s: %s", report.Len(), noun, elapsed, strings.Join(parts, ", "))
}

// truncate cuts s to at most width terminal cells, ending in "...".
func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}
