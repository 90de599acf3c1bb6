package observability

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/rahul/relay/internal/engine"
)

// TermWidth returns the width of f if it is a terminal, else 80.
func TermWidth(f *os.File) int {
	if f == nil {
		return 80
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return clamp(w, 40, 160)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Reporter renders run results for a terminal.
type Reporter struct {
	Pretty bool
	Width  int
}

func NewReporter(pretty bool, width int) *Reporter {
	if width <= 0 {
		width = 80
	}
	return &Reporter{Pretty: pretty, Width: width}
}

// Run renders the waves, every step record and the answer of res.
func (r *Reporter) Run(res *engine.RunResult) string {
	var sb strings.Builder

	r.heading(&sb, "Run "+res.RunID)
	for i, wave := range res.Waves {
		fmt.Fprintf(&sb, "wave %d: %v\n", i, wave)
	}
	sb.WriteString("\n")
	sb.WriteString(r.Steps(res.Records))
	sb.WriteString("\n")

	if res.OverallError != nil {
		fmt.Fprintf(&sb, "%s %s\n", r.fail("error:"), r.fit(res.OverallError.Error(), 7))
	}
	fmt.Fprintf(&sb, "%s %s\n", r.accent("answer:"), r.fit(res.Answer(), 8))
	return sb.String()
}

// Steps renders one line per record, followed by its error if it failed.
func (r *Reporter) Steps(records []engine.StepRecord) string {
	if len(records) == 0 {
		return "No steps recorded\n"
	}

	var sb strings.Builder
	for _, rec := range records {
		mark := r.ok("✓")
		if rec.Status != engine.StatusSucceeded {
			mark = r.fail("✗")
		}
		degraded := ""
		if rec.DigestDegraded {
			degraded = " [degraded]"
		}
		line := fmt.Sprintf("[%d] %s: %s (%s)%s", rec.Index, rec.HandlerID, rec.Task,
			rec.Duration().Round(time.Millisecond), degraded)
		sb.WriteString(mark + " " + r.fit(line, 2))
		sb.WriteString("\n")
		if rec.Status == engine.StatusFailed {
			sb.WriteString(r.fit(fmt.Sprintf("    %s: %s", rec.Kind, rec.Error), 0))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Status renders a tracker snapshot on one line.
func (r *Reporter) Status(s StatusSnapshot) string {
	uptime := time.Since(s.Since).Round(time.Second)
	if s.Phase == PhaseIdle {
		line := fmt.Sprintf("%s | runs %d | up %v", s.Phase, s.RunsFinished, uptime)
		if s.LastRunID != "" {
			line += fmt.Sprintf(" | last %s", s.LastRunID)
			if s.LastError != "" {
				line += " (failed)"
			}
		}
		return line
	}
	return fmt.Sprintf("%s %s | wave %d/%d | steps %d/%d | active %v | up %v",
		s.Phase, s.RunID, s.Wave+1, s.Waves, s.Completed, s.Total, s.ActiveSteps, uptime)
}

func (r *Reporter) heading(sb *strings.Builder, title string) {
	if r.Pretty {
		sb.WriteString(color.CyanString(title) + "\n")
	} else {
		sb.WriteString(title + "\n")
	}
	sb.WriteString(strings.Repeat("─", clamp(r.Width, 10, 60)) + "\n")
}

// fit truncates line to the reporter width less reserved, counting runes.
func (r *Reporter) fit(line string, reserved int) string {
	width := r.Width - reserved
	runes := []rune(line)
	if width <= 3 || len(runes) <= width {
		return line
	}
	return string(runes[:width-3]) + "..."
}

func (r *Reporter) ok(s string) string {
	if !r.Pretty {
		return s
	}
	return color.GreenString(s)
}

func (r *Reporter) fail(s string) string {
	if !r.Pretty {
		return s
	}
	return color.RedString(s)
}

func (r *Reporter) accent(s string) string {
	if !r.Pretty {
		return s
	}
	return color.HiBlackString(s)
}
