// Package report renders the summary of each cycle for the operator.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/selfplay/internal/scheduler"
	"golang.org/x/term"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 80

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("13")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)
	keyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Width(12)
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// Lines returns the key/value lines of the report, without styling.
func Lines(r *scheduler.CycleReport) [][2]string {
	var lines [][2]string
	add := func(key, format string, args ...any) {
		lines = append(lines, [2]string{key, fmt.Sprintf(format, args...)})
	}
	if r.InputCheckpoint < 0 {
		add("checkpoint", "untrained")
	} else {
		add("checkpoint", "#%d", r.InputCheckpoint)
	}
	if a := r.Assignment; a != nil {
		add("slots", "current=%d write=%d read=%v", a.CurrentSlot, a.WriteSlot, a.ReadSlots)
	}
	if r.EvictedFiles > 0 {
		add("evicted", "%d batches (%s)", r.EvictedFiles, humanize.Bytes(uint64(r.EvictedBytes)))
	}
	result := r.Result
	if result == nil {
		return lines
	}
	if len(result.Collectors) > 0 {
		var dropped, steps int
		for _, c := range result.Collectors {
			dropped += c.Dropped
			steps += c.Steps
		}
		add("collected", "%d episodes, %d steps, %s (%d dropped)", result.Episodes(), steps,
			humanize.Bytes(uint64(result.Bytes())), dropped)
	}
	if t := result.Trainer; t != nil {
		add("training", "%d files (%d seed), %d examples, loss=%.4f", len(r.TrainingSet.Files),
			r.TrainingSet.SeedCount, t.Examples, t.Loss)
		if t.Checkpoint != nil {
			add("new ckpt", "#%d (%s)", t.Checkpoint.CycleID, humanize.Bytes(uint64(len(t.Checkpoint.Weights))))
		} else {
			add("new ckpt", "none")
		}
	}
	if e := result.Eval; e != nil && e.Matches() > 0 {
		add("evaluation", "%s", e)
	}
	add("elapsed", "%s", result.Elapsed.Round(time.Millisecond))
	if result.Stopped {
		add("stopped", "collection stopped early")
	}
	return lines
}

// Render the report in a box at most width wide.
func Render(r *scheduler.CycleReport, width int) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Cycle %d", r.Cycle)))
	for _, line := range Lines(r) {
		sb.WriteString("\n")
		sb.WriteString(keyStyle.Render(line[0]))
		sb.WriteString(line[1])
	}
	style := boxStyle
	if width > 0 {
		style = style.MaxWidth(width)
	}
	return style.Render(sb.String())
}

// Print the report to w, fitting the terminal width if w is one.
func Print(w io.Writer, r *scheduler.CycleReport) {
	fmt.Fprintln(w, Render(r, Width(w)))
}

// Width of the terminal behind w, or DefaultWidth.
func Width(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return DefaultWidth
}
