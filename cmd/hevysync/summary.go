package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/claude/hevysync/internal/upload"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Width(20)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func row(label string, value any) string {
	return "  " + labelStyle.Render(label) + fmt.Sprint(value)
}

func count(n int, bad bool) string {
	s := fmt.Sprint(n)
	switch {
	case n == 0:
		return s
	case bad:
		return errStyle.Render(s)
	default:
		return okStyle.Render(s)
	}
}

// printStats writes the pass summary.
func printStats(w io.Writer, stats *upload.Stats, dryRun bool) {
	title := "Sync Summary"
	if dryRun {
		title += " (dry run)"
	}

	lines := []string{
		"",
		headerStyle.Render("=== " + title + " ==="),
		row("Run:", stats.RunID),
		row("Fetched:", stats.Fetched),
		row("Skipped:", stats.Skipped),
		row("Accepted:", stats.Accepted),
		row("Already delivered:", stats.AlreadyDelivered),
	}
	if dryRun {
		lines = append(lines, row("Encoded:", count(stats.Encoded, false)))
	} else {
		lines = append(lines, row("Uploaded:", count(stats.Uploaded, false)))
	}
	lines = append(lines,
		row("Encode errors:", count(stats.EncodeErrors, true)),
		row("Upload errors:", count(stats.UploadErrors, true)),
		row("Abandoned:", count(stats.Abandoned, true)),
		row("Watermark:", formatWatermark(stats.WatermarkBefore, stats.WatermarkAfter)),
	)

	if len(stats.Artifacts) > 0 {
		lines = append(lines, "", "  Files written:")
		for _, a := range stats.Artifacts {
			lines = append(lines, "    - "+a)
		}
	}
	if len(stats.Errors) > 0 {
		lines = append(lines, "", "  Failures:")
		for _, err := range stats.Errors {
			lines = append(lines, "    - "+errStyle.Render(err.Error()))
		}
	}
	fmt.Fprintln(w, strings.Join(append(lines, ""), "\n"))
}

func formatWatermark(before, after time.Time) string {
	if before.Equal(after) {
		return before.Format(time.RFC3339) + " (unchanged)"
	}
	return before.Format(time.RFC3339) + " -> " + after.Format(time.RFC3339)
}
