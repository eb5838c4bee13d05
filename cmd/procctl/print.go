package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ngenohkevin/procdeck/internal/process"
	"github.com/ngenohkevin/procdeck/internal/system"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7F8C8D"))
)

func statusText(s process.Status) string {
	switch s {
	case process.StatusRunning:
		return runningStyle.Render(string(s))
	case process.StatusError:
		return errorStyle.Render(string(s))
	default:
		return mutedStyle.Render(string(s))
	}
}

func commandText(r process.Record) string {
	all := append([]string{r.Command}, r.Args...)
	return strings.TrimSpace(strings.Join(all, " "))
}

func uptimeText(r process.Record, now time.Time) string {
	if r.StartTime == nil {
		return "-"
	}
	return system.FormatUptime(now.Sub(*r.StartTime))
}

func renderTable(records []process.Record, now time.Time) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("ID", "STATUS", "PID", "UPTIME", "COMMAND")

	for _, r := range records {
		pid := "-"
		if r.PID != 0 {
			pid = fmt.Sprint(r.PID)
		}
		t.Row(r.ID, statusText(r.Status), pid, uptimeText(r, now), commandText(r))
	}
	return t.String()
}

func printTable(w io.Writer, records []process.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no processes")
		return
	}
	fmt.Fprintln(w, renderTable(records, time.Now()))
}

func printSummary(w io.Writer, s process.Summary) {
	fmt.Fprintf(w, "%d total, %s, %s, %s\n", s.Total,
		runningStyle.Render(fmt.Sprintf("%d running", s.Running)),
		mutedStyle.Render(fmt.Sprintf("%d stopped", s.Stopped)),
		errorStyle.Render(fmt.Sprintf("%d error", s.Error)))
}
