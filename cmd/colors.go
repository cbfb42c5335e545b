package cmd

import (
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass", "done":
		return colorSuccess(status)
	case "error", "fail", "failed":
		return colorError(status)
	case "warn", "warning", "skipped":
		return colorWarn(status)
	default:
		return status
	}
}

// formatSeverity colors an issue severity for terminal output.
func formatSeverity(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return colorError(severity)
	case "medium", "warning":
		return colorWarn(severity)
	case "low", "info":
		return colorInfo(severity)
	default:
		return severity
	}
}
