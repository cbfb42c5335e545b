package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/khanhnv2901/siteterminal/internal/checker"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
	"github.com/khanhnv2901/siteterminal/internal/shared/security"
)

// maxReportSection caps the JSON embedded per analyzer.
const maxReportSection = 8000

// ReportSection is one analyzer's outcome in a report.
type ReportSection struct {
	Analyzer string
	Duration time.Duration
	Data     any
	Err      string
}

// Report is the rendered outcome of every public analyzer for one target.
type Report struct {
	Target      string
	GeneratedAt time.Time
	Sections    []ReportSection
}

func (r *Report) failed() int {
	n := 0
	for _, s := range r.Sections {
		if s.Err != "" {
			n++
		}
	}
	return n
}

var reportCmd = &cobra.Command{
	Use:   "report <url>",
	Short: "Run every public analyzer against a site and write a Markdown report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		output, _ := cmd.Flags().GetString("output")

		registry := checker.NewRegistry(newDeps(cliConfig, nil))
		report, err := buildReport(context.Background(), registry.Public(), args[0], timeout)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if output != "" {
			if !security.IsValidPath(output) {
				return fmt.Errorf("invalid output path %q", output)
			}
			f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.DefaultFilePerm)
			if err != nil {
				return fmt.Errorf("failed to create report: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := renderMarkdownReport(w, report); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		if output != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Report written to %s\n", colorSuccess("✓"), output)
		}
		return nil
	},
}

// buildReport runs entries one after another against raw. Failures are
// recorded per section rather than aborting the report.
func buildReport(ctx context.Context, entries []checker.Entry, raw string, timeout time.Duration) (*Report, error) {
	report := &Report{GeneratedAt: time.Now().UTC()}
	for _, entry := range entries {
		target, err := checker.ParseTarget(raw, entry.Input)
		if err != nil {
			return nil, err
		}
		if entry.Input != checker.InputDomain || report.Target == "" {
			report.Target = target.String()
		}

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		data, err := entry.Analyzer.Analyze(runCtx, target)
		cancel()

		section := ReportSection{Analyzer: entry.Name(), Duration: time.Since(start), Data: data}
		if err != nil {
			section.Err = err.Error()
			logger.Warnw("report section failed", "analyzer", entry.Name(), "error", err)
		}
		report.Sections = append(report.Sections, section)
	}
	return report, nil
}

func renderMarkdownReport(w io.Writer, report *Report) error {
	md := markdown.NewMarkdown(w)

	md.H1("SiteTerminal Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + report.Target + "`"},
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Analyzers", strconv.Itoa(len(report.Sections))},
			{"Failed", strconv.Itoa(report.failed())},
		},
	})
	md.PlainText("")

	if report.failed() > 0 {
		md.Warningf("%d analyzer(s) could not complete; see the sections below.", report.failed())
		md.PlainText("")
	}

	rows := make([][]string, 0, len(report.Sections))
	for _, s := range report.Sections {
		status := "✅ ok"
		if s.Err != "" {
			status = "❌ error"
		}
		rows = append(rows, []string{s.Analyzer, status, s.Duration.Round(time.Millisecond).String()})
	}
	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{Header: []string{"Analyzer", "Status", "Duration"}, Rows: rows})
	md.PlainText("")

	for _, s := range report.Sections {
		md.H2(s.Analyzer)
		md.PlainText("")
		if s.Err != "" {
			md.Cautionf("%s", s.Err)
			md.PlainText("")
			continue
		}
		if issues := sectionIssues(s.Data); len(issues) > 0 {
			md.BulletList(issues...)
			md.PlainText("")
		}
		body, err := json.MarshalIndent(s.Data, "", "  ")
		if err != nil {
			return err
		}
		md.CodeBlocks(markdown.SyntaxHighlight("json"), truncateText(string(body), maxReportSection))
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainTextf("Generated by %s %s. Passive checks only.", constants.AppName, Version)
	return md.Build()
}

// sectionIssues lists "severity: message" for a verdict carrying issues.
func sectionIssues(data any) []string {
	generic, err := toGeneric(data)
	if err != nil {
		return nil
	}
	fields, ok := generic.(map[string]any)
	if !ok {
		return nil
	}
	raw, _ := fields["issues"].([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		issue, _ := item.(map[string]any)
		severity, _ := issue["severity"].(string)
		message, _ := issue["message"].(string)
		if message != "" {
			out = append(out, fmt.Sprintf("**%s**: %s", severity, message))
		}
	}
	return out
}

func init() {
	reportCmd.Flags().Duration("timeout", 30*time.Second, "Timeout for each analyzer")
	reportCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
}
