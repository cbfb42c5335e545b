package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/siteterminal/internal/checker"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatText = "text"
)

var outputFormats = []string{formatJSON, formatYAML, formatText}

var checkCmd = &cobra.Command{
	Use:   "check <analyzer> <target...>",
	Short: "Run one analyzer locally against one or more targets",
	Long: `Run an analyzer directly, without the API server.

Targets may be bare hostnames or URLs; the form each analyzer needs is
derived from the input. Runs share a worker pool and a global rate limit.

Use "check --list" to see every analyzer.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if list, _ := cmd.Flags().GetBool("list"); list {
			return nil
		}
		return cobra.MinimumNArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := checker.NewRegistry(newDeps(cliConfig, nil))
		out := cmd.OutOrStdout()

		if list, _ := cmd.Flags().GetBool("list"); list {
			printAnalyzerList(out, registry)
			return nil
		}

		format, _ := cmd.Flags().GetString("format")
		if !validFormat(format) {
			return &UnknownFormatError{Format: format, Allowed: outputFormats}
		}
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		rateLimit, _ := cmd.Flags().GetInt("rate")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		entry, err := registry.Lookup(args[0])
		if err != nil {
			return err
		}
		targets, err := parseTargets(entry, args[1:])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runner := &checker.Runner{Concurrency: concurrency, RateLimit: rateLimit, Timeout: timeout}
		results := runner.Run(ctx, targets, entry.Analyzer, func(target string, result checker.RunResult, duration float64) error {
			if result.Error != "" {
				logger.Warnw("analyzer run failed", "analyzer", result.Analyzer, "target", target, "error", result.Error)
				return nil
			}
			logger.Debugw("analyzer run completed", "analyzer", result.Analyzer, "target", target, "duration_ms", duration)
			return nil
		})

		if err := writeResults(out, format, results); err != nil {
			return err
		}
		if failed := countFailed(results); failed > 0 {
			return &RunFailedError{Failed: failed, Total: len(results)}
		}
		return nil
	},
}

func validFormat(format string) bool {
	for _, f := range outputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// parseTargets validates every raw target for entry before anything runs.
func parseTargets(entry checker.Entry, raw []string) ([]checker.Target, error) {
	targets := make([]checker.Target, 0, len(raw))
	for _, r := range raw {
		t, err := checker.ParseTarget(r, entry.Input)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func countFailed(results []checker.RunResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}

func printAnalyzerList(w io.Writer, registry *checker.Registry) {
	for _, name := range registry.Names() {
		entry, _ := registry.Lookup(name)
		access := "public"
		if entry.Privileged {
			access = colorWarn("privileged")
		}
		fmt.Fprintf(w, "%-16s %-12s %s\n", name, entry.Input, access)
	}
}

// toGeneric round-trips v through JSON so YAML output uses the JSON field
// names and text output can walk the verdict.
func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeResults(w io.Writer, format string, results []checker.RunResult) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case formatYAML:
		generic, err := toGeneric(results)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		for _, r := range results {
			if err := writeTextResult(w, r); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeTextResult(w io.Writer, r checker.RunResult) error {
	status := "ok"
	if r.Error != "" {
		status = "error"
	}
	fmt.Fprintf(w, "%s %s %s (%s)\n", formatStatusWithColor(status), colorInfo(r.Analyzer), r.Target,
		time.Duration(r.Duration*float64(time.Millisecond)).Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(w, "  %s\n", r.Error)
		return nil
	}

	generic, err := toGeneric(r.Data)
	if err != nil {
		return err
	}
	fields, ok := generic.(map[string]any)
	if !ok {
		fmt.Fprintf(w, "  %v\n", generic)
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := fields[k].(type) {
		case map[string]any, []any:
			if k == "issues" {
				writeIssues(w, v)
				continue
			}
			b, _ := json.Marshal(v)
			fmt.Fprintf(w, "  %s: %s\n", k, truncateText(string(b), 120))
		default:
			fmt.Fprintf(w, "  %s: %v\n", k, v)
		}
	}
	return nil
}

func writeIssues(w io.Writer, v any) {
	issues, _ := v.([]any)
	if len(issues) == 0 {
		fmt.Fprintln(w, "  issues: none")
		return
	}
	fmt.Fprintln(w, "  issues:")
	for _, raw := range issues {
		issue, _ := raw.(map[string]any)
		severity, _ := issue["severity"].(string)
		message, _ := issue["message"].(string)
		fmt.Fprintf(w, "    - [%s] %s\n", formatSeverity(severity), message)
	}
}

func truncateText(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}

func init() {
	checkCmd.Flags().String("format", formatText, "Output format: "+strings.Join(outputFormats, "|"))
	checkCmd.Flags().Int("concurrency", 4, "Maximum concurrent runs")
	checkCmd.Flags().Int("rate", 2, "Runs per second across all workers (0 = unlimited)")
	checkCmd.Flags().Duration("timeout", 30*time.Second, "Timeout for each run")
	checkCmd.Flags().Bool("list", false, "List analyzers and exit")
}
