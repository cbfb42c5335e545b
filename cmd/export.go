package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	historyapp "github.com/khanhnv2901/siteterminal/internal/application/history"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
	"github.com/khanhnv2901/siteterminal/internal/shared/security"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write search records as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		command, _ := cmd.Flags().GetString("command")
		userID, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")
		dir, _ := cmd.Flags().GetString("dir")

		path, err := exportPath(output, dir, time.Now())
		if err != nil {
			return err
		}

		container, err := openContainer(cmd)
		if err != nil {
			return err
		}
		defer container.Close()

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.DefaultFilePerm)
		if err != nil {
			return fmt.Errorf("failed to create export: %w", err)
		}
		n, err := container.HistoryService.Export(context.Background(), f, historyapp.ExportFilter{
			Command: command,
			UserID:  userID,
			Limit:   limit,
		})
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		logger.Infow("export completed", "rows", n, "path", path)
		fmt.Fprintf(cmd.OutOrStdout(), "%s Exported %d record(s) to %s\n", colorSuccess("✓"), n, path)
		return nil
	},
}

// exportPath returns output when given, else the dated export filename
// inside dir.
func exportPath(output, dir string, now time.Time) (string, error) {
	if output != "" {
		if !security.IsValidPath(output) {
			return "", fmt.Errorf("invalid output path %q", output)
		}
		return output, nil
	}
	if dir == "" {
		dir = "."
	}
	return security.ResolveWithin(dir, historyapp.ExportFilename(now))
}

func init() {
	exportCmd.Flags().String("command", "", "Only export records for this command")
	exportCmd.Flags().String("user", "", "Only export records for this user ID")
	exportCmd.Flags().Int("limit", historyapp.ExportDefaultLimit, "Maximum records to export")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: dated file in --dir)")
	exportCmd.Flags().String("dir", ".", "Directory for the dated export file")
}
