package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/siteterminal/internal/application"
	authapp "github.com/khanhnv2901/siteterminal/internal/application/auth"
)

// openContainer opens the store named by --db, falling back to the config.
func openContainer(cmd *cobra.Command) (*application.Container, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = cliConfig.Store.Path
	}
	container, err := application.NewContainer(context.Background(), path, authapp.WithSessionTTL(cliConfig.Session.TTL))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return container, nil
}
