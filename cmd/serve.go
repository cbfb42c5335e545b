package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/khanhnv2901/siteterminal/internal/api"
	"github.com/khanhnv2901/siteterminal/internal/application"
	authapp "github.com/khanhnv2901/siteterminal/internal/application/auth"
	"github.com/khanhnv2901/siteterminal/internal/cache"
	"github.com/khanhnv2901/siteterminal/internal/checker"
	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

// sweepInterval is how often the server drops expired limiter buckets,
// cache entries, sessions and finished jobs.
const sweepInterval = time.Minute

// serveOptions are the effective serve settings after flags and config merge.
type serveOptions struct {
	Addr            string
	AuthToken       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimit       int
	RateWindow      time.Duration
	DBPath          string
	CacheEnabled    bool
}

// resolveServeOptions reads the serve flags, taking config values for any
// flag left at its default.
func resolveServeOptions(flags *pflag.FlagSet, cfg *CLIConfig) serveOptions {
	opts := serveOptions{}
	opts.Addr, _ = flags.GetString("addr")
	opts.AuthToken, _ = flags.GetString("auth-token")
	opts.ShutdownTimeout, _ = flags.GetDuration("shutdown-timeout")
	opts.CORSOrigins, _ = flags.GetStringSlice("cors-origins")
	opts.RateLimit, _ = flags.GetInt("rate-limit")
	opts.RateWindow, _ = flags.GetDuration("rate-window")
	opts.DBPath, _ = flags.GetString("db")
	noCache, _ := flags.GetBool("no-cache")

	setString := func(name, value string, dst *string) {
		if f := flags.Lookup(name); (f == nil || !f.Changed) && value != "" {
			*dst = value
		}
	}
	setString("addr", cfg.Server.Addr, &opts.Addr)
	setString("auth-token", cfg.Server.AuthToken, &opts.AuthToken)
	setString("db", cfg.Store.Path, &opts.DBPath)
	applyDurationDefault(flags, "shutdown-timeout", cfg.Server.ShutdownTimeout, func(v time.Duration) { opts.ShutdownTimeout = v })
	applyDurationDefault(flags, "rate-window", cfg.RateLimit.Window, func(v time.Duration) { opts.RateWindow = v })
	applyIntDefault(flags, "rate-limit", cfg.RateLimit.Max, func(v int) { opts.RateLimit = v })
	if f := flags.Lookup("cors-origins"); (f == nil || !f.Changed) && len(cfg.Server.CORSOrigins) > 0 {
		opts.CORSOrigins = cfg.Server.CORSOrigins
	}
	opts.CacheEnabled = cfg.Cache.Enabled && !noCache
	return opts
}

func printBanner(w io.Writer) {
	banner := figure.NewFigure(constants.AppName, "doom", true)
	fmt.Fprintln(w, colorInfo(banner.String()))
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inspector as a JSON API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := resolveServeOptions(cmd.Flags(), cliConfig)
		zl := logger.Desugar()

		container, err := application.NewContainer(context.Background(), opts.DBPath, authapp.WithSessionTTL(cliConfig.Session.TTL))
		if err != nil {
			return err
		}
		defer func() {
			if err := container.Close(); err != nil {
				zl.Warn("failed to close store", zap.Error(err))
			}
		}()

		var store cache.Store = cache.NoopStore{}
		if opts.CacheEnabled {
			store = cache.NewMemoryStore()
		}

		server := api.NewServer(api.Config{
			Registry:    checker.NewRegistry(newDeps(cliConfig, nil)),
			Auth:        container.AuthService,
			History:     container.HistoryService,
			Health:      container.DB,
			Cache:       store,
			RateLimit:   opts.RateLimit,
			RateWindow:  opts.RateWindow,
			AuthToken:   opts.AuthToken,
			CORSOrigins: opts.CORSOrigins,
			Logger:      zl,
		})

		sweepCtx, stopSweep := context.WithCancel(context.Background())
		defer stopSweep()
		go server.Run(sweepCtx, sweepInterval)

		httpServer := &http.Server{
			Addr:              opts.Addr,
			Handler:           server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Analyzer runs (port scans, quick scans) can take a while.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  120 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			printBanner(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "%s API server listening on %s (store: %s)\n", colorInfo("→"), opts.Addr, container.DB.Path())
			fmt.Fprintf(cmd.OutOrStdout(), "%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Server shutdown complete\n", colorSuccess("✓"))
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", defaultAddr, "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Static token that authenticates X-Auth-Token callers as admin")
	serveCmd.Flags().Duration("shutdown-timeout", defaultShutdownTimeout, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", constants.RateLimitMax, "Analyzer calls per client per window (0 = disabled)")
	serveCmd.Flags().Duration("rate-window", constants.RateLimitWindow, "Rate limit window")
	serveCmd.Flags().Bool("no-cache", false, "Disable the analyzer response cache")
}
