package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/khanhnv2901/siteterminal/internal/shared/constants"
)

var cfgFile string
var debug bool
var logger = zap.NewNop().Sugar()

var rootCmd = &cobra.Command{
	Use:           constants.AppName,
	Short:         "Passive website security inspector with a JSON API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		l, err := newLogger(debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l.Sugar()

		cliConfig = loadCLIConfig()
		applyConfigDefaults(cmd)
		logger.Debugw("config loaded", "config_file", viper.ConfigFileUsed(), "store", cliConfig.Store.Path)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// initConfig reads $HOME/.siteterminal.yaml (or --config) and the
// SITETERMINAL_* environment.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME")
		viper.SetConfigName("." + constants.AppName)
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix(strings.ToUpper(constants.AppName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("integrations.shodan_api_key", "SITETERMINAL_INTEGRATIONS_SHODAN_API_KEY", "SHODAN_API_KEY")
	_ = viper.BindEnv("integrations.hibp_api_key", "SITETERMINAL_INTEGRATIONS_HIBP_API_KEY", "HIBP_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		if cfgFile == "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.siteterminal.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable development logging")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (default under the XDG data directory)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}
