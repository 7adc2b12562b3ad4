// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rmcnulty/evergreen-cli/internal/config"
	"github.com/rmcnulty/evergreen-cli/internal/observability"
)

var (
	cfgFile string
	// appConfig is the fully resolved configuration, populated by the root
	// command's PersistentPreRunE before any subcommand runs.
	appConfig *config.Config
)

// NewRootCommand builds the command tree. A fresh instance per invocation
// keeps flag state from leaking between runs.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "evergreen",
		Short:   "Evergreen fetches SSO-gated portal downloads announced by email.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				// Fall back to a plain logger so the error is still visible.
				observability.InitializeLogger(config.LoggerConfig{
					Level: "info", Format: "console", ServiceName: "evergreen-cli",
				})
				return err
			}
			appConfig = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting evergreen", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newWatchCmd())
	return rootCmd
}

// Execute runs the CLI with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// initializeConfig wires viper: defaults, then optional config file, then
// EVERGREEN_* environment variables.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("EVERGREEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env cover everything.
	}
	return nil
}
