package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/trackwise/edgeauth/internal/buildinfo"
	"github.com/trackwise/edgeauth/internal/config"
	"github.com/trackwise/edgeauth/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "edgeauth",
	Short: fmt.Sprintf("Edge gateway and session authority (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `edgeauth fronts the defect tracker services.

The gateway routes /auth, /projects, /defects and /reports (and their /v1
aliases) and checks bearer tokens statelessly. The authority issues, validates
and revokes sessions, one active session per principal.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logging.Options{
			Level:   viper.GetString(config.LogLevelKey),
			Format:  viper.GetString(config.LogFormatKey),
			NoColor: viper.GetBool(config.LogNoColorKey),
		})
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func init() {
	// pre-flag logger
	logging.InitDefault()
	config.Bind(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")
	flags.Bool("no-color", false, "Disable color output")
	bindFlag(flags, config.LogLevelKey, "log-level")
	bindFlag(flags, config.LogFormatKey, "log-format")
	bindFlag(flags, config.LogNoColorKey, "no-color")

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

// bindFlag makes an explicitly set flag win over the environment.
func bindFlag(fs *pflag.FlagSet, key, name string) {
	_ = viper.BindPFlag(key, fs.Lookup(name))
}

func loadSettings() (config.Settings, error) {
	return config.Load(viper.GetViper())
}
