// Package commands implements the dankutility CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/tangthinker/dankutility/internal/config"
)

// configFile holds the value of the --config flag.
var configFile string

// cfg is loaded before any subcommand runs.
var cfg *config.Config

// flagKeys maps flag names to config keys they override.
var flagKeys = map[string]string{
	"socket":    "socket",
	"log-level": "log_level",
	"period":    "period",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./config.yaml or $XDG_CONFIG_HOME/dankutility/config.yaml)")
	rootCmd.PersistentFlags().String("socket", "", "control socket path")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd, statusCmd, backupCmd, pathsCmd, quitCmd)
}

var rootCmd = &cobra.Command{
	Use:   "dankutility",
	Short: "Back up the Sims 4 Mods folder on a schedule",
	Long: `dankutility runs in the background and zips the Sims 4 Mods folder into
Mods_<YYYYMMDD>.zip next to it on a fixed interval.

Start the background process with "dankutility run". The other commands talk
to the running process.`,
	Example: `  # Start backing up every 6 hours
  dankutility run

  # Show what the background process is doing
  dankutility status

  # Back up right now
  dankutility backup`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.New()
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}

		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
