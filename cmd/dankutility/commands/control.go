package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tangthinker/dankutility/internal/client"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the Mods folder now",
	Long: `Back up the Mods folder now and wait for the archive to be written.
The regular schedule is not affected.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := client.NewClient(cfg.Socket)
		if err != nil {
			return err
		}
		defer c.Close()

		run, err := c.RunNow()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backed up Sims 4 Mods as %s\n", run.ArchivePath)
		return nil
	},
}

var pathsCmd = &cobra.Command{
	Use:   "paths <source_dir> <dest_dir>",
	Short: "Change the Mods folder and backup folder",
	Long: `Change the folder that is backed up and the folder archives are written to.
Both must be existing directories. The change applies from the next backup
and is not saved; set source_dir and dest_dir in the config file to keep it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.NewClient(cfg.Socket)
		if err != nil {
			return err
		}
		defer c.Close()

		source, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		dest, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}

		st, err := c.SetPaths(source, dest)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Stop the background backup process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := client.NewClient(cfg.Socket)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Quit(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Quitting dankutility")
		return nil
	},
}
