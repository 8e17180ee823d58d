package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tangthinker/dankutility/internal/backup"
	"github.com/tangthinker/dankutility/internal/client"
)

const timeLayout = "2006-01-02 15:04:05"

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the backup schedule and the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := client.NewClient(cfg.Socket)
		if err != nil {
			return err
		}
		defer c.Close()

		st, err := c.Status()
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func printStatus(w io.Writer, st *backup.Status) {
	format := "%-10s %s\n"

	fmt.Fprintf(w, format, "STATE", st.State)
	fmt.Fprintf(w, format, "SOURCE", st.Target.SourceDir)
	fmt.Fprintf(w, format, "DEST", st.Target.DestDir)
	fmt.Fprintf(w, format, "PERIOD", st.Period)
	fmt.Fprintf(w, format, "NEXT RUN", formatTime(st.NextRun))

	if st.LastRun == nil {
		fmt.Fprintf(w, format, "LAST RUN", "-")
		return
	}
	printRun(w, format, st.LastRun)
}

func printRun(w io.Writer, format string, run *backup.Run) {
	fmt.Fprintf(w, format, "LAST RUN", fmt.Sprintf("%s (%s, %s)",
		formatTime(run.TriggeredAt), run.Trigger, outcomeLabel(run.Outcome())))
	fmt.Fprintf(w, format, "ARCHIVE", run.ArchivePath)
	if run.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", run.Error)
		return
	}
	fmt.Fprintf(w, format, "CONTENTS", fmt.Sprintf("%d files, %d dirs, %d bytes in %s",
		run.Files, run.Dirs, run.Bytes, run.Duration().Round(time.Millisecond)))
}

func outcomeLabel(o backup.Outcome) string {
	if o == backup.OutcomeSuccess {
		return color.GreenString(string(o))
	}
	return color.RedString(string(o))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
