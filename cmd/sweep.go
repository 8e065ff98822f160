package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var flagRetention time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete downloaded files older than the retention window",
	Args:  cobra.NoArgs,
	RunE:  sweepRun,
}

func init() {
	sweepCmd.Flags().DurationVar(&flagRetention, "retention", 0, "Retention window (default: temp_file_retention from config)")
}

func sweepRun(cmd *cobra.Command, args []string) error {
	svc, err := newService(false)
	if err != nil {
		return err
	}

	report := svc.SweepOldFiles(flagRetention)
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d file(s), freed %s\n", len(report.Removed), humanize.IBytes(uint64(report.Freed)))
	if report.Failed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) could not be removed\n", report.Failed)
	}
	return nil
}
