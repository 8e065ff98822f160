package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tubefetch/internal/media"
	"tubefetch/internal/ui"
)

var flagValidateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate <url>",
	Short: "Resolve a YouTube URL and show its metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  validateRun,
}

func init() {
	validateCmd.Flags().BoolVar(&flagValidateJSON, "json", false, "Print metadata as JSON")
}

func validateRun(cmd *cobra.Command, args []string) error {
	svc, err := newService(true)
	if err != nil {
		return err
	}

	var md *media.VideoMetadata
	err = ui.RunWithSpinner(os.Stderr, "resolving", func() error {
		var rerr error
		md, rerr = svc.Validate(cmd.Context(), args[0])
		return rerr
	})
	if err != nil {
		fmt.Fprint(os.Stderr, ui.RenderError(err))
		return err
	}

	if flagValidateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(md)
	}
	fmt.Fprint(cmd.OutOrStdout(), ui.RenderMetadata(md))
	return nil
}
