package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tubefetch/internal/httputil"
	"tubefetch/internal/media"
	"tubefetch/internal/service"
	"tubefetch/internal/ui"
)

var (
	flagQuality string
	flagAudio   bool
	flagOutput  string
)

var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download a video (or its audio) and save it locally",
	Long: `Download fetches the media through yt-dlp into the working directory,
copies it to the destination and deletes the working copy.

The destination defaults to the sanitized title in the current directory.
Pass a directory to keep the default name there, or "-" to write to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: downloadRun,
}

func init() {
	downloadCmd.Flags().StringVarP(&flagQuality, "quality", "q", "best", "Video quality (best, 1080p, 720p, ...)")
	downloadCmd.Flags().BoolVarP(&flagAudio, "audio", "a", false, "Extract audio as mp3")
	downloadCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file, directory, or - for stdout")
}

func downloadRun(cmd *cobra.Command, args []string) error {
	svc, err := newService(true)
	if err != nil {
		return err
	}

	kind := media.Video.String()
	if flagAudio {
		kind = media.Audio.String()
	}

	var res *media.DownloadResult
	err = ui.RunWithSpinner(os.Stderr, "downloading", func() error {
		var derr error
		res, derr = svc.Download(cmd.Context(), args[0], flagQuality, kind)
		return derr
	})
	if err != nil {
		fmt.Fprint(os.Stderr, ui.RenderError(err))
		return err
	}

	if flagOutput == "-" {
		_, err := svc.Deliver(res, cmd.OutOrStdout())
		return err
	}

	dest, err := outputPath(flagOutput, res)
	if err != nil {
		if d, oerr := svc.Open(res); oerr == nil {
			d.Close()
		}
		return err
	}
	if err := saveTo(svc, res, dest); err != nil {
		fmt.Fprint(os.Stderr, ui.RenderError(err))
		return err
	}
	fmt.Fprint(os.Stderr, ui.RenderResult(res, dest))
	return nil
}

// outputPath resolves the -o flag against the result's download name.
func outputPath(output string, res *media.DownloadResult) (string, error) {
	if output == "" {
		output = "."
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return httputil.SafeDownloadPath(output, res.DownloadName())
	}
	return output, nil
}

// saveTo delivers the artifact into dest. The working copy is always gone
// afterwards; a partial dest is removed on failure.
func saveTo(svc *service.Service, res *media.DownloadResult, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		if d, oerr := svc.Open(res); oerr == nil {
			d.Close()
		}
		return fmt.Errorf("creating output file: %w", err)
	}

	_, err = svc.Deliver(res, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("saving %s: %w", dest, err)
	}
	return nil
}
