package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/poetry-camera/internal/store"
)

var (
	sinceFlag string
	outFlag   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored runs as a tar.zst archive",
	Long: `Pack every run directory under the content directory into a
zstd-compressed tar archive. Use --since to export only runs started on or
after a date, and "-o -" to write the archive to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		var since time.Time
		if sinceFlag != "" {
			since, err = time.ParseInLocation(time.DateOnly, sinceFlag, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --since date (want YYYY-MM-DD): %w", err)
			}
		}
		artifacts, err := store.NewArtifacts(cfg.Storage.ContentDir)
		if err != nil {
			return err
		}

		if outFlag == "-" {
			_, err := artifacts.Export(os.Stdout, since)
			return err
		}
		return exportToFile(artifacts, outFlag, since)
	},
}

func init() {
	exportCmd.Flags().StringVar(&sinceFlag, "since", "", "Only runs started on or after this date (YYYY-MM-DD)")
	exportCmd.Flags().StringVarP(&outFlag, "output", "o", "runs.tar.zst", "Archive path, or - for stdout")
}

// exportToFile writes the archive atomically so a failed export never leaves
// a truncated file behind.
func exportToFile(artifacts *store.Artifacts, path string, since time.Time) error {
	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		return err
	}
	defer pf.Cleanup()

	n, err := artifacts.Export(io.Writer(pf), since)
	if err != nil {
		return err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("runs", n).Msg("Runs exported")
	return nil
}
