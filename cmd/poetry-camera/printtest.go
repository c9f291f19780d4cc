package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpang/poetry-camera/internal/hardware"
	"github.com/fpang/poetry-camera/internal/printout"
)

const testPoem = `Morning light on the lens,
a quiet room waits.
清晨的光
落在安靜的房間`

var printTestCmd = &cobra.Command{
	Use:   "print-test",
	Short: "Print a bilingual test receipt",
	Long: `Send a short bilingual test receipt through the resolved printer. When the
printer resolves to the simulation the decoded receipt is shown on stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		devices := hardware.NewDevices(cfg)
		defer devices.Close()
		h := devices.Printer.Resolve(ctx)

		job, err := printout.NewDispatcher(cfg.Devices.PrinterColumns(), nil).Dispatch(ctx, h, testPoem)
		if err != nil {
			return err
		}
		if !h.Simulated {
			fmt.Printf("sent %d bytes to %s\n", len(job.Data), h.Backend)
			return nil
		}
		text, err := printout.Decode(job.Data)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}
