package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpang/poetry-camera/internal/hardware"
)

var captureFlag string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Resolve every device class and report the chosen backends",
	Long: `Probe the camera, GPIO and printer candidates in priority order and print
which backend each class resolved to, along with every failed probe.
With --capture a frame is taken through the resolved camera.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		var outcomes []hardware.Outcome
		devices := hardware.NewDevices(cfg, func(o hardware.Outcome) {
			outcomes = append(outcomes, o)
		})
		devices.ResolveAll(ctx)
		defer devices.Close()

		for _, o := range outcomes {
			sim := ""
			if o.Simulated {
				sim = " (simulated)"
			}
			fmt.Printf("%-8s %s%s\n", o.Class, o.Backend, sim)
			for _, f := range o.Failures {
				fmt.Printf("         x %s: %v\n", f.Candidate, f.Err)
			}
			if len(o.Skipped) > 0 {
				fmt.Printf("         skipped: %s\n", strings.Join(o.Skipped, ", "))
			}
		}

		if captureFlag == "" {
			return nil
		}
		h := devices.Camera.Handle()
		c, err := h.Device.Capture(ctx)
		if err != nil {
			return fmt.Errorf("capture via %s: %w", h.Backend, err)
		}
		if err := os.WriteFile(captureFlag, c.Image, 0o644); err != nil {
			return err
		}
		fmt.Printf("captured %dx%d %s to %s\n", c.Width, c.Height, c.MIME, captureFlag)
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&captureFlag, "capture", "", "Take a frame and write it to this file")
}
