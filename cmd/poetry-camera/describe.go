package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/poetry-camera/internal/chat"
	"github.com/fpang/poetry-camera/internal/hardware"
	"github.com/fpang/poetry-camera/internal/printout"
)

var printFlag bool

var describeCmd = &cobra.Command{
	Use:   "describe <image>",
	Short: "Describe an image and compose a poem without the camera",
	Long: `Run the analysis and generation steps on an existing JPEG or PNG file and
print the description and the poem. With --print the poem is also sent to
the resolved printer.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		frame, err := hardware.Normalize(raw, cfg.Devices.FrameWidth, cfg.Devices.FrameHeight)
		if err != nil {
			return err
		}

		client, err := chat.NewFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		desc, err := client.DescribeImage(ctx, frame.Image, frame.MIME)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		fmt.Println(desc.String())
		fmt.Println()

		poem, err := client.ComposeArtifact(ctx, desc.PromptJSON())
		if err != nil {
			return fmt.Errorf("generation failed: %w", err)
		}
		fmt.Println(poem)

		if !printFlag {
			return nil
		}
		devices := hardware.NewDevices(cfg)
		defer devices.Close()
		h := devices.Printer.Resolve(ctx)
		_, err = printout.NewDispatcher(cfg.Devices.PrinterColumns(), nil).Dispatch(ctx, h, poem)
		return err
	},
}

func init() {
	describeCmd.Flags().BoolVar(&printFlag, "print", false, "Also print the poem")
}
