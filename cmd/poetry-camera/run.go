package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/poetry-camera/internal/chat"
	"github.com/fpang/poetry-camera/internal/config"
	"github.com/fpang/poetry-camera/internal/detector"
	"github.com/fpang/poetry-camera/internal/engine"
	"github.com/fpang/poetry-camera/internal/feedback"
	"github.com/fpang/poetry-camera/internal/hardware"
	"github.com/fpang/poetry-camera/internal/logging"
	"github.com/fpang/poetry-camera/internal/metrics"
	"github.com/fpang/poetry-camera/internal/printout"
	"github.com/fpang/poetry-camera/internal/server"
	"github.com/fpang/poetry-camera/internal/trigger"
)

var (
	addrFlag string
	modeFlag string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the camera until interrupted",
	Long: `Resolve the devices, start the detectors, the engine and the status server,
and process triggers until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runCamera(ctx)
	},
}

func init() {
	runCmd.Flags().StringVar(&addrFlag, "addr", "", "Status server listen address (overrides config)")
	runCmd.Flags().StringVar(&modeFlag, "mode", "", "Interaction mode: teachable, mediapipe or manual (overrides config)")
}

func runCamera(ctx context.Context) error {
	start := time.Now()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}
	if modeFlag != "" {
		cfg.Engine.Mode = modeFlag
	}
	mode, err := trigger.ParseMode(cfg.Engine.Mode)
	if err != nil {
		return err
	}

	devices := hardware.NewDevices(cfg)
	devices.ResolveAll(ctx)
	defer devices.Close()

	services, err := chat.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create services: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	table, err := feedback.NewTableTranslator()
	if err != nil {
		return err
	}
	translator, err := feedback.NewCachedTranslator(table, 64)
	if err != nil {
		return err
	}
	gpio := devices.GPIO.Handle().Device
	status := feedback.NewStatusSink(translator)
	cues := feedback.NewCueSink(feedback.NewBuzzerPlayer(gpio), gpio)
	hub := server.NewHub(translator)
	bus := feedback.NewBus(cfg.Engine.FeedbackBuffer, status, cues, hub)

	queue := trigger.NewQueue(cfg.Engine.QueueSize)
	queue.OnDrop(func(ev trigger.Event) {
		metrics.TriggerQueueDrops.Inc()
		log.Debug().Str("source", ev.Source.String()).Str("label", ev.Label).Msg("Trigger evicted by a newer one")
	})

	eng := engine.New(engine.Options{
		Config:     cfg.Engine,
		Mode:       mode,
		Queue:      queue,
		Camera:     devices.Camera,
		Printer:    devices.Printer,
		Services:   services,
		Dispatcher: printout.NewDispatcher(cfg.Devices.PrinterColumns(), nil),
		Store:      st,
		Feedback:   bus,
	})

	runners, err := detector.Build(cfg, queue, devices.GPIO, func() {
		if eng.Mode() == trigger.ModeManual {
			cues.Enqueue(feedback.CueButtonPress)
		}
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Addr:             cfg.Server.Addr,
		Engine:           eng,
		Display:          status,
		Triggers:         queue,
		Ledger:           st.Ledger,
		ContentDir:       cfg.Storage.ContentDir,
		Hub:              hub,
		Devices:          deviceSnapshot(devices),
		TriggerPerMinute: cfg.Server.TriggerPerMinute,
		OnModeChange: func(trigger.Mode) {
			cues.Enqueue(feedback.CueModeSwitch)
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return cues.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx) })
	for _, r := range runners {
		g.Go(func() error { return r.Run(gctx) })
	}
	g.Go(func() error { return srv.Run(gctx) })

	cues.Enqueue(feedback.CueStartup)
	cues.Enqueue(feedback.CueSystemReady)
	startupSummary(cfg, devices, services, mode, len(runners), time.Since(start))

	err = g.Wait()
	log.Info().Int64("runs", eng.Status().Runs).Msg("Poetry camera stopped")
	return err
}

// deviceSnapshot reports the currently bound backend of every class.
func deviceSnapshot(d *hardware.Devices) func() map[string]server.Device {
	return func() map[string]server.Device {
		out := make(map[string]server.Device, 3)
		if h := d.Camera.Handle(); h != nil {
			out[string(hardware.ClassCamera)] = server.Device{Backend: h.Backend, Simulated: h.Simulated}
		}
		if h := d.GPIO.Handle(); h != nil {
			out[string(hardware.ClassGPIO)] = server.Device{Backend: h.Backend, Simulated: h.Simulated}
		}
		if h := d.Printer.Handle(); h != nil {
			out[string(hardware.ClassPrinter)] = server.Device{Backend: h.Backend, Simulated: h.Simulated}
		}
		return out
	}
}

func startupSummary(cfg *config.Config, devices *hardware.Devices, services *chat.Client, mode trigger.Mode, detectors int, took time.Duration) {
	vision, poem := services.Backends()
	logging.NewStartupLogger("poetry-camera").
		Version(version).
		Device(string(hardware.ClassCamera), devices.Camera.Handle().Backend).
		Device(string(hardware.ClassGPIO), devices.GPIO.Handle().Backend).
		Device(string(hardware.ClassPrinter), devices.Printer.Handle().Backend).
		Service("vision", vision).
		Service("poem", poem).
		Path("content", cfg.Storage.ContentDir).
		Path("ledger", cfg.Storage.LedgerPath).
		Feature("s3Mirror", cfg.Storage.S3Bucket != "").
		Feature("simulate", cfg.Devices.Simulate).
		Config("mode", mode.String()).
		Config("addr", cfg.Server.Addr).
		Config("detectors", strconv.Itoa(detectors)).
		Config("countdown", strconv.Itoa(cfg.Engine.CountdownTicks)).
		InitDuration(took).
		Log()
}
