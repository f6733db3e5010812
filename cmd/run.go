package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/acquisitiond/internal/acqlog"
	"firestige.xyz/acquisitiond/internal/command"
	"firestige.xyz/acquisitiond/internal/config"
	"firestige.xyz/acquisitiond/internal/events"
	"firestige.xyz/acquisitiond/internal/hardware"
	"firestige.xyz/acquisitiond/internal/metrics"
	"firestige.xyz/acquisitiond/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one acquisition in the foreground",
	Long: `Run loads the run configuration, drives the full multi-timepoint
acquisition to completion (or abort), and serves the control-plane socket
for pause/resume/retake/abort/proceed/status commands for its duration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAcquisition(cmd.Context())
	},
}

func runAcquisition(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := acqlog.Init(acqlog.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: acqlog.OutputConfig(cfg.Log.Output),
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	socket := cfg.Control.Socket
	if socketPath != "" {
		socket = socketPath
	}

	bus := events.NewBus(0)

	// The hardware interface is a black box per spec: no real stage/camera
	// driver lives in this module. The in-memory Fake stands in as the only
	// concrete Interface available until a real driver is wired behind it.
	hw := hardware.NewFake(512, 512)

	w := worker.New(hw, *cfg, bus, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, w)
		if err := metricsSrv.Start(runCtx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	handler := command.NewHandler(w)
	udsServer := command.NewUDSServer(socket, handler)
	go func() {
		if err := udsServer.Start(runCtx); err != nil && err != context.Canceled {
			logger.Error("control socket failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		w.Abort()
		cancel()
	}()

	logger.Info("acquisition starting",
		"experiment_path", cfg.ExperimentPath,
		"total_timepoints", cfg.TotalTimepoints,
		"progression_policy", cfg.ProgressionPolicy,
		"socket", socket,
	)

	runErr := w.Run()

	udsServer.Stop()
	if metricsSrv != nil {
		_ = metricsSrv.Stop(context.Background())
	}

	if runErr != nil {
		return fmt.Errorf("acquisition run failed: %w", runErr)
	}
	slog.Info("acquisition finished")
	return nil
}
