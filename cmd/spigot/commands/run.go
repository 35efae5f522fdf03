package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/dyluth/spigot/internal/checkpoint"
	"github.com/dyluth/spigot/internal/config"
	"github.com/dyluth/spigot/internal/diskguard"
	"github.com/dyluth/spigot/internal/hud"
	"github.com/dyluth/spigot/internal/logging"
	"github.com/dyluth/spigot/internal/metrics"
	"github.com/dyluth/spigot/internal/printer"
	"github.com/dyluth/spigot/internal/sink"
	"github.com/dyluth/spigot/internal/stream"
	"github.com/dyluth/spigot/internal/telemetry"
	"github.com/dyluth/spigot/internal/watch"
	"github.com/dyluth/spigot/pkg/statusboard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type runOptions struct {
	checkpoint  uint64
	fsync       uint64
	hudInterval time.Duration
	alpha       float64
	lineWidth   int
	minFreeGB   float64
	pausePoll   time.Duration
	maxDigits   uint64
	noHUD       bool
	metricsAddr string
	redisURL    string
	instance    string
	logLevel    string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	d := stream.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream digits of π until interrupted",
		Long: `Stream digits of π into <out>/pi_digits.txt until interrupted.

An existing artifact is resumed: digits written after the last checkpoint are
regenerated and verified before new ones are appended. Ctrl-C (or SIGTERM)
writes a final checkpoint and exits cleanly.

Examples:
  # Stream into the current directory with the terminal HUD
  spigot run

  # Bounded run with 100-digit lines, pausing below 10 GB free
  spigot run --out ~/pi --line-width 100 --min-free-gb 10 --max-digits 1000000

  # Headless, with Prometheus metrics and a Redis status board
  spigot run --no-hud --metrics-addr :9100 --redis-url redis://localhost:6379/0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if err := o.apply(cmd, cfg); err != nil {
				return printer.Error("invalid flags", err.Error(), nil)
			}
			return runStream(cmd.Context(), cfg, o)
		},
	}

	f := cmd.Flags()
	f.Uint64Var(&o.checkpoint, "checkpoint", d.CheckpointInterval, "Checkpoint every N digits")
	f.Uint64Var(&o.fsync, "fsync", d.SyncInterval, "fsync the artifact every N digits")
	f.DurationVar(&o.hudInterval, "hud-interval", d.ProgressInterval, "Progress refresh interval")
	f.Float64Var(&o.alpha, "ema-alpha", d.Alpha, "Smoothing factor for the average rate (0..1)")
	f.IntVar(&o.lineWidth, "line-width", d.LineWidth, "Digits per line in the artifact (0 disables line breaks)")
	f.Float64Var(&o.minFreeGB, "min-free-gb", 0, "Pause while free disk space is below this many GB (0 disables)")
	f.DurationVar(&o.pausePoll, "pause-poll", d.PausePollInterval, "How often to re-check free space while paused")
	f.Uint64Var(&o.maxDigits, "max-digits", 0, "Stop after this many digits exist (0 = unbounded)")
	f.BoolVar(&o.noHUD, "no-hud", false, "Disable the terminal HUD")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	f.StringVar(&o.redisURL, "redis-url", "", "Publish progress to the Redis status board at this URL")
	f.StringVar(&o.instance, "instance", "", "Status board instance name (default \"default\")")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	return cmd
}

// apply copies explicitly set flags over the file configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.SpigotConfig) error {
	f := cmd.Flags()
	if f.Changed("checkpoint") {
		cfg.Stream.CheckpointInterval = &o.checkpoint
	}
	if f.Changed("fsync") {
		cfg.Stream.SyncInterval = &o.fsync
	}
	if f.Changed("hud-interval") {
		cfg.Stream.ProgressInterval = &o.hudInterval
	}
	if f.Changed("ema-alpha") {
		cfg.Stream.Alpha = &o.alpha
	}
	if f.Changed("line-width") {
		cfg.Stream.LineWidth = &o.lineWidth
	}
	if f.Changed("pause-poll") {
		cfg.Stream.PausePollInterval = &o.pausePoll
	}
	if f.Changed("max-digits") {
		cfg.Stream.MaxDigits = o.maxDigits
	}
	if f.Changed("min-free-gb") {
		cfg.Disk.MinFreeGB = &o.minFreeGB
	}
	if o.noHUD {
		off := false
		cfg.HUD.Enabled = &off
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	applyBoardFlags(cfg, o.redisURL, o.instance)
	if f.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	return cfg.Validate()
}

// applyBoardFlags overrides the status board section with --redis-url and
// --instance when given.
func applyBoardFlags(cfg *config.SpigotConfig, url, instance string) {
	if url == "" && instance == "" {
		return
	}
	if cfg.StatusBoard == nil {
		cfg.StatusBoard = &config.StatusBoardConfig{}
	}
	if url != "" {
		cfg.StatusBoard.URL = url
	}
	if instance != "" {
		cfg.StatusBoard.Instance = instance
	}
}

func runStream(ctx context.Context, cfg *config.SpigotConfig, o *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	outDir := cfg.OutputDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return printer.Error(
			"cannot create output directory",
			err.Error(),
			[]string{"Check the --out path and its permissions"},
		)
	}

	hudOn := hud.IsTerminal(os.Stdout)
	if cfg.HUD.Enabled != nil {
		hudOn = *cfg.HUD.Enabled
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return printer.Error("invalid log level", err.Error(), nil)
	}
	consoleLevel := level
	if hudOn && consoleLevel < slog.LevelWarn {
		consoleLevel = slog.LevelWarn
	}
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(outDir, logging.FileName)
	}
	logger, err := logging.New(logging.Options{
		File:         logFile,
		Level:        level,
		Console:      os.Stderr,
		ConsoleLevel: consoleLevel,
	})
	if err != nil {
		return printer.Error("cannot open log file", err.Error(), nil)
	}
	defer logger.Close()

	runID := uuid.New().String()
	log := logger.With("run_id", runID)

	store, err := checkpoint.NewStore(outDir, checkpoint.WithLogger(log))
	if err != nil {
		return printer.Error("cannot open checkpoint location", err.Error(), nil)
	}
	artifact := filepath.Join(outDir, sink.FileName)

	var sinks []stream.ProgressSink
	if hudOn {
		h := hud.New(os.Stdout, artifact, hud.WithProbe(telemetry.New(*cfg.HUD.Telemetry, log)))
		sinks = append(sinks, h)
	} else {
		sinks = append(sinks, &noticeSink{})
	}

	if cfg.Metrics.Addr != "" {
		rec := metrics.NewRecorder()
		srv := metrics.NewServer(rec, log)
		if err := srv.Start(cfg.Metrics.Addr); err != nil {
			return printer.Error("cannot start metrics server", err.Error(),
				[]string{"Choose a free address with --metrics-addr"})
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		sinks = append(sinks, rec)
	}

	if cfg.StatusBoard != nil {
		client, err := statusboard.NewClientFromURL(cfg.StatusBoard.URL, cfg.StatusBoard.Instance)
		if err != nil {
			return printer.Error("invalid status board settings", err.Error(), nil)
		}
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx); err != nil {
			log.Warn("status board unreachable, publishing anyway", "url", cfg.StatusBoard.URL, "error", err)
		}
		cancel()

		pub := watch.NewPublisher(client, cfg.StatusBoard.Instance, outDir,
			watch.WithPublishTimeout(cfg.StatusBoard.PublishTimeout),
			watch.WithPublisherLogger(log),
		)
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	var guards []stream.Backpressure
	if minFree := cfg.MinFreeBytes(); minFree > 0 {
		guard := diskguard.New(outDir, minFree, diskguard.WithLogger(log))
		log.Info("disk guard enabled", "path", outDir, "min_free", units.BytesSize(float64(guard.Threshold())))
		guards = append(guards, guard)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := stream.New(cfg.StreamSettings(), store, artifact,
		stream.WithProgressSink(stream.MultiSink(sinks...)),
		stream.WithBackpressure(stream.AnyBackpressure(guards...)),
		stream.WithLogger(logger.Logger),
		stream.WithRunID(runID),
	)
	if err != nil {
		return printer.Error("invalid stream settings", err.Error(), nil)
	}

	if err := ctrl.Run(ctx); err != nil {
		return fatal(err, outDir)
	}

	if !hudOn {
		printer.Success("Stopped at digit #%d. Saved checkpoint.\n", ctrl.DigitsWritten())
	}
	return nil
}

// noticeSink prints the resume point once when no HUD is shown.
type noticeSink struct {
	done bool
}

func (n *noticeSink) Report(p stream.Progress) {
	if n.done || p.Status != stream.StatusRunning {
		return
	}
	n.done = true
	if p.Resumed {
		printer.Step("Resumed at digit #%d\n", p.StartDigits)
	}
}

// fatal prints a diagnostic for a failed run and returns the error for cobra.
func fatal(err error, outDir string) error {
	var (
		rerr *stream.ReconcileError
		derr *stream.DurabilityError
	)
	switch {
	case errors.As(err, &rerr):
		ctx := map[string]string{
			"Output":            outDir,
			"Checkpoint digits": strconv.FormatUint(rerr.CheckpointDigits, 10),
			"Artifact digits":   strconv.FormatUint(rerr.ArtifactDigits, 10),
		}
		if rerr.Position > 0 {
			ctx["First bad digit"] = strconv.FormatUint(rerr.Position, 10)
		}
		return printer.ErrorWithContext(
			"artifact and checkpoint disagree",
			rerr.Error(),
			ctx,
			[]string{
				fmt.Sprintf("Locate the damage:\n     spigot verify --out %s", outDir),
				"Move pi_digits.txt and pi_state.json aside and start a fresh run",
			},
		)
	case errors.As(err, &derr):
		return printer.ErrorWithContext(
			"could not persist digits",
			derr.Error(),
			map[string]string{"Output": outDir},
			[]string{"Check free space and permissions on the output volume, then run again to resume from the last checkpoint"},
		)
	case errors.Is(err, sink.ErrBadPrefix):
		return printer.Error(
			"output file is not a π artifact",
			err.Error(),
			[]string{"Point --out at an empty directory or an existing spigot output directory"},
		)
	default:
		return printer.Error("spigot run failed", err.Error(), nil)
	}
}
