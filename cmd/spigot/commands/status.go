package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/dyluth/spigot/internal/checkpoint"
	"github.com/dyluth/spigot/internal/config"
	"github.com/dyluth/spigot/internal/printer"
	"github.com/dyluth/spigot/internal/sink"
	"github.com/dyluth/spigot/internal/timespec"
	"github.com/dyluth/spigot/internal/watch"
	"github.com/dyluth/spigot/pkg/statusboard"
	"github.com/spf13/cobra"
)

type statusOptions struct {
	redisURL string
	instance string
	since    string
	until    string
	output   string
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	o := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect the checkpoint and artifact of an output directory",
		Long: `Inspect the checkpoint and artifact of an output directory and report
whether the next run can resume from them.

With a status board configured (--redis-url or the statusboard section of
spigot.yml) the latest published status and its history are shown as well.

Examples:
  spigot status --out ~/pi
  spigot status --redis-url redis://localhost:6379/0 --since 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			applyBoardFlags(cfg, o.redisURL, o.instance)
			if err := cfg.Validate(); err != nil {
				return printer.Error("invalid flags", err.Error(), nil)
			}
			return runStatus(cmd.Context(), cfg, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.redisURL, "redis-url", "", "Status board Redis URL")
	f.StringVar(&o.instance, "instance", "", "Status board instance name")
	f.StringVar(&o.since, "since", "", "Show history since (duration like 1h30m or RFC3339)")
	f.StringVar(&o.until, "until", "", "Show history until (duration like 10m or RFC3339)")
	f.StringVar(&o.output, "output", "text", "History output format: text or jsonl")
	return cmd
}

// localStatus is what the output directory says about a run.
type localStatus struct {
	ArtifactDigits uint64
	ArtifactBytes  int64
	Checkpoint     *checkpoint.Checkpoint
}

// Verdict describes what the next run will do with this directory.
func (s localStatus) Verdict() (string, bool) {
	switch {
	case s.Checkpoint == nil && s.ArtifactDigits == 0:
		return "empty, the next run starts fresh", true
	case s.Checkpoint == nil:
		return fmt.Sprintf("no checkpoint, the next run regenerates and verifies %d digits", s.ArtifactDigits), true
	case s.ArtifactDigits == s.Checkpoint.DigitsWritten:
		return "consistent", true
	case s.ArtifactDigits > s.Checkpoint.DigitsWritten:
		return fmt.Sprintf("artifact is %d digits ahead of the checkpoint, the next run verifies them",
			s.ArtifactDigits-s.Checkpoint.DigitsWritten), true
	default:
		return fmt.Sprintf("artifact is %d digits BEHIND the checkpoint, the next run will refuse to start",
			s.Checkpoint.DigitsWritten-s.ArtifactDigits), false
	}
}

func inspect(outDir string) (localStatus, error) {
	var s localStatus

	store, err := checkpoint.OpenStore(outDir)
	if err != nil {
		return s, err
	}
	if s.Checkpoint, err = store.Load(); err != nil {
		return s, err
	}

	artifact := filepath.Join(outDir, sink.FileName)
	if s.ArtifactDigits, err = sink.CountDigits(artifact); err != nil {
		return s, err
	}
	if info, err := os.Stat(artifact); err == nil {
		s.ArtifactBytes = info.Size()
	}
	return s, nil
}

func runStatus(ctx context.Context, cfg *config.SpigotConfig, o *statusOptions) error {
	format, err := watch.ParseOutputFormat(o.output)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: text, jsonl"})
	}
	now := time.Now()
	window, err := timespec.ParseRange(o.since, o.until, now)
	if err != nil {
		return printer.Error("invalid time range", err.Error(), nil)
	}

	s, err := inspect(cfg.OutputDir)
	if err != nil {
		return printer.Error("cannot inspect output directory", err.Error(),
			[]string{"Check the --out path and its permissions"})
	}

	printer.Field("Output", cfg.OutputDir)
	printer.Field("Artifact digits", s.ArtifactDigits)
	printer.Field("Artifact size", units.BytesSize(float64(s.ArtifactBytes)))
	if s.Checkpoint != nil {
		printer.Field("Checkpoint digits", s.Checkpoint.DigitsWritten)
		printer.Field("Checkpoint saved", fmt.Sprintf("%s (%s ago)",
			s.Checkpoint.UpdatedAt.Format(time.RFC3339), units.HumanDuration(now.Sub(s.Checkpoint.UpdatedAt))))
	} else {
		printer.Field("Checkpoint digits", "-")
	}

	verdict, ok := s.Verdict()
	if ok {
		printer.Success("%s\n", verdict)
	} else {
		printer.Warning("%s\n", verdict)
	}

	if cfg.StatusBoard == nil {
		return nil
	}
	return showBoard(ctx, cfg.StatusBoard, window, format, now)
}

func showBoard(ctx context.Context, board *config.StatusBoardConfig, window timespec.Range, format watch.OutputFormat, now time.Time) error {
	client, err := connectBoard(ctx, board)
	if err != nil {
		return err
	}
	defer client.Close()

	printer.Println()
	latest, err := client.GetStatus(ctx)
	switch {
	case statusboard.IsNotFound(err):
		printer.Info("No status published for instance '%s'\n", board.Instance)
		return nil
	case err != nil:
		return printer.Error("cannot read status board", err.Error(), nil)
	}
	printer.Field("Board status", watch.FormatLine(latest))

	history, err := client.History(ctx, window.SinceMs, window.UntilMs)
	if err != nil {
		return printer.Error("cannot read status history", err.Error(), nil)
	}
	printer.Println()
	if format == watch.OutputFormatJSONL {
		return watch.FormatJSONL(printer.Out, history)
	}
	watch.FormatTable(printer.Out, history, board.Instance, now)
	return nil
}

// connectBoard opens and pings the status board.
func connectBoard(ctx context.Context, board *config.StatusBoardConfig) (*statusboard.Client, error) {
	client, err := statusboard.NewClientFromURL(board.URL, board.Instance)
	if err != nil {
		return nil, printer.Error("invalid status board settings", err.Error(), nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", board.URL),
			map[string]string{"Instance": board.Instance},
			[]string{"Check that Redis is running and the URL is correct"},
		)
	}
	return client, nil
}
