package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/spigot/internal/printer"
	"github.com/dyluth/spigot/internal/watch"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	redisURL string
	instance string
	output   string
	wait     time.Duration
}

func newWatchCmd(g *globalOptions) *cobra.Command {
	o := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a run through the Redis status board",
		Long: `Follow a run's progress as it is published to the Redis status board.

Prints the current status, then every update, and exits when the run stops
or fails.

Output Formats:
  text  - One human-readable line per update
  jsonl - Line-delimited JSON for programmatic processing

Examples:
  spigot watch --redis-url redis://localhost:6379/0
  spigot watch --instance lab --output jsonl > progress.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := watch.ParseOutputFormat(o.output)
			if err != nil {
				return printer.Error("invalid output format", err.Error(), []string{"Valid formats: text, jsonl"})
			}

			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			applyBoardFlags(cfg, o.redisURL, o.instance)
			if cfg.StatusBoard == nil {
				return printer.Error(
					"no status board configured",
					"watch needs the Redis status board a run publishes to.",
					[]string{"Pass --redis-url, or add a statusboard section to spigot.yml"},
				)
			}
			if err := cfg.Validate(); err != nil {
				return printer.Error("invalid flags", err.Error(), nil)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := connectBoard(ctx, cfg.StatusBoard)
			if err != nil {
				return err
			}
			defer client.Close()

			if o.wait > 0 {
				if _, err := watch.PollForStatus(ctx, client, o.wait); err != nil {
					return printer.Error("no run found", err.Error(),
						[]string{"Start a run with --redis-url pointing at the same Redis"})
				}
			}

			_, err = watch.Follow(ctx, client, printer.Out, format)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.redisURL, "redis-url", "", "Status board Redis URL")
	f.StringVar(&o.instance, "instance", "", "Status board instance name")
	f.StringVar(&o.output, "output", "text", "Output format: text or jsonl")
	f.DurationVar(&o.wait, "wait", 0, "Wait up to this long for a run to publish its first status")
	return cmd
}
