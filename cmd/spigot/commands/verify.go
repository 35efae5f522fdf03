package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dyluth/spigot/internal/checkpoint"
	"github.com/dyluth/spigot/internal/printer"
	"github.com/dyluth/spigot/internal/sink"
	"github.com/dyluth/spigot/internal/stream"
	"github.com/spf13/cobra"
)

func newVerifyCmd(g *globalOptions) *cobra.Command {
	var limit uint64

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Regenerate digits and compare them with the artifact",
		Long: `Regenerate digits of π from scratch and compare them with pi_digits.txt.

Reports the first mismatching digit, if any. Use --limit to check only a
prefix of a large artifact.

Examples:
  spigot verify --out ~/pi
  spigot verify --out ~/pi --limit 100000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			artifact := filepath.Join(cfg.OutputDir, sink.FileName)

			store, err := checkpoint.OpenStore(cfg.OutputDir)
			if err != nil {
				return printer.Error("cannot open output directory", err.Error(),
					[]string{"Check the --out path"})
			}
			cp, err := store.Load()
			if err != nil {
				return printer.Error("cannot read checkpoint", err.Error(), nil)
			}

			res, err := stream.VerifyArtifact(artifact, cp, limit)
			var rerr *stream.ReconcileError
			switch {
			case errors.As(err, &rerr) && rerr.Position == 0:
				return printer.ErrorWithContext(
					"checkpoint does not match π",
					rerr.Error(),
					map[string]string{
						"Checkpoint":        store.Path(),
						"Checkpoint digits": strconv.FormatUint(rerr.CheckpointDigits, 10),
					},
					[]string{"Remove pi_state.json; the next run regenerates and verifies the artifact"},
				)
			case errors.As(err, &rerr):
				return printer.ErrorWithContext(
					"artifact does not match π",
					rerr.Error(),
					map[string]string{
						"Artifact":        artifact,
						"First bad digit": strconv.FormatUint(rerr.Position, 10),
					},
					[]string{fmt.Sprintf("Digits before #%d are correct; truncate the artifact there and remove pi_state.json to regenerate the rest", rerr.Position)},
				)
			case err != nil:
				return printer.Error("cannot verify artifact", err.Error(), nil)
			}

			if res.ArtifactDigits == 0 {
				printer.Info("No digits to verify in %s\n", artifact)
				return nil
			}
			printer.Success("Verified %d of %d digits\n", res.Verified, res.ArtifactDigits)
			if res.CheckpointMatched {
				printer.Success("Checkpoint state matches digit #%d\n", cp.DigitsWritten)
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&limit, "limit", 0, "Verify only the first N digits (0 = all)")
	return cmd
}
