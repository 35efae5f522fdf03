package commands

import (
	"fmt"
	"path/filepath"

	"github.com/dyluth/spigot/internal/config"
	"github.com/dyluth/spigot/internal/printer"
	"github.com/spf13/cobra"
)

var versionString = "dev"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	outDir     string
	configPath string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "spigot",
		Short: "Spigot - resumable π digit streamer",
		Long: `Spigot streams the decimal digits of π to disk, indefinitely.

Digits are appended to pi_digits.txt and the generator state is checkpointed
to pi_state.json, so a run interrupted by a crash, a signal or a power loss
resumes exactly where it left off without losing or duplicating digits.`,
		Version: versionString,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}

	root.PersistentFlags().StringVarP(&g.outDir, "out", "o", ".", "Output directory holding pi_digits.txt and pi_state.json")
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default <out>/spigot.yml when present)")

	root.AddCommand(
		newRunCmd(g),
		newStatusCmd(g),
		newVerifyCmd(g),
		newWatchCmd(g),
	)
	return root
}

// Execute runs the CLI. It is called once by main.main.
func Execute() error {
	return NewRootCmd().Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// loadConfig reads the config file and applies the global flags. An explicit
// --config must exist; the implicit <out>/spigot.yml is optional.
func loadConfig(cmd *cobra.Command, g *globalOptions) (*config.SpigotConfig, error) {
	path := g.configPath
	load := config.Load
	if path == "" {
		path = filepath.Join(g.outDir, config.DefaultFileName)
		load = config.LoadOptional
	}

	cfg, err := load(path)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Fix or remove %s", path)},
		)
	}

	if cmd.Flags().Changed("out") || cfg.OutputDir == "" {
		cfg.OutputDir = g.outDir
	}
	abs, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	cfg.OutputDir = abs
	return cfg, nil
}
