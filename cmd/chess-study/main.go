package main

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/dmmcquay/chess-study/internal/config"
	"github.com/dmmcquay/chess-study/internal/logging"
)

var (
	// Version information injected at build time.
	GitCommit string = "unknown"
	BuildTime string = "unknown"
)

type rootOptions struct {
	configPath string
	cpuProfile string
	profiler   interface{ Stop() }
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "chess-study",
		Short:         "Browse PGN games and analyse positions with a UCI engine",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.cpuProfile != "" {
				opts.profiler = profile.Start(profile.CPUProfile, profile.ProfilePath(opts.cpuProfile), profile.NoShutdownHook, profile.Quiet)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.profiler != nil {
				opts.profiler.Stop()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a config file (JSON, YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&opts.cpuProfile, "cpuprofile", "", "Write a CPU profile into this directory")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(gamesCmd(opts))
	rootCmd.AddCommand(movesCmd(opts))
	rootCmd.AddCommand(versionCmd(opts))

	return rootCmd
}

func versionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s version %s\n", cfg.Server.Name, cfg.Server.Version)
			fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "Build time: %s\n", BuildTime)
			return nil
		},
	}
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr since stdout
// carries the MCP protocol.
func newLogger(cfg *config.Config) (logging.ContextLogger, func()) {
	logger, closer := logging.NewLoggerFromConfig(&logging.Config{
		Level:   cfg.Logging.Level,
		Format:  logging.LogFormat(cfg.Logging.Format),
		Service: cfg.Server.Name,
		Version: cfg.Server.Version,
		Prefix:  cfg.Logging.Prefix,
		File:    &cfg.Logging.File,
	})
	return logger, func() {
		if closer != nil {
			_ = closer.Close()
		}
	}
}
