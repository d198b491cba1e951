package main

import (
	"fmt"
	"os"

	"github.com/gftdcojp/buslog/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var (
	vConfigPath string
	vPipelined  bool
	vVerbose    bool
)

var command = &cobra.Command{
	Use:           "buslogctl",
	Short:         "Inspect, convert and replay BLF bus logs",
	Long:          `buslogctl works on local BLF files and talks to a running buslog-recorder over its HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("buslogctl %s\n", version)
	},
}

func init() {
	command.SetOut(os.Stdout)
	command.PersistentFlags().StringVar(&vConfigPath, "config", "", "recorder config file to take session settings from")
	command.PersistentFlags().BoolVar(&vPipelined, "pipelined", false, "inflate and deflate on a background worker")
	command.PersistentFlags().BoolVarP(&vVerbose, "verbose", "v", false, "log debug output to stderr")
	command.AddCommand(
		statCmd,
		dumpCmd,
		convertCmd,
		replayCmd,
		statusCmd,
		filesCmd,
		fileCmd,
		archiveCmd,
		versionCmd,
	)
}

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig returns the recorder config named by --config, or defaults.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if vConfigPath != "" {
		var err error
		if cfg, err = config.Load(vConfigPath); err != nil {
			return nil, err
		}
	}
	if vPipelined {
		cfg.Session.Pipelined = true
	}
	return cfg, nil
}

func newLogger() *zap.Logger {
	if !vVerbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
