package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gftdcojp/buslog/internal/object"
	"github.com/gftdcojp/buslog/internal/replay"
	"github.com/gftdcojp/buslog/pkg/natsutil"
	"github.com/spf13/cobra"
)

var (
	vNATSURL   string
	vPrefix    string
	vJetStream bool
	vPace      bool
	vSpeed     float64
	vTypes     []string
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Publish the objects of a log file to NATS",
	Long:  "Publishes every object of a log file as one message on <prefix>.<TYPE>. With --pace the messages are spaced by their recorded timestamps.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("nats-url") || cfg.NATS.URL == "" {
			cfg.NATS.URL = vNATSURL
		}
		if flags.Changed("prefix") || cfg.Replay.SubjectPrefix == "" {
			cfg.Replay.SubjectPrefix = vPrefix
		}
		if flags.Changed("jetstream") {
			cfg.Replay.JetStream = vJetStream
		}
		if flags.Changed("pace") {
			cfg.Replay.Pace = vPace
		}
		if flags.Changed("speed") {
			cfg.Replay.Speed = vSpeed
		}

		var only []object.Type
		for _, name := range vTypes {
			t, ok := object.ParseType(name)
			if !ok {
				return fmt.Errorf("unknown object type %q", name)
			}
			only = append(only, t)
		}

		logger := newLogger()
		nc, err := natsutil.Connect(cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		r, err := replay.New(nc, cfg.Replay, cfg.Session, logger)
		if err != nil {
			return err
		}
		if len(only) > 0 {
			r.Only(only...)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		res, err := r.Replay(ctx, args[0])
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		cmd.Printf("published %d objects, skipped %d, in %s\n", res.Published, res.Skipped, res.Elapsed)
		return nil
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&vNATSURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	f.StringVar(&vPrefix, "prefix", "buslog.replay", "subject prefix")
	f.BoolVar(&vJetStream, "jetstream", false, "publish with JetStream acknowledgements")
	f.BoolVar(&vPace, "pace", false, "space messages by their recorded timestamps")
	f.Float64Var(&vSpeed, "speed", 1, "replay speed factor used with --pace")
	f.StringSliceVar(&vTypes, "type", nil, "only publish these object types")
}
