// Package replay publishes the objects of a log file to NATS, one message
// per object frame.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/metrics"
	"github.com/gftdcojp/buslog/internal/object"
	"github.com/gftdcojp/buslog/internal/session"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// Message headers set on every replayed object.
const (
	HeaderSource = "Buslog-Source"
	HeaderOffset = "Buslog-Offset"
)

// Result summarizes one replay.
type Result struct {
	Published uint64
	Skipped   uint64
	Elapsed   time.Duration
}

// Replayer publishes log files over core NATS or JetStream.
type Replayer struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	cfg     config.ReplayConfig
	sessCfg config.SessionConfig
	logger  *zap.Logger

	// Only objects of these types are published when non-empty.
	types map[object.Type]bool
}

func New(nc *nats.Conn, cfg config.ReplayConfig, sessCfg config.SessionConfig, logger *zap.Logger) (*Replayer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Replayer{
		nc:      nc,
		cfg:     cfg,
		sessCfg: sessCfg,
		logger:  logger.Named("replay"),
	}
	if cfg.JetStream {
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("creating JetStream context: %w", err)
		}
		r.js = js
	}
	return r, nil
}

// Only restricts replay to the given object types.
func (r *Replayer) Only(types ...object.Type) {
	r.types = make(map[object.Type]bool, len(types))
	for _, t := range types {
		r.types[t] = true
	}
}

// Subject is the subject an object of type t is published on.
func (r *Replayer) Subject(t object.Type) string {
	return r.cfg.SubjectPrefix + "." + t.String()
}

// Replay reads path and publishes every object except the restore point
// end marker. With pacing enabled, objects are spaced by their timestamps
// divided by the replay speed.
func (r *Replayer) Replay(ctx context.Context, path string) (Result, error) {
	s, err := session.Open(path, r.sessCfg, r.logger)
	if err != nil {
		return Result{}, err
	}
	defer s.Close()

	source := filepath.Base(path)
	speed := r.cfg.Speed
	if speed <= 0 {
		speed = 1
	}

	var (
		res     Result
		started = time.Now()
		first   = time.Duration(-1)
	)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		obj, err := s.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("reading %s: %w", source, err)
		}
		if obj.Type == object.TypeRestorePointContainer {
			continue
		}
		if len(r.types) > 0 && !r.types[obj.Type] {
			res.Skipped++
			continue
		}

		timed := obj.Layout() != object.LayoutBase
		if r.cfg.Pace && timed {
			if first < 0 {
				first = obj.Offset()
			}
			due := started.Add(time.Duration(float64(obj.Offset()-first) / speed))
			if err := sleepUntil(ctx, due); err != nil {
				return res, err
			}
		}

		msg := nats.NewMsg(r.Subject(obj.Type))
		msg.Data = obj.Encode()
		msg.Header.Set(HeaderSource, source)
		if timed {
			msg.Header.Set(HeaderOffset, strconv.FormatInt(int64(obj.Offset()), 10))
		}
		if err := r.publish(ctx, msg); err != nil {
			return res, fmt.Errorf("publishing %s object: %w", obj.Type, err)
		}
		res.Published++
		metrics.ObjectsPublished.WithLabelValues(obj.Type.String()).Inc()
	}

	if r.js == nil {
		if err := r.nc.FlushWithContext(ctx); err != nil {
			return res, fmt.Errorf("flushing NATS connection: %w", err)
		}
	}
	res.Elapsed = time.Since(started)
	r.logger.Info("replay finished",
		zap.String("file", source),
		zap.Uint64("published", res.Published),
		zap.Uint64("skipped", res.Skipped),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (r *Replayer) publish(ctx context.Context, msg *nats.Msg) error {
	if r.js != nil {
		_, err := r.js.PublishMsg(ctx, msg)
		return err
	}
	return r.nc.PublishMsg(msg)
}

func sleepUntil(ctx context.Context, due time.Time) error {
	d := time.Until(due)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
