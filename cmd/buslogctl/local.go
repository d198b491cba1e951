package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/object"
	"github.com/gftdcojp/buslog/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statCmd = &cobra.Command{
	Use:   "stat <file>",
	Short: "Show the statistics header and object totals of a log file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return stat(cmd.OutOrStdout(), args[0], cfg.Session, newLogger())
	},
}

func stat(out io.Writer, path string, cfg config.SessionConfig, logger *zap.Logger) error {
	sum, err := session.Scan(path, cfg, logger)
	if err != nil {
		return err
	}
	st := sum.Statistics

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "file\t%s\n", path)
	fmt.Fprintf(w, "application\t%d %d.%d.%d\n", st.ApplicationID, st.ApplicationMajor, st.ApplicationMinor, st.ApplicationBuild)
	fmt.Fprintf(w, "api\t%d.%d.%d.%d\n", st.APIMajor, st.APIMinor, st.APIBuild, st.APIPatch)
	fmt.Fprintf(w, "file size\t%d\n", st.FileSize)
	fmt.Fprintf(w, "uncompressed size\t%d\n", st.UncompressedFileSize)
	if st.FileSizeWithoutRestorePoints > 0 {
		fmt.Fprintf(w, "size without restore points\t%d\n", st.FileSizeWithoutRestorePoints)
	}
	fmt.Fprintf(w, "objects (header)\t%d\n", st.ObjectCount)
	fmt.Fprintf(w, "objects (read)\t%d\n", sum.Objects)
	if st.ObjectsRead > 0 {
		fmt.Fprintf(w, "objects read (header)\t%d\n", st.ObjectsRead)
	}
	if sum.Skipped > 0 {
		fmt.Fprintf(w, "objects skipped\t%d\n", sum.Skipped)
	}
	fmt.Fprintf(w, "containers\t%d\n", sum.Containers)
	if !st.MeasurementStartTime.IsZero() {
		fmt.Fprintf(w, "measurement start\t%s\n", st.MeasurementStartTime.Time().Format(time.RFC3339Nano))
		fmt.Fprintf(w, "last object\t%s\n", st.LastObjectTime.Time().Format(time.RFC3339Nano))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	names := make([]string, 0, len(sum.TypeCounts))
	for n := range sum.TypeCounts {
		names = append(names, n)
	}
	sort.Strings(names)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nTYPE\tCOUNT")
	for _, n := range names {
		fmt.Fprintf(w, "%s\t%d\n", n, sum.TypeCounts[n])
	}
	return w.Flush()
}

var (
	vDumpLimit  int
	vDumpType   string
	vDumpOffset int64
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the objects of a log file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var only object.Type
		if vDumpType != "" {
			t, ok := object.ParseType(vDumpType)
			if !ok {
				return fmt.Errorf("unknown object type %q", vDumpType)
			}
			only = t
		}
		return dump(cmd.OutOrStdout(), args[0], cfg.Session, vDumpOffset, vDumpLimit, only, newLogger())
	},
}

func init() {
	dumpCmd.Flags().IntVarP(&vDumpLimit, "number", "n", 0, "stop after this many objects, 0 for all")
	dumpCmd.Flags().StringVar(&vDumpType, "type", "", "only print objects of this type, e.g. CAN_MESSAGE")
	dumpCmd.Flags().Int64Var(&vDumpOffset, "offset", 0, "start at this stream position, as printed in the second column")
}

// dump prints one line per object: its index counted from the start
// position, its stream position, timestamp, type, size and payload.
// A zero only prints every type.
func dump(out io.Writer, path string, cfg config.SessionConfig, offset int64, limit int, only object.Type, logger *zap.Logger) error {
	s, err := session.Open(path, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	if offset > 0 {
		if err := s.Seek(offset); err != nil {
			return err
		}
	}

	printed := 0
	for i := 0; limit <= 0 || printed < limit; i++ {
		obj, err := s.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if only != 0 && obj.Type != only {
			continue
		}
		ts := "-"
		if obj.Layout() != object.LayoutBase {
			ts = obj.Offset().String()
		}
		fmt.Fprintf(out, "%6d %10d %12s %-24s %5d %+v\n", i, s.Position(), ts, obj.Type, obj.ObjectSize, obj.Payload)
		printed++
	}
	return nil
}

var (
	vLevel         int
	vContainerSize int64
	vRestorePoints bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Rewrite a log file with a different compression level or container size",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cfg.Session
		if cmd.Flags().Changed("level") {
			out.CompressionLevel = vLevel
		}
		if cmd.Flags().Changed("container-size") {
			out.ContainerSize = config.ByteSize(vContainerSize)
			if out.BufferCapacity > 0 {
				out.BufferCapacity = max(out.BufferCapacity, 4*out.ContainerSize)
			}
		}
		if cmd.Flags().Changed("restore-points") {
			out.WriteRestorePoints = vRestorePoints
		}
		n, err := convert(args[0], args[1], cfg.Session, out, newLogger())
		if err != nil {
			return err
		}
		cmd.Printf("converted %d objects\n", n)
		return nil
	},
}

func init() {
	convertCmd.Flags().IntVar(&vLevel, "level", config.DefaultCompressionLevel, "DEFLATE level, 0 stores containers uncompressed")
	convertCmd.Flags().Int64Var(&vContainerSize, "container-size", config.DefaultContainerSize, "uncompressed bytes per log container")
	convertCmd.Flags().BoolVar(&vRestorePoints, "restore-points", true, "append a restore point container")
}

// convert copies every object from in to out. The measurement start and
// application of the source are kept.
func convert(in, out string, inCfg, outCfg config.SessionConfig, logger *zap.Logger) (uint32, error) {
	src, err := session.Open(in, inCfg, logger)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	st := src.Statistics()
	outCfg.Application = config.ApplicationConfig{
		ID:    st.ApplicationID,
		Major: st.ApplicationMajor,
		Minor: st.ApplicationMinor,
		Build: st.ApplicationBuild,
	}
	dst, err := session.Create(out, outCfg, logger)
	if err != nil {
		return 0, err
	}
	if !st.MeasurementStartTime.IsZero() {
		dst.SetMeasurementStart(st.MeasurementStartTime.Time())
	}

	for {
		obj, err := src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dst.Close()
			return 0, fmt.Errorf("reading %s: %w", in, err)
		}
		// The output session writes its own restore point.
		if obj.Type == object.TypeRestorePointContainer {
			continue
		}
		if err := dst.Write(obj); err != nil {
			dst.Close()
			return 0, fmt.Errorf("writing %s: %w", out, err)
		}
	}
	if err := dst.Close(); err != nil {
		return 0, err
	}
	return dst.ObjectCount(), nil
}
