package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/getsentry/cpuprof/internal/cpuprofile"
	"github.com/getsentry/cpuprof/internal/pprofutil"
	"github.com/getsentry/cpuprof/internal/speedscope"
)

const (
	formatSpeedscope = "speedscope"
	formatFlamegraph = "flamegraph"
	formatPprof      = "pprof"
)

type convertOptions struct {
	format string
	out    string
}

func newConvertCmd() *cobra.Command {
	var opts convertOptions
	cmd := &cobra.Command{
		Use:   "convert FILE...",
		Short: "Convert CPU profiles to speedscope, flamegraph or pprof files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return convertAll(opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", formatSpeedscope, "output format: speedscope, flamegraph or pprof")
	cmd.Flags().StringVar(&opts.out, "out", ".", "output directory")
	return cmd
}

func outputPath(dir, path, format string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch format {
	case formatPprof:
		return filepath.Join(dir, name+".pb.gz")
	case formatFlamegraph:
		return filepath.Join(dir, name+".flamegraph.json")
	default:
		return filepath.Join(dir, name+".speedscope.json")
	}
}

func convertAll(opts convertOptions, paths []string) error {
	switch opts.format {
	case formatSpeedscope, formatFlamegraph, formatPprof:
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, path := range paths {
		path := path
		g.Go(func() error {
			m, err := readModel(path)
			if err != nil {
				return err
			}
			out := outputPath(opts.out, path, opts.format)
			if err := convert(m, out, path, opts.format); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Debug().Str("input", path).Str("output", out).Msg("profile converted")
			return nil
		})
	}
	return g.Wait()
}

func convert(m *cpuprofile.Model, out, path, format string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	metadata := speedscope.ProfileMetadata{
		KeepNatives: keepNatives,
		ProfileID:   filepath.Base(path),
	}
	switch format {
	case formatPprof:
		err = pprofutil.Write(w, m, time.Now())
	case formatFlamegraph:
		output := speedscope.SampledFromModel(m, metadata)
		output.SortSamplesForFlamegraph()
		err = jsoniter.NewEncoder(w).Encode(output)
	default:
		err = jsoniter.NewEncoder(w).Encode(speedscope.FromModel(m, metadata))
	}
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
