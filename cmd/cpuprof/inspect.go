package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/getsentry/cpuprof/internal/cpuprofile"
	"github.com/getsentry/cpuprof/internal/nodetree"
)

var topFunctions int

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Print a summary of CPU profiles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				m, err := readModel(path)
				if err != nil {
					return err
				}
				if err := inspect(cmd.OutOrStdout(), path, m, topFunctions); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topFunctions, "top", 10, "number of functions to list by self time")
	return cmd
}

func inspect(w io.Writer, name string, m *cpuprofile.Model, top int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\n", name)
	fmt.Fprintf(tw, "start\t%.3fms\n", m.ProfileStartTime)
	fmt.Fprintf(tw, "end\t%.3fms\n", m.ProfileEndTime)
	fmt.Fprintf(tw, "duration\t%.3fms\n", m.Duration())
	fmt.Fprintf(tw, "samples\t%d\n", m.SampleCount())
	fmt.Fprintf(tw, "total hit count\t%d\n", m.TotalHitCount)
	fmt.Fprintf(tw, "fixed samples\t%d\n", m.FixedSamples)
	fmt.Fprintf(tw, "max depth\t%d\n", m.Tree().MaxDepth())

	functions := nodetree.CollectFunctions(nodetree.FromModel(m))
	if len(functions) > top {
		functions = functions[:top]
	}
	if len(functions) > 0 {
		fmt.Fprintf(tw, "\nself time\tfunction\tpackage\n")
	}
	for _, f := range functions {
		fmt.Fprintf(tw, "%.3fms\t%s\t%s\n", float64(f.SumSelfTimeNS)/1e6, f.Function, f.Package)
	}
	return tw.Flush()
}
