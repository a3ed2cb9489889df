package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getsentry/cpuprof/internal/cpuprofile"
	"github.com/getsentry/cpuprof/internal/envutil"
	"github.com/getsentry/cpuprof/internal/logutil"
)

var keepNatives bool

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cpuprof",
		Short:         "Inspect and convert V8 CPU profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(
		&keepNatives,
		"keep-natives",
		envutil.GetBoolOrFallback("CPUPROF_KEEP_NATIVES", false),
		"keep native frames instead of folding them into their caller",
	)
	rootCmd.AddCommand(newInspectCmd(), newConvertCmd())
	return rootCmd
}

func main() {
	logutil.ConfigureLogger()
	if err := logutil.SetLevel(envutil.GetEnvOrFallback("CPUPROF_LOG_LEVEL", "warn")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func readModel(path string) (*cpuprofile.Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := cpuprofile.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m, err := cpuprofile.New(raw, cpuprofile.Options{KeepNatives: keepNatives})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
