package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jygan/glow/internal/diag"
	"github.com/jygan/glow/internal/driver"
)

var (
	buildOutputDir string
	buildDebugInfo bool
	buildNoCache   bool
)

func init() {
	buildCmd.Flags().StringVarP(&buildOutputDir, "out-dir", "o", ".", "directory for emitted artifacts")
	buildCmd.Flags().BoolVarP(&buildDebugInfo, "debug-info", "g", false, "emit debug metadata and the IR dump file")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "skip the artifact cache")
}

var buildCmd = &cobra.Command{
	Use:   "build <manifest.toml>",
	Short: "Compile a model to an LLVM module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		colorMode, _ := cmd.Flags().GetString("color")
		showTimings, _ := cmd.Flags().GetBool("timings")
		reporter := diag.NewConsoleReporter(os.Stderr, colorMode)

		res, err := driver.Compile(driver.Options{
			ManifestPath:  args[0],
			OutputDir:     buildOutputDir,
			EmitDebugInfo: buildDebugInfo,
			NoCache:       buildNoCache,
			Reporter:      reporter,
		})
		if err != nil {
			reporter.Report(diag.Error(diag.CodeBackend, err.Error()))
			return fmt.Errorf("build failed")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s", res.ModulePath)
		if res.FromCache {
			fmt.Fprint(cmd.OutOrStdout(), " (cached)")
		}
		fmt.Fprintln(cmd.OutOrStdout())
		if res.IRDumpPath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", res.IRDumpPath)
		}
		if showTimings {
			fmt.Fprint(cmd.OutOrStdout(), timingSummary(res.Timings))
		}
		return nil
	},
}
