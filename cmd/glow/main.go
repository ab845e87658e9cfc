package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jygan/glow/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "glow",
	Short: "Glow neural network compiler",
	Long:  `Glow compiles tensor computation graphs to LLVM modules`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(dumpIRCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|always|never)")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
