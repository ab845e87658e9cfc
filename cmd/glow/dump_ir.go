package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jygan/glow/internal/driver"
)

var dumpIRCmd = &cobra.Command{
	Use:   "dump-ir <manifest.toml>",
	Short: "Print the lowered instruction IR of a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := driver.DumpIR(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}
