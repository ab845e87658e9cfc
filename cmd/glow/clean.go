package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jygan/glow/internal/driver"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove all cached build artifacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := driver.DropCache(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "artifact cache cleared")
		return nil
	},
}
