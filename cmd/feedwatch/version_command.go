package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"feedwatch/internal/app"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "feedwatch %s (%s)\n", app.Version, runtime.Version())
			return nil
		},
	}
}
