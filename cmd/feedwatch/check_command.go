package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"feedwatch/internal/app"
	"feedwatch/internal/notifier"
	logx "feedwatch/pkg/logx"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and transport credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := ctx.load()
			if err != nil {
				return err
			}
			if _, err := app.NewSender(r.Notify, logx.Nop()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			snap := r.Settings
			fmt.Fprintln(out, "Configuration OK")
			fmt.Fprintf(out, "  watching:      %s\n", snap.Filters.Describe())
			fmt.Fprintf(out, "  poll interval: %s\n", snap.PollInterval())
			fmt.Fprintf(out, "  page size:     %d\n", r.PageSize)
			if r.Notify.Target.Kind == notifier.KindNone {
				fmt.Fprintln(out, "  notify:        disabled (log only)")
			} else {
				fmt.Fprintf(out, "  notify:        %s every %s (batch %d..%d)\n",
					r.Notify.Target, snap.Batch.SendInterval, snap.Batch.MinItems, snap.Batch.MaxItems)
			}
			driver := r.Storage.Driver
			if driver == "" {
				driver = "none"
			}
			fmt.Fprintf(out, "  storage:       %s\n", driver)
			return nil
		},
	}
}
