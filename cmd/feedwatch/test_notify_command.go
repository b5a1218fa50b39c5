package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"feedwatch/internal/app"
	"feedwatch/internal/domain"
	"feedwatch/internal/notifier"
	logx "feedwatch/pkg/logx"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send one synthetic batch through the configured transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := ctx.load()
			if err != nil {
				return err
			}
			sender, err := app.NewSender(r.Notify, logx.NewConsole("warn"))
			if err != nil {
				return err
			}
			if sender == nil {
				return errors.New("no notification target configured (set notify.target or --notify)")
			}

			msg, err := notifier.Compose([]domain.Item{sampleItem(time.Now())}, r.Settings.Filters, r.Settings.Target)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; sending text only\n", err)
			}
			sendCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := sender.Send(sendCtx, msg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent via %s to %s\n", sender.Name(), r.Notify.Target)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Give up on the send after this long")
	return cmd
}

func sampleItem(now time.Time) domain.Item {
	return domain.Item{
		ID:        "t3_feedwatch_test",
		Title:     "feedwatch test notification",
		Author:    "feedwatch",
		Container: "r/feedwatch",
		Permalink: "https://www.reddit.com/r/feedwatch/",
		CreatedAt: now.UTC().Truncate(time.Second),
	}
}
