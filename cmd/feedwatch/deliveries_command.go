package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"feedwatch/internal/storage"
	logx "feedwatch/pkg/logx"
)

func newDeliveriesCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Show recent notification batches from the delivery log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := ctx.load()
			if err != nil {
				return err
			}
			openCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := storage.Open(openCtx, r.Storage, logx.Nop())
			if err != nil {
				return err
			}
			if st == nil {
				return errors.New("delivery log disabled (storage.driver is none)")
			}
			defer st.Close()

			ds, err := st.ListDeliveries(openCtx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ds) == 0 {
				fmt.Fprintln(out, "No deliveries recorded")
				return nil
			}
			fmt.Fprintln(out, renderDeliveries(ds, time.Now(), logx.IsTerminal(out)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of deliveries to show")
	return cmd
}

func renderDeliveries(ds []storage.Delivery, now time.Time, color bool) string {
	headers := []string{"When", "ID", "Transport", "Target", "Items", "Range", "Took", "Result"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(ds))
	for _, d := range ds {
		rows = append(rows, []string{
			humanize.RelTime(d.At, now, "ago", "from now"),
			shortID(d.ID),
			d.Transport,
			d.Target,
			strconv.Itoa(d.Items),
			d.FirstID + ".." + d.LastID,
			(time.Duration(d.TookMS) * time.Millisecond).String(),
			result(d, color),
		})
	}
	return renderTable(headers, rows, aligns)
}

func result(d storage.Delivery, color bool) string {
	s := "sent"
	if !d.OK() {
		s = "failed: " + d.Error
	}
	if !color {
		return s
	}
	if d.OK() {
		return text.FgGreen.Sprint(s)
	}
	return text.FgRed.Sprint(s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
