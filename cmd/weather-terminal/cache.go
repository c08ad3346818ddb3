package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ngmaloney/weather-terminal/internal/cache"
	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/staleness"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached weather",
}

var cacheListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List cache slots with their age",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		slots, err := env.tier.Slots(ctx)
		if err != nil {
			return err
		}
		printSlots(cmd.OutOrStdout(), slots, time.Now())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [slot]",
	Short: "Clear one slot, or every slot when none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 0 {
			if err := env.tier.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared all cached weather")
			return nil
		}

		slot, err := identity.ParseSlot(args[0])
		if err != nil {
			return err
		}
		if err := env.tier.Clear(ctx, slot); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", slot)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func printSlots(out io.Writer, slots []cache.SlotInfo, now time.Time) {
	if len(slots) == 0 {
		fmt.Fprintln(out, "Cache is empty.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SLOT\tLOCATION\tFETCHED\tSTATUS")
	for _, s := range slots {
		fetched, status := "unknown", "no timestamp"
		if !s.FetchedAt.IsZero() {
			fetched = humanize.RelTime(s.FetchedAt, now, "ago", "from now")
			status = "fresh"
			if staleness.IsStale(now, s.FetchedAt) {
				status = "stale"
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Slot, s.LocationDisplay, fetched, status)
	}
	_ = w.Flush()
}
