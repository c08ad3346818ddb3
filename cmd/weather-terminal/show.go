package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
	"github.com/ngmaloney/weather-terminal/internal/staleness"
)

const showPeriods = 4

var showCmd = &cobra.Command{
	Use:   "show <place>",
	Short: "Print the dashboard for a place and exit",
	Long:  "Resolves a zipcode, \"City, ST\", favorite:<uid> or \"here\" the same way the dashboard does, waits for any refresh, and prints a summary.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		session := refresh.NewSession(env.orch)
		if _, err := session.Resolve(ctx, refresh.ParsePlace(strings.Join(args, " "))); err != nil {
			return err
		}
		session.Wait()

		state := session.State()
		if state.Err != nil && !state.HasData() {
			return state.Err
		}
		printDashboard(cmd.OutOrStdout(), state, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

// printDashboard writes a plain-text summary of state.
func printDashboard(out io.Writer, state refresh.DashboardState, now time.Time) {
	entry := state.Entry
	if entry == nil {
		fmt.Fprintln(out, "No weather data.")
		return
	}
	payload := entry.Payload
	tz := time.Local
	if name := payload.Location.TimeZone; name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			tz = loc
		}
	}

	title := entry.LocationDisplay
	if title == "" {
		title = state.Location.DisplayName()
	}
	fmt.Fprintln(out, title)

	updated := "Updated " + humanize.RelTime(entry.FetchedAt, now, "ago", "from now")
	if staleness.IsStale(now, entry.FetchedAt) {
		updated += " (stale)"
	}
	fmt.Fprintln(out, updated)
	if state.Err != nil {
		fmt.Fprintf(out, "Refresh failed: %v\n", state.Err)
	}

	fmt.Fprintln(out)
	if temp, ok := entry.Observations.TemperatureF(); ok {
		fmt.Fprintf(out, "Now: %.0f°F, %s (%s)\n", temp, entry.Observations.Description, entry.Observations.StationID)
	} else if cur, ok := payload.Current(); ok {
		fmt.Fprintf(out, "Now: %d°%s, %s\n", cur.Temperature, cur.TemperatureUnit, cur.ShortForecast)
	}

	for i, p := range payload.Periods {
		if i >= showPeriods {
			break
		}
		line := fmt.Sprintf("  %-16s %3d°%s  %s", p.Name, p.Temperature, p.TemperatureUnit, p.ShortForecast)
		if p.PrecipChance > 0 {
			line += fmt.Sprintf(" (%d%%)", p.PrecipChance)
		}
		fmt.Fprintln(out, line)
	}

	alerts := payload.ActiveAlerts(now)
	fmt.Fprintln(out)
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No active alerts")
	}
	for _, a := range alerts {
		fmt.Fprintf(out, "! %s [%s] until %s\n", a.Event, a.Severity, a.Expires.In(tz).Format("Mon 3:04 PM"))
	}

	printCoastal(out, payload, now, tz)
}

func printCoastal(out io.Writer, payload models.WeatherPayload, now time.Time, tz *time.Location) {
	if payload.MarineZone == nil && payload.Tides == nil {
		return
	}
	fmt.Fprintln(out)
	if z := payload.MarineZone; z != nil {
		fmt.Fprintf(out, "Marine zone: %s %s (%s mi)\n", z.Code, z.Name, humanize.FtoaWithDigits(z.DistanceMiles, 1))
	}
	if td := payload.Tides; td != nil {
		fmt.Fprintf(out, "Tides: %s (%s mi)\n", td.StationName, humanize.FtoaWithDigits(td.DistanceMiles, 1))
		if next, ok := td.Next(now); ok {
			fmt.Fprintf(out, "  Next: %s tide at %s (%.1f ft)\n", next.Type.Label(), next.Time.In(tz).Format("3:04 PM"), next.Height)
		}
	}
}
