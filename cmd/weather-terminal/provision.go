package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ngmaloney/weather-terminal/internal/database"
	"github.com/ngmaloney/weather-terminal/internal/geocoding"
	"github.com/ngmaloney/weather-terminal/internal/stations"
	"github.com/ngmaloney/weather-terminal/internal/zones"
)

// Lookup tables built by provision.
const (
	tableZipcodes = "zipcodes"
	tableStations = "stations"
	tableZones    = "zones"
)

var provisionTables = []string{tableZipcodes, tableStations, tableZones}

var provisionCmd = &cobra.Command{
	Use:   "provision [table...]",
	Short: "Download lookup tables: zipcodes, stations, zones",
	Long: "Builds the local zipcode, tide station and marine zone tables in the shared database. " +
		"Tables that already exist are left alone. With no arguments all three are built.",
	ValidArgs: provisionTables,
	Args:      cobra.OnlyValidArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := database.Open(ctx, database.DBPath(cfg.DataDir))
		if err != nil {
			return err
		}
		defer db.Close()

		tables := args
		if len(tables) == 0 {
			tables = provisionTables
		}
		client := &http.Client{Timeout: 10 * time.Minute}

		var (
			mu     sync.Mutex
			counts = make(map[string]int)
		)
		record := func(table string, n int) {
			mu.Lock()
			counts[table] = n
			mu.Unlock()
		}

		// Downloads run in parallel; the loads take turns on the single
		// database connection.
		g, gctx := errgroup.WithContext(ctx)
		for _, table := range tables {
			table := table
			g.Go(func() error {
				n, err := provisionTable(gctx, table, db, client)
				if err != nil {
					return eris.Wrapf(err, "provision %s", table)
				}
				record(table, n)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, table := range provisionTables {
			if !slices.Contains(tables, table) {
				continue
			}
			if n := counts[table]; n > 0 {
				fmt.Fprintf(out, "%s: loaded %d rows\n", table, n)
			} else {
				fmt.Fprintf(out, "%s: already provisioned\n", table)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}

func provisionTable(ctx context.Context, table string, db *sql.DB, client *http.Client) (int, error) {
	switch table {
	case tableZipcodes:
		return geocoding.ProvisionZipcodes(ctx, db, client, geocoding.ZipcodeCSVURL)
	case tableStations:
		return stations.Provision(ctx, db, client, stations.MDAPIBaseURL)
	case tableZones:
		return zones.Provision(ctx, db, client, zones.ShapefileURL, cfg.DataDir)
	}
	return 0, eris.Errorf("unknown table %q (want one of %s)", table, strings.Join(provisionTables, ", "))
}
