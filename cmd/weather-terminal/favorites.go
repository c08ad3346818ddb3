package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "Manage saved locations",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		favs, err := env.favs.List(ctx)
		if err != nil {
			return err
		}
		printFavorites(cmd.OutOrStdout(), favs)
		return nil
	},
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <place>",
	Short: "Save a zipcode, \"City, ST\" or \"here\" as a favorite",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		query := strings.Join(args, " ")
		var loc models.Location
		if strings.EqualFold(strings.TrimSpace(query), refresh.HereQuery) {
			loc, err = env.locator.Locate(ctx)
			query = ""
		} else {
			loc, err = env.geocoder.Geocode(ctx, query)
		}
		if err != nil {
			return eris.Wrapf(err, "favorites: find %q", strings.Join(args, " "))
		}

		name, _ := cmd.Flags().GetString("name")
		fav, err := env.favs.Add(ctx, loc, loc.DisplayName(), query, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", fav.Label(), fav.UID)
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Remove a favorite by UID or legacy key",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.favs.Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var favoritesRenameCmd = &cobra.Command{
	Use:   "rename <id> [name]",
	Short: "Set a favorite's display name; omit the name to restore the original",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		name := strings.Join(args[1:], " ")
		if err := env.favs.Rename(ctx, args[0], name); err != nil {
			return err
		}
		if name == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Restored original name for %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", args[0], name)
		}
		return nil
	},
}

var favoritesImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import favorites from a JSON export and migrate them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		favs, err := readFavoritesFile(args[0])
		if err != nil {
			return err
		}

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.favs.Import(ctx, favs)
		if err != nil {
			return err
		}
		res, err := env.favs.Migrate(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d favorites (%d repaired, %d merged)\n",
			n, len(favs), res.Repaired, res.Merged)
		return nil
	},
}

var favoritesMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Assign UIDs to favorites saved before they existed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// openEnvironment already migrated; a second pass reports what is left.
		if env.notice != "" {
			return eris.New(env.notice)
		}
		res, err := env.favs.Migrate(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d, merged %d, copied %d cache slots\n", res.Repaired, res.Merged, res.Copied)
		return nil
	},
}

func init() {
	favoritesAddCmd.Flags().String("name", "", "custom display name")

	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesAddCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
	favoritesCmd.AddCommand(favoritesRenameCmd)
	favoritesCmd.AddCommand(favoritesImportCmd)
	favoritesCmd.AddCommand(favoritesMigrateCmd)
	rootCmd.AddCommand(favoritesCmd)
}

// readFavoritesFile decodes a JSON array of favorites. Entries from older
// exports may lack a uid.
func readFavoritesFile(path string) ([]models.Favorite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "favorites: read %s", path)
	}
	var favs []models.Favorite
	if err := json.Unmarshal(data, &favs); err != nil {
		return nil, eris.Wrapf(err, "favorites: decode %s", path)
	}
	return favs, nil
}

func printFavorites(out io.Writer, favs []models.Favorite) {
	if len(favs) == 0 {
		fmt.Fprintln(out, "No favorites saved.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tID\tLOCATION\tSEARCH\tADDED")
	for _, f := range favs {
		id := f.UID
		if id == "" {
			id = f.Key + " (legacy)"
		}
		added := ""
		if !f.CreatedAt.IsZero() {
			added = humanize.Time(f.CreatedAt)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Label(), id, f.Location.DisplayName(), f.SearchQuery, added)
	}
	_ = w.Flush()
}
