package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
)

const (
	resolveTimeout = 15 * time.Second
	fetchTimeout   = 45 * time.Second
)

// resolvedMsg carries the outcome of Orchestrator.Resolve. seq matches the
// request that produced it so an older resolve cannot replace a newer one.
type resolvedMsg struct {
	seq int
	res refresh.Resolution
	err error
}

// refreshResultMsg is a finished refresh or enrichment.
type refreshResultMsg struct {
	result refresh.Result
}

// lastViewedMissingMsg means there was nothing to restore on start.
type lastViewedMissingMsg struct {
	seq int
}

// autoRefreshMsg fires on the auto-refresh interval.
type autoRefreshMsg struct{}

type favoritesLoadedMsg struct {
	favorites []models.Favorite
	err       error
}

// favoriteChangedMsg follows an add, remove or rename.
type favoriteChangedMsg struct {
	status string
	err    error
}

// resolvePlace runs Resolve off the event loop. state is the dashboard at
// the time of the request.
func resolvePlace(orch *refresh.Orchestrator, seq int, state refresh.DashboardState, place refresh.Place) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()

		res, err := orch.Resolve(ctx, state, place)
		return resolvedMsg{seq: seq, res: res, err: err}
	}
}

// restoreLastViewed resolves the place shown when the program last ran.
func restoreLastViewed(orch *refresh.Orchestrator, seq int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()

		place, ok, err := orch.LastViewed(ctx)
		if err != nil || !ok {
			return lastViewedMissingMsg{seq: seq}
		}
		res, err := orch.Resolve(ctx, refresh.DashboardState{}, place)
		return resolvedMsg{seq: seq, res: res, err: err}
	}
}

func runRefresh(orch *refresh.Orchestrator, r refresh.Refresh) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		return refreshResultMsg{result: orch.Run(ctx, r)}
	}
}

// enrichSlot returns nil when there is nothing to add.
func enrichSlot(orch *refresh.Orchestrator, slot identity.Slot, res refresh.Result) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		enriched, ok := orch.Enrich(ctx, slot, res.Entry)
		if !ok {
			return nil
		}
		return refreshResultMsg{result: enriched}
	}
}

func scheduleAutoRefresh(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg { return autoRefreshMsg{} })
}

func loadFavorites(store FavoritesStore) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()

		favs, err := store.List(ctx)
		return favoritesLoadedMsg{favorites: favs, err: err}
	}
}

func addFavorite(store FavoritesStore, loc models.Location, searchQuery string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()

		fav, err := store.Add(ctx, loc, loc.DisplayName(), searchQuery, "")
		if err != nil {
			return favoriteChangedMsg{err: err}
		}
		return favoriteChangedMsg{status: "Saved " + fav.Label() + " to favorites"}
	}
}

func removeFavorite(store FavoritesStore, fav models.Favorite) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()

		if err := store.Remove(ctx, favoriteID(fav)); err != nil {
			return favoriteChangedMsg{err: err}
		}
		return favoriteChangedMsg{status: "Removed " + fav.Label()}
	}
}

func renameFavorite(store FavoritesStore, fav models.Favorite, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()

		if err := store.Rename(ctx, favoriteID(fav), name); err != nil {
			return favoriteChangedMsg{err: err}
		}
		return favoriteChangedMsg{status: "Renamed " + fav.Name}
	}
}

// favoriteID is the identifier the store accepts: the UID, or the legacy key
// for entries not yet migrated.
func favoriteID(fav models.Favorite) string {
	if fav.UID != "" {
		return fav.UID
	}
	return fav.Key
}

// favoritePlace is the place selecting fav resolves.
func favoritePlace(fav models.Favorite) refresh.Place {
	if fav.UID != "" {
		return refresh.Favorite(fav.UID)
	}
	if fav.SearchQuery != "" {
		return refresh.Search(fav.SearchQuery)
	}
	return refresh.Search(fav.Key)
}
