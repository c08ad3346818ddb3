package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/ngmaloney/weather-terminal/internal/models"
)

// favoriteItem wraps a Favorite for use in a list
type favoriteItem struct {
	fav models.Favorite
}

// FilterValue implements list.Item
func (f favoriteItem) FilterValue() string {
	return f.fav.Label() + " " + f.fav.Name
}

// Title implements list.DefaultItem
func (f favoriteItem) Title() string {
	return f.fav.Label()
}

// Description implements list.DefaultItem
func (f favoriteItem) Description() string {
	desc := f.fav.Location.DisplayName()
	if f.fav.CustomName != "" && desc != f.fav.CustomName {
		return desc
	}
	if lat, lon, ok := f.fav.Location.Coordinates(); ok {
		return fmt.Sprintf("%.4f, %.4f", lat, lon)
	}
	return desc
}

// createFavoriteList creates a list.Model from favorites
func createFavoriteList(favs []models.Favorite, width, height int) list.Model {
	items := make([]list.Item, len(favs))
	for i, fav := range favs {
		items[i] = favoriteItem{fav: fav}
	}

	l := list.New(items, list.NewDefaultDelegate(), width, height)
	l.Title = "Favorites"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)

	return l
}
