// Package ui is the bubbletea dashboard. All dashboard state changes happen
// in Update; network and database work runs in tea.Cmds whose results come
// back as messages and are folded in with refresh.Apply.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
)

// AppState represents the current screen
type AppState int

const (
	StateSearch    AppState = iota // Search for a place
	StateDashboard                 // Weather for the resolved place
	StateFavorites                 // Saved favorites list
	StateRename                    // Renaming a favorite
)

// DefaultAutoRefreshInterval is how often staleness is re-evaluated while
// auto-refresh is on.
const DefaultAutoRefreshInterval = 5 * time.Minute

// FavoritesStore is the part of the favorites store the dashboard edits.
type FavoritesStore interface {
	List(ctx context.Context) ([]models.Favorite, error)
	Add(ctx context.Context, loc models.Location, name, searchQuery, customName string) (models.Favorite, error)
	Remove(ctx context.Context, identifier string) error
	Rename(ctx context.Context, identifier, newName string) error
}

// Config wires the model to the rest of the application.
type Config struct {
	Orchestrator *refresh.Orchestrator
	Favorites    FavoritesStore

	// InitialPlace is resolved on start. When it is empty and
	// RestoreLastViewed is set, the last viewed place is resolved instead.
	InitialPlace      refresh.Place
	RestoreLastViewed bool

	AutoRefresh         bool
	AutoRefreshInterval time.Duration

	// Notice is shown in the status line until the first action.
	Notice string
}

// Model represents the application's state
type Model struct {
	state  AppState
	width  int
	height int
	err    error
	status string

	orch      *refresh.Orchestrator
	favorites FavoritesStore

	// dash is only replaced by resolvedMsg and refresh.Apply.
	dash      refresh.DashboardState
	seq       int
	resolving bool

	searchInput textinput.Model
	renameInput textinput.Model
	favList     list.Model
	renaming    *models.Favorite
	spinner     spinner.Model

	autoRefresh  bool
	autoInterval time.Duration

	initial refresh.Place
	restore bool

	now func() time.Time
}

// NewModel creates a new application model
func NewModel(cfg Config) Model {
	ti := textinput.New()
	ti.Placeholder = "Zipcode, City, ST, or \"here\" (e.g. 97201 or Portland, OR)..."
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 60

	ri := textinput.New()
	ri.Placeholder = "New name (empty restores the original)"
	ri.CharLimit = 60
	ri.Width = 40

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorSky)

	interval := cfg.AutoRefreshInterval
	if interval <= 0 {
		interval = DefaultAutoRefreshInterval
	}

	m := Model{
		state:        StateSearch,
		orch:         cfg.Orchestrator,
		favorites:    cfg.Favorites,
		searchInput:  ti,
		renameInput:  ri,
		spinner:      s,
		autoRefresh:  cfg.AutoRefresh,
		autoInterval: interval,
		status:       cfg.Notice,
		now:          time.Now,
	}

	switch {
	case !cfg.InitialPlace.IsZero():
		m.initial = cfg.InitialPlace
		m.state = StateDashboard
		m.seq, m.resolving = 1, true
		m.searchInput.Blur()
	case cfg.RestoreLastViewed:
		m.restore = true
		m.state = StateDashboard
		m.seq, m.resolving = 1, true
		m.searchInput.Blur()
	}
	return m
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick, scheduleAutoRefresh(m.autoInterval)}
	switch {
	case !m.initial.IsZero():
		cmds = append(cmds, resolvePlace(m.orch, m.seq, m.dash, m.initial))
	case m.restore:
		cmds = append(cmds, restoreLastViewed(m.orch, m.seq))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == StateFavorites {
			m.favList.SetSize(m.listSize())
		}
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case resolvedMsg:
		return m.handleResolved(msg)

	case lastViewedMissingMsg:
		if msg.seq == m.seq {
			m.resolving = false
			m.showSearch()
		}
		return m, textinput.Blink

	case refreshResultMsg:
		return m.handleRefreshResult(msg)

	case autoRefreshMsg:
		next := scheduleAutoRefresh(m.autoInterval)
		if !m.autoRefresh || m.dash.Place.IsZero() || m.dash.Loading || m.resolving {
			return m, next
		}
		m, cmd = m.startResolve(m.dash.Place)
		return m, tea.Batch(next, cmd)

	case favoritesLoadedMsg:
		if msg.err != nil {
			m.status = "Could not load favorites: " + msg.err.Error()
			return m, nil
		}
		w, h := m.listSize()
		m.favList = createFavoriteList(msg.favorites, w, h)
		m.state = StateFavorites
		return m, nil

	case favoriteChangedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.status = msg.status
		}
		if m.state == StateFavorites || m.state == StateRename {
			m.state = StateFavorites
			return m, loadFavorites(m.favorites)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.state {
		case StateSearch:
			return m.handleSearchInput(msg)
		case StateDashboard:
			return m.handleDashboardKey(msg)
		case StateFavorites:
			return m.handleFavoritesKey(msg)
		case StateRename:
			return m.handleRenameKey(msg)
		}
	}

	switch m.state {
	case StateSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
	case StateFavorites:
		m.favList, cmd = m.favList.Update(msg)
	case StateRename:
		m.renameInput, cmd = m.renameInput.Update(msg)
	}
	return m, cmd
}

// startResolve asks the orchestrator what to show for place.
func (m Model) startResolve(place refresh.Place) (Model, tea.Cmd) {
	m.seq++
	m.resolving = true
	m.err = nil
	m.status = ""
	m.state = StateDashboard
	m.searchInput.Blur()
	return m, resolvePlace(m.orch, m.seq, m.dash, place)
}

func (m Model) handleResolved(msg resolvedMsg) (tea.Model, tea.Cmd) {
	if msg.seq != m.seq {
		return m, nil
	}
	m.resolving = false
	m.dash = keepNewerEntry(m.dash, msg.res.State)

	if msg.err != nil {
		if !m.dash.HasData() {
			m.err = msg.err
			m.showSearch()
			return m, textinput.Blink
		}
		m.status = msg.err.Error()
		return m, nil
	}

	m.state = StateDashboard
	if p := msg.res.Pending; p != nil {
		return m, runRefresh(m.orch, *p)
	}
	return m, nil
}

// keepNewerEntry returns next, except that a refresh applied to the same
// slot while the resolve was running is not rolled back to the older entry
// the resolve started from.
func keepNewerEntry(shown, next refresh.DashboardState) refresh.DashboardState {
	if shown.Slot != next.Slot || shown.Entry == nil {
		return next
	}
	if next.Entry == nil || shown.Entry.FetchedAt.After(next.Entry.FetchedAt) {
		next.Entry = shown.Entry
		next.Location = shown.Location
	}
	return next
}

func (m Model) handleRefreshResult(msg refreshResultMsg) (tea.Model, tea.Cmd) {
	next, applied := refresh.Apply(m.dash, msg.result)
	if !applied {
		return m, nil
	}
	m.dash = next

	res := msg.result
	if res.Err != nil {
		if !m.dash.HasData() && m.state == StateDashboard {
			m.err = res.Err
			m.showSearch()
			return m, textinput.Blink
		}
		m.status = "Refresh failed, showing cached data"
		return m, nil
	}
	if res.Refresh.Mode == refresh.Enrichment {
		return m, nil
	}
	return m, enrichSlot(m.orch, res.Refresh.Slot, res)
}

func (m *Model) showSearch() {
	m.state = StateSearch
	m.searchInput.SetValue("")
	m.searchInput.Focus()
}

// handleSearchInput handles keyboard input in search state
func (m Model) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	// Clear error when typing
	if m.err != nil && msg.Type != tea.KeyEnter {
		m.err = nil
	}

	switch msg.Type {
	case tea.KeyEnter:
		query := strings.TrimSpace(m.searchInput.Value())
		if query == "" {
			return m, nil
		}
		return m.startResolve(refresh.ParsePlace(query))
	case tea.KeyEsc:
		if m.dash.HasData() {
			m.state = StateDashboard
			m.searchInput.Blur()
		}
		return m, nil
	case tea.KeyTab:
		if m.favorites != nil {
			return m, loadFavorites(m.favorites)
		}
		return m, nil
	}

	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "s", "/":
		m.status = ""
		m.showSearch()
		return m, textinput.Blink
	case "r":
		if m.dash.Place.IsZero() || m.resolving {
			return m, nil
		}
		place := m.dash.Place
		place.Force = true
		return m.startResolve(place)
	case "h":
		return m.startResolve(refresh.CurrentLocation())
	case "a":
		m.autoRefresh = !m.autoRefresh
		m.status = "Auto-refresh " + onOff(m.autoRefresh)
		return m, nil
	case "f":
		if m.favorites == nil || !m.dash.HasData() {
			return m, nil
		}
		query := m.dash.Place.Query
		if m.dash.Place.Kind != refresh.PlaceSearch {
			query = ""
		}
		return m, addFavorite(m.favorites, m.dash.Location, query)
	case "l", "tab":
		if m.favorites == nil {
			return m, nil
		}
		return m, loadFavorites(m.favorites)
	}
	return m, nil
}

func (m Model) handleFavoritesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.favList.FilterState() == list.Filtering {
		m.favList, cmd = m.favList.Update(msg)
		return m, cmd
	}

	item, selected := m.favList.SelectedItem().(favoriteItem)
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "enter":
		if selected {
			return m.startResolve(favoritePlace(item.fav))
		}
		return m, nil
	case "d", "delete":
		if selected {
			return m, removeFavorite(m.favorites, item.fav)
		}
		return m, nil
	case "n":
		if selected {
			fav := item.fav
			m.renaming = &fav
			m.renameInput.SetValue(fav.CustomName)
			m.renameInput.Focus()
			m.state = StateRename
			return m, textinput.Blink
		}
		return m, nil
	case "esc":
		if m.dash.HasData() {
			m.state = StateDashboard
			return m, nil
		}
		m.showSearch()
		return m, textinput.Blink
	}

	m.favList, cmd = m.favList.Update(msg)
	return m, cmd
}

func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		fav := m.renaming
		m.renaming = nil
		m.renameInput.Blur()
		if fav == nil {
			m.state = StateFavorites
			return m, nil
		}
		return m, renameFavorite(m.favorites, *fav, m.renameInput.Value())
	case tea.KeyEsc:
		m.renaming = nil
		m.renameInput.Blur()
		m.state = StateFavorites
		return m, nil
	}

	m.renameInput, cmd = m.renameInput.Update(msg)
	return m, cmd
}

// listSize is the favorites list size for the current window.
func (m Model) listSize() (width, height int) {
	return max(m.width-4, 20), max(m.height-8, 5)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var body string
	switch m.state {
	case StateSearch:
		body = m.viewSearch()
	case StateDashboard:
		if !m.dash.HasData() {
			body = m.viewLoading()
		} else {
			body = m.viewDashboard()
		}
	case StateFavorites:
		body = m.viewFavorites()
	case StateRename:
		body = m.viewRename()
	}
	return body
}

// viewSearch renders the search view
func (m Model) viewSearch() string {
	title := titleStyle.Render("Weather Terminal")
	subtitle := mutedStyle.Render("NOAA forecasts, alerts and tides")

	searchBox := searchBoxStyle.Render(m.searchInput.View())

	sections := []string{title, subtitle, "", searchBox}

	if m.err != nil {
		sections = append(sections, "", errorStyle.Render("✗ "+m.err.Error()))
	}
	if m.status != "" {
		sections = append(sections, "", statusStyle.Render(m.status))
	}

	help := "Enter: Search • Tab: Favorites • Ctrl+C: Quit"
	if m.dash.HasData() {
		help = "Enter: Search • Esc: Back • Tab: Favorites • Ctrl+C: Quit"
	}
	sections = append(sections,
		"",
		mutedStyle.Render("Examples: 97201 | Portland, OR | Boston, MA | here"),
		"",
		helpStyle.Render(help),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// viewLoading renders the spinner shown while nothing is cached
func (m Model) viewLoading() string {
	what := m.dash.Location.DisplayName()
	if what == "" {
		what = m.dash.Place.String()
	}
	line := "Loading weather"
	if what != "" {
		line += " for " + what
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Weather Terminal"),
		"",
		fmt.Sprintf("%s %s...", m.spinner.View(), line),
		"",
		helpStyle.Render("Ctrl+C: Quit"),
	)
}

// viewDashboard renders the weather for the displayed slot
func (m Model) viewDashboard() string {
	entry := m.dash.Entry
	payload := &entry.Payload
	now := m.now()
	tz := locationTZ(m.dash.Location)

	header := headerStyle.Render(m.dash.Location.DisplayName())
	sections := []string{header, m.statusLine(now)}

	if m.status != "" {
		sections = append(sections, statusStyle.Render(m.status))
	}

	sections = append(sections,
		sectionHeaderStyle.Render("NOW"),
		renderCurrent(entry),
		sectionHeaderStyle.Render("FORECAST"),
		renderForecast(payload),
	)

	if len(payload.Hourly) > 0 {
		sections = append(sections,
			sectionHeaderStyle.Render("NEXT HOURS"),
			renderHourly(payload.Hourly, tz),
		)
	}

	sections = append(sections,
		sectionHeaderStyle.Render("ALERTS"),
		renderAlerts(payload.ActiveAlerts(now), tz),
	)

	if payload.Tides != nil || payload.MarineZone != nil {
		sections = append(sections,
			sectionHeaderStyle.Render("COAST"),
			renderCoastal(payload, now, tz),
		)
	}

	help := helpStyle.Render("S: Search • R: Refresh • H: Here • F: Save favorite • L: Favorites • A: Auto-refresh • Q: Quit")
	sections = append(sections, "", help)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// viewFavorites renders the favorites list
func (m Model) viewFavorites() string {
	sections := []string{m.favList.View()}
	if m.status != "" {
		sections = append(sections, statusStyle.Render(m.status))
	}
	sections = append(sections,
		helpStyle.Render("Enter: Show • N: Rename • D: Remove • /: Filter • Esc: Back • Q: Quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// viewRename renders the rename prompt
func (m Model) viewRename() string {
	name := ""
	if m.renaming != nil {
		name = m.renaming.Label()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Rename "+name),
		"",
		m.renameInput.View(),
		"",
		helpStyle.Render("Enter: Save • Esc: Cancel"),
	)
}
