package api

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ngmaloney/weather-terminal/internal/models"
	"github.com/ngmaloney/weather-terminal/internal/refresh"
	"github.com/ngmaloney/weather-terminal/internal/staleness"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, s *Server) {
	v1 := app.Group("/api/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-terminal",
		})
	})

	v1.Get("/dashboard", s.getDashboard)
	v1.Post("/resolve", s.postResolve)
	v1.Post("/refresh", s.postRefresh)

	v1.Get("/favorites", s.listFavorites)
	v1.Post("/favorites", s.addFavorite)
	v1.Delete("/favorites/:id", s.removeFavorite)
	v1.Patch("/favorites/:id", s.renameFavorite)

	v1.Get("/auto-refresh", s.getAutoRefresh)
	v1.Put("/auto-refresh", s.putAutoRefresh)
}

// dashboardResponse is what the dashboard shows, plus how old it is.
type dashboardResponse struct {
	Place                 string                 `json:"place"`
	Slot                  string                 `json:"slot"`
	Location              models.Location        `json:"location"`
	Loading               bool                   `json:"loading"`
	Error                 string                 `json:"error,omitempty"`
	FetchedAt             *time.Time             `json:"fetchedAt,omitempty"`
	AgeSeconds            int64                  `json:"ageSeconds"`
	Stale                 bool                   `json:"stale"`
	Weather               *models.WeatherPayload `json:"weather,omitempty"`
	Observation           *models.Observation    `json:"observation,omitempty"`
	ObservationsAvailable bool                   `json:"observationsAvailable"`
}

func (s *Server) dashboard(state refresh.DashboardState) dashboardResponse {
	resp := dashboardResponse{
		Place:    state.Place.String(),
		Slot:     state.Slot.String(),
		Location: state.Location,
		Loading:  state.Loading,
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	if e := state.Entry; e != nil {
		now := s.now()
		fetchedAt := e.FetchedAt
		payload := e.Payload
		resp.FetchedAt = &fetchedAt
		resp.AgeSeconds = int64(staleness.Age(now, e.FetchedAt).Seconds())
		resp.Stale = staleness.IsStale(now, e.FetchedAt)
		resp.Weather = &payload
		resp.Observation = e.Observations
		resp.ObservationsAvailable = e.ObservationsAvailable
	}
	return resp
}

func (s *Server) getDashboard(c *fiber.Ctx) error {
	return c.JSON(s.dashboard(s.Session.State()))
}

type resolveRequest struct {
	Place string `json:"place" validate:"required,max=200"`
}

func (s *Server) postResolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Place = strings.TrimSpace(req.Place)
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	state, err := s.Session.Resolve(c.UserContext(), refresh.ParsePlace(req.Place))
	if err != nil {
		return err
	}
	return s.respondState(c, state)
}

func (s *Server) postRefresh(c *fiber.Ctx) error {
	if s.Session.State().Place.IsZero() {
		return fiber.NewError(fiber.StatusConflict, "no place is displayed")
	}
	state, err := s.Session.Refresh(c.UserContext())
	if err != nil {
		return err
	}
	return s.respondState(c, state)
}

// respondState reports a failed blocking refresh as an error when there is
// nothing cached to show instead.
func (s *Server) respondState(c *fiber.Ctx, state refresh.DashboardState) error {
	if state.Err != nil && !state.HasData() {
		return state.Err
	}
	return c.JSON(s.dashboard(state))
}

type favoriteResponse struct {
	ID string `json:"id"`
	models.Favorite
	Label string `json:"label"`
}

func toFavoriteResponse(fav models.Favorite) favoriteResponse {
	id := fav.UID
	if id == "" {
		id = fav.Key
	}
	return favoriteResponse{ID: id, Favorite: fav, Label: fav.Label()}
}

func (s *Server) listFavorites(c *fiber.Ctx) error {
	favs, err := s.Favorites.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]favoriteResponse, 0, len(favs))
	for _, fav := range favs {
		out = append(out, toFavoriteResponse(fav))
	}
	return c.JSON(out)
}

// addFavoriteRequest saves explicit coordinates, or the displayed location
// when they are omitted.
type addFavoriteRequest struct {
	Name      string   `json:"name" validate:"max=100"`
	Latitude  *float64 `json:"lat" validate:"omitempty,latitude"`
	Longitude *float64 `json:"lon" validate:"omitempty,longitude"`
	City      string   `json:"city" validate:"max=100"`
	State     string   `json:"state" validate:"omitempty,len=2,alpha"`
}

func (s *Server) addFavorite(c *fiber.Ctx) error {
	var req addFavoriteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lon must be given together")
	}

	var (
		loc   models.Location
		query string
	)
	if req.Latitude != nil {
		loc = models.NewLocation(*req.Latitude, *req.Longitude, req.City, req.State)
	} else {
		state := s.Session.State()
		if !state.HasData() {
			return fiber.NewError(fiber.StatusConflict, "no location is displayed")
		}
		loc = state.Location
		if state.Place.Kind == refresh.PlaceSearch {
			query = state.Place.Query
		}
	}

	fav, err := s.Favorites.Add(c.UserContext(), loc, loc.DisplayName(), query, strings.TrimSpace(req.Name))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toFavoriteResponse(fav))
}

func (s *Server) removeFavorite(c *fiber.Ctx) error {
	if err := s.Favorites.Remove(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type renameRequest struct {
	Name string `json:"name" validate:"max=100"`
}

// renameFavorite sets a custom name; an empty name restores the original.
func (s *Server) renameFavorite(c *fiber.Ctx) error {
	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.Favorites.Rename(c.UserContext(), c.Params("id"), req.Name); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type autoRefreshRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (s *Server) autoRefreshStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"enabled":  s.AutoRefresh.Enabled(),
		"interval": s.AutoRefresh.Interval().String(),
	})
}

func (s *Server) getAutoRefresh(c *fiber.Ctx) error {
	if s.AutoRefresh == nil {
		return fiber.ErrNotFound
	}
	return s.autoRefreshStatus(c)
}

func (s *Server) putAutoRefresh(c *fiber.Ctx) error {
	if s.AutoRefresh == nil {
		return fiber.ErrNotFound
	}
	var req autoRefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.AutoRefresh.SetEnabled(*req.Enabled)
	return s.autoRefreshStatus(c)
}
