package models

import "time"

// TideType marks a prediction as high or low water, using the CO-OPS codes.
type TideType string

const (
	TideHigh TideType = "H"
	TideLow  TideType = "L"
)

// Label is "High" or "Low".
func (t TideType) Label() string {
	if t == TideHigh {
		return "High"
	}
	return "Low"
}

// TideEvent is one predicted high or low.
type TideEvent struct {
	Time   time.Time `json:"time"`
	Type   TideType  `json:"type"`
	Height float64   `json:"height"` // feet above MLLW
}

// TideData holds predictions from the station nearest a location. Events
// are sorted by time.
type TideData struct {
	StationID     string      `json:"stationId"`
	StationName   string      `json:"stationName"`
	DistanceMiles float64     `json:"distanceMiles"`
	Events        []TideEvent `json:"events"`
}

// EventsOn returns the events falling on day's calendar date in day's
// location.
func (td *TideData) EventsOn(day time.Time) []TideEvent {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var events []TideEvent
	for _, e := range td.Events {
		if e.Time.Before(start) {
			continue
		}
		if !e.Time.Before(end) {
			break
		}
		events = append(events, e)
	}
	return events
}

// Next returns the first event after t.
func (td *TideData) Next(t time.Time) (TideEvent, bool) {
	for _, event := range td.Events {
		if event.Time.After(t) {
			return event, true
		}
	}
	return TideEvent{}, false
}
