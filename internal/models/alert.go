package models

import "time"

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityExtreme  AlertSeverity = "Extreme"
	SeveritySevere   AlertSeverity = "Severe"
	SeverityModerate AlertSeverity = "Moderate"
	SeverityMinor    AlertSeverity = "Minor"
	SeverityUnknown  AlertSeverity = "Unknown"
)

// Alert represents an active NWS alert for a point
type Alert struct {
	ID          string        `json:"id"`
	Event       string        `json:"event"` // e.g., "Winter Storm Warning", "Heat Advisory"
	Headline    string        `json:"headline,omitempty"`
	Description string        `json:"description,omitempty"`
	Severity    AlertSeverity `json:"severity"`
	Urgency     string        `json:"urgency,omitempty"`
	Onset       time.Time     `json:"onset"`
	Expires     time.Time     `json:"expires"`
	AreaDesc    string        `json:"areaDesc,omitempty"`
	Instruction string        `json:"instruction,omitempty"`
}

// ActiveAt reports whether the alert is in effect at t. A zero Onset means
// the alert is already in effect.
func (a *Alert) ActiveAt(t time.Time) bool {
	if !a.Onset.IsZero() && t.Before(a.Onset) {
		return false
	}
	return a.Expires.IsZero() || t.Before(a.Expires)
}

// Rank orders severities from most (4) to least (0) severe.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityExtreme:
		return 4
	case SeveritySevere:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	}
	return 0
}
