package models

import "time"

// Favorite is a saved location. UID is empty only for legacy entries that
// have not been through favorites migration yet.
type Favorite struct {
	UID         string    `json:"uid,omitempty"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	CustomName  string    `json:"customName,omitempty"`
	Location    Location  `json:"location"`
	SearchQuery string    `json:"searchQuery"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Label is the name shown in lists: the custom name when set.
func (f Favorite) Label() string {
	if f.CustomName != "" {
		return f.CustomName
	}
	return f.Name
}
