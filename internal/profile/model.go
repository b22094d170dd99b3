// Package profile provides read access to per-user preference profiles used
// by newsfeed ranking.
package profile

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when no profile exists for the requested user.
var ErrUserNotFound = errors.New("user not found")

// Dimension names.
const (
	DimensionLocation = "location"
	DimensionCategory = "category"
)

// Profile holds a user's interaction counters and declared preference
// multipliers for each ranking dimension. Location keys are continents;
// category keys are post tags.
type Profile struct {
	UserID              string             `json:"user_id"`
	LocationCounts      map[string]float64 `json:"location_counts"`
	LocationPreferences map[string]float64 `json:"location_preferences"`
	CategoryCounts      map[string]float64 `json:"category_counts"`
	CategoryPreferences map[string]float64 `json:"category_preferences"`
}

// Store reads preference profiles.
type Store interface {
	// GetProfile returns the profile for userID or ErrUserNotFound.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	return &Profile{
		UserID:              p.UserID,
		LocationCounts:      cloneMap(p.LocationCounts),
		LocationPreferences: cloneMap(p.LocationPreferences),
		CategoryCounts:      cloneMap(p.CategoryCounts),
		CategoryPreferences: cloneMap(p.CategoryPreferences),
	}
}

func cloneMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
