// package services defines the Web API client used by the playlist pipeline
package services

import (
	"context"
	"strings"
)

const (
	DefaultTopTracksLimit = 25
	DefaultTimeRange      = "short_term"

	// maxTracksPerAdd is the most URIs the add-items endpoint accepts in one request.
	maxTracksPerAdd = 100
)

// TokenProvider hands out a bearer token for each API request.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Service defines the API calls the playlist pipeline depends on.
type Service interface {
	// TopTracks returns the URIs of the user's most played tracks for the time window.
	TopTracks(ctx context.Context, limit int, window string) ([]string, error)

	// CreatePlaylist creates an empty playlist owned by userID and returns its ID.
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error)

	// AddTracks appends the track URIs to an existing playlist.
	AddTracks(ctx context.Context, playlistID string, uris []string) error
}

// Track is a flattened view of a top track used for display and export.
type Track struct {
	ID       string
	URI      string
	Title    string
	Artist   string
	Album    string
	Duration int // Duration in seconds
	ISRC     string
}

// Flatten converts an API track into a [Track], joining artist names with ", ".
func (t SpotifyTrack) Flatten() Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return Track{
		ID:       t.ID,
		URI:      t.URI,
		Title:    t.Name,
		Artist:   strings.Join(names, ", "),
		Album:    t.Album.Name,
		Duration: t.DurationMS / 1000,
		ISRC:     t.ExternalIDs.ISRC,
	}
}
