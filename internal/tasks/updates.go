package tasks

import "fmt"

// ProgressUpdate represents a progress event during a playlist generation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number
	Total   int    // Total steps in the run
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchTopTracks Phase = iota
	CreatePlaylist
	AddTracks
	Done
)

// totalSteps is the number of network phases in a generation run.
const totalSteps = 3

func (p Phase) String() string {
	switch p {
	case FetchTopTracks:
		return "fetch_top_tracks"
	case CreatePlaylist:
		return "create_playlist"
	case AddTracks:
		return "add_tracks"
	case Done:
		return "done"
	default:
		return ""
	}
}

func fetchTopTracksUpdate(limit int, window string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTopTracks,
		Step:    1,
		Total:   totalSteps,
		Message: fmt.Sprintf("Fetching your top %d tracks (%s)...", limit, window),
	}
}

func createPlaylistUpdate(name string, uris []string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    2,
		Total:   totalSteps,
		Message: fmt.Sprintf("Creating playlist %q for %d tracks...", name, len(uris)),
		Data:    uris,
	}
}

func addTracksUpdate(playlistID string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    3,
		Total:   totalSteps,
		Message: fmt.Sprintf("Adding %d tracks to playlist %s...", count, playlistID),
	}
}

func doneUpdate(result *GenerationResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    totalSteps,
		Total:   totalSteps,
		Message: fmt.Sprintf("✓ %s (%d tracks)", result.Name, len(result.TrackURIs)),
		Data:    result,
	}
}
