// package tasks implements the top tracks playlist pipeline.
//
// The core abstraction is PlaylistGenerator, which sequences the dependent API calls and records each attempt.
// Operations emit progress updates via channels for non-blocking status reporting to the CLI layer.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/topmix/internal/models"
	"github.com/desertthunder/topmix/internal/services"
	"github.com/desertthunder/topmix/internal/shared"
)

// GenerationRequest is the input to the create and add steps, derived from the top tracks fetch.
type GenerationRequest struct {
	UserID          string
	SourceTrackURIs []string
}

// GenerationResult contains the data from a generation run.
//
// On a [shared.PartialPlaylistError] the result is still returned so callers can report the orphaned playlist.
type GenerationResult struct {
	PlaylistID string
	Name       string
	TrackURIs  []string
	Generation *models.Generation // nil when no recorder is configured
}

// Recorder persists generation attempts.
type Recorder interface {
	Create(ctx context.Context, g *models.Generation) error
}

// PlaylistSettings describes the playlist a run creates.
type PlaylistSettings struct {
	Name        string
	Description string
	Public      bool
	Limit       int
	TimeRange   string
}

// SettingsFromConfig converts the [playlist] config section.
func SettingsFromConfig(c shared.PlaylistConfig) PlaylistSettings {
	return PlaylistSettings{
		Name:        c.Name,
		Description: c.Description,
		Public:      c.Public,
		Limit:       c.Limit,
		TimeRange:   c.TimeRange,
	}
}

// PlaylistGenerator builds a playlist from the user's top tracks.
type PlaylistGenerator struct {
	api      services.Service
	recorder Recorder
	settings PlaylistSettings
	logger   *log.Logger
}

// GeneratorOption configures a [PlaylistGenerator].
type GeneratorOption func(*PlaylistGenerator)

// WithRecorder records every run.
func WithRecorder(r Recorder) GeneratorOption {
	return func(g *PlaylistGenerator) { g.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) GeneratorOption {
	return func(g *PlaylistGenerator) { g.logger = l }
}

// NewPlaylistGenerator creates a new PlaylistGenerator. Empty settings fall back to the service defaults.
func NewPlaylistGenerator(api services.Service, settings PlaylistSettings, opts ...GeneratorOption) *PlaylistGenerator {
	if settings.Limit <= 0 {
		settings.Limit = services.DefaultTopTracksLimit
	}
	if settings.TimeRange == "" {
		settings.TimeRange = services.DefaultTimeRange
	}
	if settings.Name == "" {
		settings.Name = "Best of Past 4 Weeks"
	}

	g := &PlaylistGenerator{
		api:      api,
		settings: settings,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// sendProgress sends a progress update through the channel without blocking.
func (g *PlaylistGenerator) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// GenerateTopTracksPlaylist fetches the user's top tracks, creates a playlist and adds the tracks to it.
//
// Each call runs strictly in order and issues one request per step. Concurrent calls are independent and
// each creates its own playlist. If adding fails after the playlist exists, the error is a
// [shared.PartialPlaylistError] and the playlist is left in place.
func (g *PlaylistGenerator) GenerateTopTracksPlaylist(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*GenerationResult, error) {
	if g.api == nil {
		return nil, fmt.Errorf("%w: API client not initialized", shared.ErrServiceUnavailable)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	result := &GenerationResult{Name: g.settings.Name}
	gen := models.NewGeneration(0, userID, g.settings.Name)
	logger := g.logger.With("user_id", userID)

	g.sendProgress(progress, fetchTopTracksUpdate(g.settings.Limit, g.settings.TimeRange))
	uris, err := g.api.TopTracks(ctx, g.settings.Limit, g.settings.TimeRange)
	if err != nil {
		return nil, g.fail(ctx, gen, result, fmt.Errorf("failed to fetch top tracks: %w", err))
	}
	if len(uris) == 0 {
		return nil, g.fail(ctx, gen, result, shared.ErrNoTopTracks)
	}

	req := GenerationRequest{UserID: userID, SourceTrackURIs: uris}
	result.TrackURIs = req.SourceTrackURIs

	g.sendProgress(progress, createPlaylistUpdate(g.settings.Name, req.SourceTrackURIs))
	playlistID, err := g.api.CreatePlaylist(ctx, req.UserID, g.settings.Name, g.settings.Description, g.settings.Public)
	if err != nil {
		return nil, g.fail(ctx, gen, result, fmt.Errorf("failed to create playlist: %w", err))
	}
	result.PlaylistID = playlistID

	g.sendProgress(progress, addTracksUpdate(playlistID, len(req.SourceTrackURIs)))
	if err := g.api.AddTracks(ctx, playlistID, req.SourceTrackURIs); err != nil {
		logger.Warn("playlist left without tracks", "playlist_id", playlistID, "error", err)
		partial := &shared.PartialPlaylistError{PlaylistID: playlistID, Err: err}
		return result, g.fail(ctx, gen, result, partial)
	}

	gen.Complete(playlistID, len(req.SourceTrackURIs))
	g.record(ctx, gen, result)
	logger.Info("playlist generated", "playlist_id", playlistID, "tracks", len(req.SourceTrackURIs))

	g.sendProgress(progress, doneUpdate(result))
	return result, nil
}

// fail records the failed run and returns err unchanged.
func (g *PlaylistGenerator) fail(ctx context.Context, gen *models.Generation, result *GenerationResult, err error) error {
	gen.Fail(result.PlaylistID, err)
	g.record(ctx, gen, result)
	return err
}

// record stores the attempt. Failures are logged and never change the run's outcome.
func (g *PlaylistGenerator) record(ctx context.Context, gen *models.Generation, result *GenerationResult) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.Create(context.WithoutCancel(ctx), gen); err != nil {
		g.logger.Error("failed to record generation", "status", gen.Status(), "error", err)
		return
	}
	result.Generation = gen
}

// IsPartial reports whether err means a playlist was created but left unpopulated.
func IsPartial(err error) (string, bool) {
	var partial *shared.PartialPlaylistError
	if errors.As(err, &partial) {
		return partial.PlaylistID, true
	}
	return "", false
}
