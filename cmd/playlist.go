package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/topmix/internal/formatter"
	"github.com/desertthunder/topmix/internal/models"
	"github.com/desertthunder/topmix/internal/services"
	"github.com/desertthunder/topmix/internal/shared"
	"github.com/desertthunder/topmix/internal/tasks"
	"github.com/desertthunder/topmix/internal/ui"
)

// Me prints the signed-in user's profile.
func (r *Runner) Me(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx, cmd); err != nil {
		return err
	}
	if err := r.requireSession(); err != nil {
		return err
	}

	user, err := r.client.UserProfile(ctx)
	if err != nil {
		return err
	}

	name := user.DisplayName
	if name == "" {
		name = user.ID
	}
	r.writePlain("%s\n", ui.Title(name))
	r.writePlain("ID: %s\n", user.ID)
	if user.Product != "" {
		r.writePlain("Plan: %s\n", user.Product)
	}
	r.writePlain("Followers: %d\n", user.Followers.Total)
	if len(user.Images) > 0 {
		r.writePlain("Avatar: %s\n", user.Images[0].URL)
	}
	return nil
}

// Top lists the user's top tracks in the chosen format, to stdout or a file.
func (r *Runner) Top(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx, cmd); err != nil {
		return err
	}
	if err := r.requireSession(); err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	limit := int(cmd.Int("limit"))
	if limit <= 0 {
		limit = r.config.Playlist.Limit
	}
	window := cmd.String("range")
	if window == "" {
		window = r.config.Playlist.TimeRange
	}

	items, err := r.client.TopTrackItems(ctx, limit, window)
	if err != nil {
		return err
	}
	tracks := make([]services.Track, 0, len(items))
	for _, item := range items {
		tracks = append(tracks, item.Flatten())
	}

	title := fmt.Sprintf("Top %d tracks", len(tracks))
	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteTracksFile(path, format, title, window, tracks)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", ui.OK(fmt.Sprintf("Exported %d tracks to %s", len(tracks), written)))
	}
	return formatter.WriteTracks(r.output, format, title, window, tracks)
}

// Generate creates the top tracks playlist and reports each step as it runs.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx, cmd); err != nil {
		return err
	}
	if err := r.requireSession(); err != nil {
		return err
	}

	generator := r.generator
	if name, public := cmd.String("name"), cmd.Bool("public"); name != "" || public {
		settings := tasks.SettingsFromConfig(r.config.Playlist)
		if name != "" {
			settings.Name = name
		}
		settings.Public = settings.Public || public
		generator = tasks.NewPlaylistGenerator(r.client, settings,
			tasks.WithRecorder(r.history),
			tasks.WithLogger(shared.WithLogger(r.logger, "component", "generate")),
		)
	}

	user, err := r.client.UserProfile(ctx)
	if err != nil {
		return fmt.Errorf("failed to look up the current user: %w", err)
	}

	progressCh := make(chan tasks.ProgressUpdate, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if update.Phase == tasks.Done {
				continue
			}
			r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
		}
	}()

	result, err := generator.GenerateTopTracksPlaylist(ctx, user.ID, progressCh)
	close(progressCh)
	<-done

	if playlistID, partial := tasks.IsPartial(err); partial {
		r.writePlain("%s\n", ui.Err(fmt.Sprintf("Playlist %s was created but its tracks could not be added", playlistID)))
		r.writePlain("%s\n", ui.Help("The empty playlist was left on your account; delete it in Spotify or run generate again."))
		return err
	}
	if err != nil {
		return err
	}

	r.writePlainln("%s", ui.OK(fmt.Sprintf("Created %q with %d tracks", result.Name, len(result.TrackURIs))))
	return r.writePlain("https://open.spotify.com/playlist/%s\n", result.PlaylistID)
}

// History lists recorded generation runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx, cmd); err != nil {
		return err
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if status := cmd.String("status"); status != "" {
		if !models.GenerationStatus(status).Valid() {
			return fmt.Errorf("%w: status must be complete, partial or failed", shared.ErrInvalidArgument)
		}
		criteria["status"] = status
	}

	generations, err := r.history.List(ctx, criteria)
	if err != nil {
		return err
	}
	if len(generations) == 0 {
		return r.writePlain("%s\n", ui.Help("No playlists generated yet."))
	}
	return formatter.WriteHistory(r.output, generations)
}
