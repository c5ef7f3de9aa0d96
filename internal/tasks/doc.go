// Package tasks builds a playlist from the user's top tracks with real-time progress reporting.
//
// # Pipeline
//
// [PlaylistGenerator.GenerateTopTracksPlaylist] runs three dependent calls in order:
//
//  1. Fetch the user's top tracks (returns shared.ErrNoTopTracks before anything is created if there are none)
//  2. Create an empty playlist for the user
//  3. Add the fetched tracks to the new playlist
//
// The pipeline is not transactional. When step 3 fails the playlist from step 2 stays on the account and the
// error is a shared.PartialPlaylistError carrying its ID. Nothing is retried or deleted.
//
// # Progress Reporting
//
// Progress is sent on an optional channel as [ProgressUpdate] values. Sends use select with default so a slow
// or absent reader never blocks the run.
//
// # History
//
// The optional [Recorder] (repositories.GenerationRepository) stores every attempt with its outcome:
// complete, partial or failed. Recording errors are logged and otherwise ignored.
package tasks
