// package formatter provides functions to export top tracks and generation history to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/topmix/internal/models"
	"github.com/desertthunder/topmix/internal/services"
	"github.com/desertthunder/topmix/internal/shared"
)

// Format names an export format.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Text     Format = "text"
)

// ParseFormat accepts a format name or common file extension ("md", "txt").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	case "text", "txt", "":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, name)
	}
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	switch f {
	case CSV:
		return ".csv"
	case Markdown:
		return ".md"
	default:
		return ".txt"
	}
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// TracksToCSV converts tracks to CSV with columns: Rank, URI, Title, Artist, Album, Duration, ISRC
func TracksToCSV(tracks []services.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Rank", "URI", "Title", "Artist", "Album", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range tracks {
		record := []string{
			strconv.Itoa(i + 1),
			track.URI,
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.Duration),
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// TracksToMarkdown renders tracks as a numbered Markdown list under title.
func TracksToMarkdown(title, window string, tracks []services.Track) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", title)
	if window != "" {
		fmt.Fprintf(&buf, "**Time range**: %s\n", window)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(tracks))

	buf.WriteString("## Tracks\n\n")
	for i, track := range tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.Artist, track.Title, albumPart, FormatDuration(track.Duration))
	}

	return buf.Bytes(), nil
}

// TracksToText converts tracks to plain text format
func TracksToText(title string, tracks []services.Track) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", title)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(tracks))

	for i, track := range tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.Artist, track.Title)
	}

	return buf.Bytes(), nil
}

// RenderTracks renders tracks in the given format.
func RenderTracks(format Format, title, window string, tracks []services.Track) ([]byte, error) {
	switch format {
	case CSV:
		return TracksToCSV(tracks)
	case Markdown:
		return TracksToMarkdown(title, window, tracks)
	default:
		return TracksToText(title, tracks)
	}
}

// WriteTracks renders tracks and writes them to w.
func WriteTracks(w io.Writer, format Format, title, window string, tracks []services.Track) error {
	data, err := RenderTracks(format, title, window, tracks)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write tracks: %w", err)
	}
	return nil
}

// WriteTracksFile exports tracks to a file.
//
// Defaults to top_tracks{ext} in the working directory.
func WriteTracksFile(path string, format Format, title, window string, tracks []services.Track) (string, error) {
	if path == "" {
		path = "top_tracks" + format.Ext()
	}

	data, err := RenderTracks(format, title, window, tracks)
	if err != nil {
		return "", fmt.Errorf("failed to render tracks: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

// WriteHistory writes generation records as an aligned table, newest first as given.
func WriteHistory(w io.Writer, generations []*models.Generation) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "#\tCREATED\tSTATUS\tTRACKS\tPLAYLIST\tERROR")
	for _, g := range generations {
		playlist := g.PlaylistID()
		if playlist == "" {
			playlist = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			g.Sequence(),
			g.CreatedAt().Local().Format(time.DateTime),
			g.Status(),
			g.TrackCount(),
			playlist,
			g.Failure(),
		)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}
