// Spotify Web API implementation of [Service]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/topmix/internal/shared"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"

	// errorBodyLimit caps how much of a failed response is kept on the error.
	errorBodyLimit = 512
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Popularity  int             `json:"popularity"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

// topTracksPage is the paged body of GET /me/top/tracks. Items is a pointer so a missing field can be told apart from an empty one.
type topTracksPage struct {
	Items  *[]SpotifyTrack `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// SpotifyPlaylist is the subset of the playlist object returned on creation.
type SpotifyPlaylist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Public     bool   `json:"public"`
	URI        string `json:"uri"`
	SnapshotID string `json:"snapshot_id"`
}

// SpotifyClient implements [Service] against the Spotify Web API.
type SpotifyClient struct {
	tokens     TokenProvider
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	logger     *log.Logger
}

// ClientOption configures a [SpotifyClient].
type ClientOption func(*SpotifyClient)

// WithBaseURL points the client at another API root, such as a test server.
func WithBaseURL(u string) ClientOption {
	return func(c *SpotifyClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *SpotifyClient) { c.httpClient = hc }
}

// WithRateLimit paces requests to rps per second with the given burst. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *SpotifyClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *SpotifyClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *SpotifyClient) { c.logger = l }
}

// NewSpotifyClient creates a client that authenticates every request with a token from tokens.
func NewSpotifyClient(tokens TokenProvider, opts ...ClientOption) *SpotifyClient {
	c := &SpotifyClient{
		tokens:     tokens,
		baseURL:    spotifyBaseURL,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		timeout:    30 * time.Second,
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSpotifyClientFromConfig builds a client from the [api] section of the config.
func NewSpotifyClientFromConfig(tokens TokenProvider, cfg *shared.Config, opts ...ClientOption) *SpotifyClient {
	base := []ClientOption{
		WithBaseURL(cfg.API.BaseURL),
		WithRateLimit(cfg.API.RequestsPerSecond, cfg.API.Burst),
		WithTimeout(cfg.RequestTimeout()),
	}
	return NewSpotifyClient(tokens, append(base, opts...)...)
}

// doRequest performs an authenticated request against endpoint (a path with an optional raw query).
//
// body, when non-nil, is sent as JSON. result, when non-nil, receives the decoded response.
func (c *SpotifyClient) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	path := req.URL.Path
	c.logger.Debug("api request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, shared.ErrTimeout)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		c.logger.Warn("api request failed", "method", method, "path", path, "status", resp.StatusCode)
		return &shared.APIRequestError{
			Status:   resp.StatusCode,
			Endpoint: method + " " + path,
			Body:     strings.TrimSpace(string(snippet)),
		}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &shared.APIParseError{Endpoint: method + " " + path, Reason: "malformed JSON", Err: err}
	}
	return nil
}

// UserProfile retrieves the current authenticated user's profile.
func (c *SpotifyClient) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := c.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, &shared.APIParseError{Endpoint: "GET /me", Reason: "missing id"}
	}
	return &user, nil
}

// TopTrackItems fetches the first page of the user's top tracks.
func (c *SpotifyClient) TopTrackItems(ctx context.Context, limit int, window string) ([]SpotifyTrack, error) {
	if limit <= 0 {
		limit = DefaultTopTracksLimit
	}
	if window == "" {
		window = DefaultTimeRange
	}

	q := url.Values{}
	q.Set("time_range", window)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")

	var page topTracksPage
	if err := c.doRequest(ctx, http.MethodGet, "/me/top/tracks?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		return nil, &shared.APIParseError{Endpoint: "GET /me/top/tracks", Reason: "missing items"}
	}
	return *page.Items, nil
}

// TopTracks returns the URIs of the user's top tracks, most played first.
func (c *SpotifyClient) TopTracks(ctx context.Context, limit int, window string) ([]string, error) {
	items, err := c.TopTrackItems(ctx, limit, window)
	if err != nil {
		return nil, err
	}

	uris := make([]string, 0, len(items))
	for _, t := range items {
		if t.URI != "" {
			uris = append(uris, t.URI)
		}
	}
	return uris, nil
}

// CreatePlaylist creates an empty playlist for userID and returns the new playlist's ID.
func (c *SpotifyClient) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	endpoint := "/users/" + url.PathEscape(userID) + "/playlists"
	var playlist SpotifyPlaylist
	req := createPlaylistRequest{Name: name, Description: description, Public: public}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, req, &playlist); err != nil {
		return "", err
	}
	if playlist.ID == "" {
		return "", &shared.APIParseError{Endpoint: "POST " + endpoint, Reason: "missing id"}
	}

	c.logger.Info("playlist created", "playlist_id", playlist.ID, "name", name)
	return playlist.ID, nil
}

// AddTracks appends uris to the playlist, sending them in the query string.
//
// Lists longer than the endpoint allows are sent in consecutive batches; the first failing batch stops the call.
func (c *SpotifyClient) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	if len(uris) == 0 {
		return nil
	}

	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	for start := 0; start < len(uris); start += maxTracksPerAdd {
		end := min(start+maxTracksPerAdd, len(uris))
		if err := c.doRequest(ctx, http.MethodPost, endpoint+"?uris="+EncodeURIs(uris[start:end]), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// EncodeURIs percent-encodes each URI with lowercase hex digits and joins them with an encoded comma.
//
//	["spotify:track:abc", "spotify:track:def"] -> "spotify%3atrack%3aabc%2cspotify%3atrack%3adef"
func EncodeURIs(uris []string) string {
	parts := make([]string, len(uris))
	for i, u := range uris {
		parts[i] = lowerEscapes(url.QueryEscape(u))
	}
	return strings.Join(parts, "%2c")
}

// lowerEscapes lowercases the two hex digits after every '%'.
func lowerEscapes(s string) string {
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] == '%' && i+2 < len(b) {
			b[i+1] = toLowerHex(b[i+1])
			b[i+2] = toLowerHex(b[i+2])
			i += 2
		}
	}
	return string(b)
}

func toLowerHex(c byte) byte {
	if c >= 'A' && c <= 'F' {
		return c + ('a' - 'A')
	}
	return c
}
