// Spotify Web API client for the resource surface the cleanup flow
// touches: profile, playlists, recently played history, and batch
// track removal.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package spotify

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
	"time"

	"github.com/charmbracelet/log"
	"github.com/gerrymanoim/to-listen/internal/shared"
	"github.com/gerrymanoim/to-listen/internal/store"
)

// recentlyPlayedLimit is the provider's maximum page size for the
// recently-played endpoint.
const recentlyPlayedLimit = 50

// StatusError reports a non-2xx response from the resource API.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("spotify API error: status %d on %s: %s", e.Status, e.URL, e.Body)
}

func (e *StatusError) Unwrap() error { return shared.ErrAPIRequest }

// PlaylistRef is the id/name pair shown when the user picks a cleanup
// playlist.
type PlaylistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Playlist is a single playlist resource.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// Track is the subset of the track resource the sync needs.
type Track struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// PlayedTrack is one entry of the recently-played history.
type PlayedTrack struct {
	Track    Track     `json:"track"`
	PlayedAt time.Time `json:"played_at"`
}

// playlistPage is a page of the paginated playlist listing. Next holds
// the absolute URL of the following page, empty on the last one.
type playlistPage struct {
	Items []PlaylistRef `json:"items"`
	Next  string        `json:"next"`
}

// playedPage is a page of the recently-played listing, paginated
// backward through cursors.before.
type playedPage struct {
	Items   []PlayedTrack `json:"items"`
	Cursors struct {
		After  string `json:"after"`
		Before string `json:"before"`
	} `json:"cursors"`
}

// Client wraps the Spotify resource API. Every method takes a valid
// access token obtained from the token manager and attaches it as a
// bearer credential; the client itself holds no token state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a [Client] for the given API base URL.
func NewClient(baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Profile retrieves the authenticated user's profile, failing on any
// non-2xx response.
func (c *Client) Profile(ctx context.Context, token string) (store.Profile, error) {
	var profile store.Profile
	if err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/me", token, nil, &profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// TryProfile retrieves the profile, degrading a non-2xx response to a
// logged nil result. Interactive pages use this; batch paths must use
// [Client.Profile].
func (c *Client) TryProfile(ctx context.Context, token string) (store.Profile, error) {
	profile, err := c.Profile(ctx, token)
	return profile, c.degrade(err)
}

// Playlist retrieves a single playlist, failing on any non-2xx response.
func (c *Client) Playlist(ctx context.Context, token, playlistID string) (*Playlist, error) {
	var playlist Playlist
	endpoint := fmt.Sprintf("%s/playlists/%s", c.baseURL, url.PathEscape(playlistID))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, token, nil, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// TryPlaylist retrieves a playlist, degrading a non-2xx response to a
// logged nil result.
func (c *Client) TryPlaylist(ctx context.Context, token, playlistID string) (*Playlist, error) {
	playlist, err := c.Playlist(ctx, token, playlistID)
	if derr := c.degrade(err); derr != nil {
		return nil, derr
	}
	if err != nil {
		return nil, nil
	}
	return playlist, nil
}

// AllPlaylists retrieves every playlist of the given provider-side
// user, following the next cursor across pages. Pagination is
// sequential: each page must arrive before the next cursor is known.
func (c *Client) AllPlaylists(ctx context.Context, token, userID string) ([]PlaylistRef, error) {
	endpoint := fmt.Sprintf("%s/users/%s/playlists?limit=50", c.baseURL, url.PathEscape(userID))

	var all []PlaylistRef
	for endpoint != "" {
		var page playlistPage
		if err := c.doRequest(ctx, http.MethodGet, endpoint, token, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		endpoint = page.Next
	}

	return all, nil
}

// RecentlyPlayed retrieves the user's recently played tracks. With a
// zero lower bound only the first page (provider default limit) is
// fetched; otherwise pagination continues backward through the
// cursors.before value while it is still newer than the bound.
func (c *Client) RecentlyPlayed(ctx context.Context, token string, lowerBound time.Time) ([]PlayedTrack, error) {
	endpoint := fmt.Sprintf("%s/me/player/recently-played?limit=%d", c.baseURL, recentlyPlayedLimit)

	var all []PlayedTrack
	for {
		var page playedPage
		if err := c.doRequest(ctx, http.MethodGet, endpoint, token, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)

		if lowerBound.IsZero() || page.Cursors.Before == "" {
			break
		}

		beforeMs, err := strconv.ParseInt(page.Cursors.Before, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid before cursor %q: %w", page.Cursors.Before, err)
		}
		if !time.UnixMilli(beforeMs).After(lowerBound) {
			break
		}

		endpoint = fmt.Sprintf("%s/me/player/recently-played?limit=%d&before=%s",
			c.baseURL, recentlyPlayedLimit, url.QueryEscape(page.Cursors.Before))
	}

	return all, nil
}

// DeleteTracks removes the given track URIs from a playlist in one
// batch call. The provider no-ops on URIs not present, so retrying
// with the same or a superset of URIs is safe.
func (c *Client) DeleteTracks(ctx context.Context, token, playlistID string, uris []string) error {
	type trackRef struct {
		URI string `json:"uri"`
	}
	body := struct {
		Tracks []trackRef `json:"tracks"`
	}{Tracks: make([]trackRef, 0, len(uris))}
	for _, uri := range uris {
		body.Tracks = append(body.Tracks, trackRef{URI: uri})
	}

	endpoint := fmt.Sprintf("%s/playlists/%s/tracks", c.baseURL, url.PathEscape(playlistID))
	return c.doRequest(ctx, http.MethodDelete, endpoint, token, body, nil)
}

// doRequest performs an authenticated request against an absolute
// URL, decoding a JSON response into result when provided. Non-2xx
// responses become a [*StatusError].
func (c *Client) doRequest(ctx context.Context, method, endpoint, token string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, URL: endpoint, Body: string(data)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// degrade turns a [*StatusError] into a logged nil error, leaving
// transport failures intact.
func (c *Client) degrade(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		c.logger.Error("spotify GET failed", "status", statusErr.Status, "url", statusErr.URL)
		return nil
	}
	return err
}
