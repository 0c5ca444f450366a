package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gerrymanoim/to-listen/internal/shared"
)

func TestProfile(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/me" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
			}
			fmt.Fprint(w, `{"id": "spotify-user", "display_name": "Someone"}`)
		}))
		defer ts.Close()

		client := NewClient(ts.URL, nil)
		profile, err := client.Profile(context.Background(), "tok")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if profile.UserID() != "spotify-user" {
			t.Errorf("expected provider user id, got %q", profile.UserID())
		}
	})

	t.Run("Unauthorized", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error": {"status": 401}}`)
		}))
		defer ts.Close()

		client := NewClient(ts.URL, nil)
		_, err := client.Profile(context.Background(), "tok")
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected *StatusError, got %T", err)
		}
		if statusErr.Status != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", statusErr.Status)
		}
	})

	t.Run("Try Degrades To Nil", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		client := NewClient(ts.URL, nil)
		profile, err := client.TryProfile(context.Background(), "tok")
		if err != nil {
			t.Fatalf("expected degraded nil error, got %v", err)
		}
		if profile != nil {
			t.Errorf("expected nil profile, got %v", profile)
		}
	})
}

func TestTryPlaylist(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id": "p1", "name": "Queue", "tracks": {"total": 3}}`)
		}))
		defer ts.Close()

		client := NewClient(ts.URL, nil)
		playlist, err := client.TryPlaylist(context.Background(), "tok", "p1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if playlist == nil || playlist.Name != "Queue" || playlist.Tracks.Total != 3 {
			t.Errorf("unexpected playlist: %+v", playlist)
		}
	})

	t.Run("Missing Degrades To Nil", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		client := NewClient(ts.URL, nil)
		playlist, err := client.TryPlaylist(context.Background(), "tok", "gone")
		if err != nil {
			t.Fatalf("expected degraded nil error, got %v", err)
		}
		if playlist != nil {
			t.Errorf("expected nil playlist, got %+v", playlist)
		}
	})
}

func TestAllPlaylists(t *testing.T) {
	// Three pages of two playlists each, chained through absolute next
	// URLs.
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		out := playlistPage{
			Items: []PlaylistRef{
				{ID: fmt.Sprintf("p%d", page*2), Name: fmt.Sprintf("Playlist %d", page*2)},
				{ID: fmt.Sprintf("p%d", page*2+1), Name: fmt.Sprintf("Playlist %d", page*2+1)},
			},
		}
		if page < 2 {
			out.Next = fmt.Sprintf("%s/users/someone/playlists?limit=50&page=%d", ts.URL, page+1)
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, nil)
	playlists, err := client.AllPlaylists(context.Background(), "tok", "someone")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(playlists) != 6 {
		t.Fatalf("expected 6 playlists across pages, got %d", len(playlists))
	}
	for i, ref := range playlists {
		if want := fmt.Sprintf("p%d", i); ref.ID != want {
			t.Errorf("expected %s at position %d, got %s", want, i, ref.ID)
		}
	}
}

func TestRecentlyPlayed(t *testing.T) {
	newHistoryServer := func(t *testing.T, requests *int) *httptest.Server {
		t.Helper()
		// Pages walk backward in time. The before cursor of page n is
		// the played_at of its oldest item, in milliseconds.
		pages := []playedPage{
			{Items: []PlayedTrack{
				{Track: Track{URI: "spotify:track:a"}, PlayedAt: time.UnixMilli(5000)},
				{Track: Track{URI: "spotify:track:b"}, PlayedAt: time.UnixMilli(4000)},
			}},
			{Items: []PlayedTrack{
				{Track: Track{URI: "spotify:track:c"}, PlayedAt: time.UnixMilli(3000)},
			}},
			{Items: []PlayedTrack{
				{Track: Track{URI: "spotify:track:d"}, PlayedAt: time.UnixMilli(1000)},
			}},
		}
		pages[0].Cursors.Before = "4000"
		pages[1].Cursors.Before = "3000"
		pages[2].Cursors.Before = "1000"

		byCursor := map[string]playedPage{
			"":     pages[0],
			"4000": pages[1],
			"3000": pages[2],
		}

		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*requests++
			if r.URL.Query().Get("limit") != "50" {
				t.Errorf("unexpected limit %q", r.URL.Query().Get("limit"))
			}
			page, ok := byCursor[r.URL.Query().Get("before")]
			if !ok {
				t.Errorf("unexpected before cursor %q", r.URL.Query().Get("before"))
				page = playedPage{}
			}
			json.NewEncoder(w).Encode(page)
		}))
	}

	t.Run("Zero Bound Fetches Single Page", func(t *testing.T) {
		var requests int
		ts := newHistoryServer(t, &requests)
		defer ts.Close()

		client := NewClient(ts.URL, nil)
		played, err := client.RecentlyPlayed(context.Background(), "tok", time.Time{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if requests != 1 {
			t.Errorf("expected a single request, got %d", requests)
		}
		if len(played) != 2 {
			t.Errorf("expected 2 tracks, got %d", len(played))
		}
	})

	t.Run("Bound Paginates Backward", func(t *testing.T) {
		var requests int
		ts := newHistoryServer(t, &requests)
		defer ts.Close()

		client := NewClient(ts.URL, nil)
		played, err := client.RecentlyPlayed(context.Background(), "tok", time.UnixMilli(2500))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		// Page 3's cursor (3000) is still newer than the bound, so it
		// is fetched; its own cursor (1000) is not, so pagination stops
		// there.
		if requests != 3 {
			t.Errorf("expected 3 requests, got %d", requests)
		}
		if len(played) != 4 {
			t.Fatalf("expected 4 tracks, got %d", len(played))
		}
		if played[0].Track.URI != "spotify:track:a" || played[3].Track.URI != "spotify:track:d" {
			t.Errorf("expected newest-first order preserved, got %v", played)
		}
	})
}

func TestDeleteTracks(t *testing.T) {
	// A stateful playlist: deleting absent URIs is a provider no-op, so
	// the same batch can be sent twice.
	var mu sync.Mutex
	contents := map[string]bool{"spotify:track:a": true, "spotify:track:b": true, "spotify:track:c": true}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/playlists/p1/tracks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var body struct {
			Tracks []struct {
				URI string `json:"uri"`
			} `json:"tracks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode delete body: %v", err)
		}

		mu.Lock()
		for _, track := range body.Tracks {
			delete(contents, track.URI)
		}
		mu.Unlock()
		fmt.Fprint(w, `{"snapshot_id": "snap"}`)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, nil)
	uris := []string{"spotify:track:a", "spotify:track:b"}

	if err := client.DeleteTracks(context.Background(), "tok", "p1", uris); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(contents) != 1 || !contents["spotify:track:c"] {
		t.Errorf("expected only track c to remain, got %v", contents)
	}

	// Retrying the same batch must succeed and change nothing further.
	if err := client.DeleteTracks(context.Background(), "tok", "p1", uris); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(contents) != 1 {
		t.Errorf("expected retry to be a no-op, got %v", contents)
	}
}
