package store

import (
	"errors"
	"testing"
	"time"

	"github.com/gerrymanoim/to-listen/internal/shared"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return New(NewDocuments(db))
}

func TestDocuments(t *testing.T) {
	st := newTestStore(t)
	docs := st.docs

	t.Run("Put And Get", func(t *testing.T) {
		if err := docs.Put("things", "k1", map[string]any{"a": 1}, false); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var out map[string]any
		if err := docs.Get("things", "k1", &out); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out["a"].(float64) != 1 {
			t.Errorf("unexpected value: %v", out)
		}
	})

	t.Run("Absent Key", func(t *testing.T) {
		var out map[string]any
		err := docs.Get("things", "missing", &out)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Merge Overlays Top Level Fields", func(t *testing.T) {
		if err := docs.Put("things", "k2", map[string]any{"a": 1, "b": 2}, false); err != nil {
			t.Fatal(err)
		}
		if err := docs.Put("things", "k2", map[string]any{"b": 3, "c": 4}, true); err != nil {
			t.Fatal(err)
		}

		var out map[string]float64
		if err := docs.Get("things", "k2", &out); err != nil {
			t.Fatal(err)
		}
		if out["a"] != 1 || out["b"] != 3 || out["c"] != 4 {
			t.Errorf("unexpected merged document: %v", out)
		}
	})

	t.Run("Replace Discards Old Fields", func(t *testing.T) {
		if err := docs.Put("things", "k3", map[string]any{"a": 1}, false); err != nil {
			t.Fatal(err)
		}
		if err := docs.Put("things", "k3", map[string]any{"b": 2}, false); err != nil {
			t.Fatal(err)
		}

		var out map[string]float64
		if err := docs.Get("things", "k3", &out); err != nil {
			t.Fatal(err)
		}
		if _, ok := out["a"]; ok {
			t.Error("expected replaced document to drop old fields")
		}
	})

	t.Run("Keys", func(t *testing.T) {
		keys, err := docs.Keys("things")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(keys) != 3 {
			t.Errorf("expected 3 keys, got %d", len(keys))
		}
	})
}

func TestTokenRecords(t *testing.T) {
	st := newTestStore(t)

	t.Run("Save Computes ExpiresAt", func(t *testing.T) {
		before := time.Now().UTC()
		err := st.SaveTokenRecord("u1", TokenRecord{
			AccessToken:  "at",
			RefreshToken: "rt",
			ExpiresIn:    3600,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		rec, err := st.LoadTokenRecord("u1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec.ExpiresAt.Before(before.Add(59 * time.Minute)) {
			t.Errorf("expected expires_at ~1h out, got %v", rec.ExpiresAt)
		}
	})

	t.Run("Merge Carries Refresh Token Forward", func(t *testing.T) {
		// A refresh response without a refresh_token field must not
		// erase the stored one.
		err := st.SaveTokenRecord("u1", TokenRecord{AccessToken: "at2", ExpiresIn: 3600})
		if err != nil {
			t.Fatal(err)
		}

		rec, err := st.LoadTokenRecord("u1")
		if err != nil {
			t.Fatal(err)
		}
		if rec.AccessToken != "at2" {
			t.Errorf("expected new access token, got %q", rec.AccessToken)
		}
		if rec.RefreshToken != "rt" {
			t.Errorf("expected refresh token carried over, got %q", rec.RefreshToken)
		}
	})

	t.Run("Auth State Nonce", func(t *testing.T) {
		if err := st.SaveAuthState("u1", "12345"); err != nil {
			t.Fatal(err)
		}

		rec, err := st.LoadTokenRecord("u1")
		if err != nil {
			t.Fatal(err)
		}
		if rec.State != "12345" {
			t.Errorf("expected state nonce, got %q", rec.State)
		}
		if rec.AccessToken != "at2" {
			t.Error("expected nonce write to preserve token fields")
		}
	})

	t.Run("Never Linked", func(t *testing.T) {
		_, err := st.LoadTokenRecord("nobody")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestExpired(t *testing.T) {
	now := time.Now().UTC()
	rec := TokenRecord{AccessToken: "at", ExpiresAt: now.Add(5 * time.Second)}

	if rec.Expired(now, 0) {
		t.Error("expected token to be valid without skew")
	}
	if !rec.Expired(now, 10*time.Second) {
		t.Error("expected token to be expired with 10s skew")
	}
	if !rec.Expired(now.Add(time.Minute), 0) {
		t.Error("expected token to be expired past expiry")
	}
}

func TestPlaylistSelection(t *testing.T) {
	st := newTestStore(t)

	t.Run("Save Replaces Wholesale", func(t *testing.T) {
		now := time.Now().UTC()
		if err := st.SavePlaylistSelection("u1", PlaylistSelection{ID: "p1", Name: "Queue"}); err != nil {
			t.Fatal(err)
		}
		if err := st.MergeLastRun("u1", now); err != nil {
			t.Fatal(err)
		}

		// A new selection invalidates the old one, last_run included.
		if err := st.SavePlaylistSelection("u1", PlaylistSelection{ID: "p2", Name: "Other"}); err != nil {
			t.Fatal(err)
		}

		sel, err := st.LoadPlaylistSelection("u1")
		if err != nil {
			t.Fatal(err)
		}
		if sel.ID != "p2" {
			t.Errorf("expected p2, got %s", sel.ID)
		}
		if sel.LastRun != nil {
			t.Error("expected replacement to clear last_run")
		}
	})

	t.Run("MergeLastRun Preserves Selection", func(t *testing.T) {
		now := time.Now().UTC()
		if err := st.MergeLastRun("u1", now); err != nil {
			t.Fatal(err)
		}

		sel, err := st.LoadPlaylistSelection("u1")
		if err != nil {
			t.Fatal(err)
		}
		if sel.ID != "p2" || sel.Name != "Other" {
			t.Errorf("expected selection preserved, got %+v", sel)
		}
		if sel.LastRun == nil {
			t.Fatal("expected last_run to be set")
		}
	})

	t.Run("ListPlaylistUsers", func(t *testing.T) {
		if err := st.SavePlaylistSelection("u2", PlaylistSelection{ID: "p9", Name: "Nine"}); err != nil {
			t.Fatal(err)
		}

		uids, err := st.ListPlaylistUsers()
		if err != nil {
			t.Fatal(err)
		}
		if len(uids) != 2 {
			t.Errorf("expected 2 eligible users, got %d", len(uids))
		}
	})
}

func TestProfile(t *testing.T) {
	st := newTestStore(t)

	if err := st.SaveProfile("u1", Profile{"id": "spotify-user", "display_name": "Someone"}); err != nil {
		t.Fatal(err)
	}

	profile, err := st.LoadProfile("u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if profile.UserID() != "spotify-user" {
		t.Errorf("expected provider user id, got %q", profile.UserID())
	}
}

func TestTouchClaims(t *testing.T) {
	st := newTestStore(t)

	if err := st.TouchClaims("u1", map[string]any{"sub": "u1", "name": "Someone"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var doc map[string]any
	if err := st.docs.Get(collectionClaims, "u1", &doc); err != nil {
		t.Fatal(err)
	}
	if doc["name"] != "Someone" {
		t.Errorf("expected claims stored, got %v", doc)
	}
	if _, ok := doc["last_used"]; !ok {
		t.Error("expected last_used timestamp")
	}
}
