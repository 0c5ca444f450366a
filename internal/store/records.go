package store

import (
	"time"
)

// Collection names. Each collection holds one document per user id.
const (
	collectionClaims   = "claims"
	collectionTokens   = "spotify"
	collectionProfile  = "spotify_profile"
	collectionPlaylist = "spotify_playlist"
)

// TokenRecord is the per-user OAuth token record for the streaming
// provider. ExpiresAt is computed at write time from ExpiresIn.
type TokenRecord struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	State        string    `json:"state,omitempty"`
}

// Expired reports whether the access token is past its expiry, with
// skew subtracted from the expiry to tolerate clock and queue latency
// in batch contexts.
func (r TokenRecord) Expired(now time.Time, skew time.Duration) bool {
	return !now.Before(r.ExpiresAt.Add(-skew))
}

// PlaylistSelection is the user's chosen cleanup playlist.
type PlaylistSelection struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

// Profile is an opaque snapshot of the streaming provider's user
// profile response.
type Profile map[string]any

// UserID returns the provider-side user id from the snapshot.
func (p Profile) UserID() string {
	id, _ := p["id"].(string)
	return id
}

// Store exposes one strongly typed accessor per entity. It is the
// single source of truth; nothing is cached across requests.
type Store struct {
	docs *Documents
}

// New creates a [Store] over the given [Documents] layer.
func New(docs *Documents) *Store {
	return &Store{docs: docs}
}

// SaveTokenRecord merges a token record into the user's document,
// stamping ExpiresAt from ExpiresIn when the provider supplied one.
// The merge write carries fields omitted by the provider (notably a
// refresh token on refresh responses) over from the stored record.
func (s *Store) SaveTokenRecord(uid string, rec TokenRecord) error {
	if rec.ExpiresIn > 0 && rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = time.Now().UTC().Add(time.Duration(rec.ExpiresIn) * time.Second)
	}
	return s.docs.Put(collectionTokens, uid, rec, true)
}

// LoadTokenRecord reads the user's token record. Returns
// [shared.ErrNotFound] wrapped when the user never linked an account.
func (s *Store) LoadTokenRecord(uid string) (TokenRecord, error) {
	var rec TokenRecord
	err := s.docs.Get(collectionTokens, uid, &rec)
	return rec, err
}

// SaveAuthState embeds a state nonce in the user's token record until
// the token exchange response overwrites it.
func (s *Store) SaveAuthState(uid, nonce string) error {
	return s.docs.Put(collectionTokens, uid, map[string]string{"state": nonce}, true)
}

// SaveProfile stores the raw provider profile response.
func (s *Store) SaveProfile(uid string, profile Profile) error {
	return s.docs.Put(collectionProfile, uid, profile, true)
}

// LoadProfile reads the stored provider profile snapshot.
func (s *Store) LoadProfile(uid string) (Profile, error) {
	var p Profile
	err := s.docs.Get(collectionProfile, uid, &p)
	return p, err
}

// SavePlaylistSelection replaces the user's playlist selection. A
// previous selection is semantically invalid once replaced, so this is
// a full write, not a merge.
func (s *Store) SavePlaylistSelection(uid string, sel PlaylistSelection) error {
	return s.docs.Put(collectionPlaylist, uid, sel, false)
}

// LoadPlaylistSelection reads the user's playlist selection.
func (s *Store) LoadPlaylistSelection(uid string) (PlaylistSelection, error) {
	var sel PlaylistSelection
	err := s.docs.Get(collectionPlaylist, uid, &sel)
	return sel, err
}

// MergeLastRun records the completion time of a sync pass without
// disturbing the rest of the selection.
func (s *Store) MergeLastRun(uid string, t time.Time) error {
	return s.docs.Put(collectionPlaylist, uid, map[string]time.Time{"last_run": t.UTC()}, true)
}

// TouchClaims stores the verified identity claims with a last_used timestamp.
func (s *Store) TouchClaims(uid string, claims map[string]any) error {
	doc := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		doc[k] = v
	}
	doc["last_used"] = time.Now().UTC()
	return s.docs.Put(collectionClaims, uid, doc, true)
}

// ListPlaylistUsers enumerates user ids with an active playlist
// selection, the population eligible for the scheduled sync.
func (s *Store) ListPlaylistUsers() ([]string, error) {
	return s.docs.Keys(collectionPlaylist)
}
