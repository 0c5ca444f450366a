package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gerrymanoim/to-listen/internal/auth"
	"github.com/gerrymanoim/to-listen/internal/shared"
	"github.com/gerrymanoim/to-listen/internal/spotify"
	"github.com/gerrymanoim/to-listen/internal/store"
	"github.com/gerrymanoim/to-listen/internal/tokens"
	"github.com/gerrymanoim/to-listen/internal/web"
)

// App wires the web front end: every handler re-verifies the identity
// cookie, then works through the token manager and streaming client.
// No session state is held between requests.
type App struct {
	verifier   auth.Verifier
	store      *store.Store
	manager    *tokens.Manager
	client     *spotify.Client
	renderer   *web.Renderer
	logger     *log.Logger
	cookieName string
}

// NewApp creates the web application handler set.
func NewApp(verifier auth.Verifier, st *store.Store, manager *tokens.Manager, client *spotify.Client, renderer *web.Renderer, cookieName string, logger *log.Logger) *App {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if cookieName == "" {
		cookieName = "token"
	}
	return &App{
		verifier:   verifier,
		store:      st,
		manager:    manager,
		client:     client,
		renderer:   renderer,
		logger:     logger,
		cookieName: cookieName,
	}
}

// Register attaches all routes to the router.
func (a *App) Register(r Router) {
	r.Handle(http.MethodGet, "/", http.HandlerFunc(a.Index))
	r.Handle(http.MethodGet, "/auth_callback", http.HandlerFunc(a.AuthCallback))
	r.Handle(http.MethodGet, "/user_info", http.HandlerFunc(a.UserInfo))
	r.Handle(http.MethodPost, "/save_playlist", http.HandlerFunc(a.SavePlaylist))
}

// identify verifies the identity cookie and records the claims with a
// last-used timestamp. Verification happens on every request; there is
// no server-side session.
func (a *App) identify(r *http.Request) (auth.Claims, error) {
	var token string
	if cookie, err := r.Cookie(a.cookieName); err == nil {
		token = cookie.Value
	}

	claims, err := a.verifier.Verify(token)
	if err != nil {
		return auth.Claims{}, err
	}

	if err := a.store.TouchClaims(claims.Subject, claims.Raw); err != nil {
		return auth.Claims{}, err
	}
	return claims, nil
}

// Index renders the landing page with a fresh authorization URL. The
// state nonce is persisted before the page (and its redirect link) is
// served, so the callback can be correlated.
func (a *App) Index(w http.ResponseWriter, r *http.Request) {
	claims, err := a.identify(r)
	if err != nil {
		a.renderIndex(w, web.IndexData{ErrorMessage: userMessage(err)})
		return
	}

	nonce := shared.NewStateNonce()
	if err := a.store.SaveAuthState(claims.Subject, nonce); err != nil {
		a.fail(w, err)
		return
	}

	authURL, err := a.manager.AuthURL(nonce)
	if err != nil {
		a.fail(w, err)
		return
	}

	a.renderIndex(w, web.IndexData{AuthURL: authURL, UserData: claims.Raw})
}

// AuthCallback completes the linking flow: validates the returned
// state nonce against the stored one, exchanges the code, persists the
// token record and the provider profile, and redirects onward.
func (a *App) AuthCallback(w http.ResponseWriter, r *http.Request) {
	if provErr := r.URL.Query().Get("error"); provErr != "" {
		a.renderIndex(w, web.IndexData{ErrorMessage: fmt.Sprintf("Error: %s", provErr)})
		return
	}

	claims, err := a.identify(r)
	if err != nil {
		a.renderIndex(w, web.IndexData{ErrorMessage: userMessage(err)})
		return
	}

	rec, err := a.store.LoadTokenRecord(claims.Subject)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		a.fail(w, err)
		return
	}
	if rec.State == "" || rec.State != r.URL.Query().Get("state") {
		a.logger.Warn("state nonce mismatch on callback", "uid", claims.Subject)
		a.renderIndex(w, web.IndexData{ErrorMessage: userMessage(shared.ErrStateMismatch)})
		return
	}

	fresh, err := a.manager.ExchangeCode(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		a.logger.Error("code exchange failed", "uid", claims.Subject, "err", err)
		a.renderIndex(w, web.IndexData{ErrorMessage: userMessage(err)})
		return
	}

	if err := a.store.SaveTokenRecord(claims.Subject, fresh); err != nil {
		a.fail(w, err)
		return
	}

	// The nonce is single-use; clear it now that the exchange consumed it.
	if err := a.store.SaveAuthState(claims.Subject, ""); err != nil {
		a.fail(w, err)
		return
	}

	if profile, err := a.client.TryProfile(r.Context(), fresh.AccessToken); err != nil {
		a.fail(w, err)
		return
	} else if profile != nil {
		if err := a.store.SaveProfile(claims.Subject, profile); err != nil {
			a.fail(w, err)
			return
		}
	}

	http.Redirect(w, r, "/user_info", http.StatusFound)
}

// UserInfo lists the user's playlists alongside the saved selection.
// This is the interactive refresh-on-read path: an expired access
// token is refreshed and persisted before the listing call.
func (a *App) UserInfo(w http.ResponseWriter, r *http.Request) {
	claims, err := a.identify(r)
	if err != nil {
		a.renderIndex(w, web.IndexData{ErrorMessage: userMessage(err)})
		return
	}

	token, err := a.manager.ValidAccessToken(r.Context(), claims.Subject)
	if err != nil {
		a.renderIndex(w, web.IndexData{ErrorMessage: userMessage(err), UserData: claims.Raw})
		return
	}

	userID, err := a.providerUserID(r, claims.Subject, token)
	if err != nil {
		a.fail(w, err)
		return
	}

	playlists, err := a.client.AllPlaylists(r.Context(), token, userID)
	if err != nil {
		a.fail(w, err)
		return
	}

	data := web.UserInfoData{UserData: claims.Raw, Playlists: playlists}
	if saved, err := a.store.LoadPlaylistSelection(claims.Subject); err == nil {
		data.Saved = &saved
	}

	if err := a.renderer.Render(w, "user_info.html", data); err != nil {
		a.logger.Error("render failed", "err", err)
	}
}

// SavePlaylist replaces the user's cleanup playlist selection.
func (a *App) SavePlaylist(w http.ResponseWriter, r *http.Request) {
	claims, err := a.identify(r)
	if err != nil {
		a.renderIndex(w, web.IndexData{ErrorMessage: userMessage(err)})
		return
	}

	playlistID := r.FormValue("playlist_id")
	if playlistID == "" {
		http.Error(w, "playlist_id is required", http.StatusBadRequest)
		return
	}

	token, err := a.manager.ValidAccessToken(r.Context(), claims.Subject)
	if err != nil {
		a.renderIndex(w, web.IndexData{ErrorMessage: userMessage(err), UserData: claims.Raw})
		return
	}

	playlist, err := a.client.Playlist(r.Context(), token, playlistID)
	if err != nil {
		a.fail(w, err)
		return
	}

	selection := store.PlaylistSelection{ID: playlist.ID, Name: playlist.Name}
	if err := a.store.SavePlaylistSelection(claims.Subject, selection); err != nil {
		a.fail(w, err)
		return
	}

	http.Redirect(w, r, "/user_info", http.StatusFound)
}

// providerUserID returns the provider-side user id, fetching and
// persisting the profile snapshot when one is not stored yet.
func (a *App) providerUserID(r *http.Request, uid, token string) (string, error) {
	if profile, err := a.store.LoadProfile(uid); err == nil && profile.UserID() != "" {
		return profile.UserID(), nil
	}

	profile, err := a.client.Profile(r.Context(), token)
	if err != nil {
		return "", err
	}
	if err := a.store.SaveProfile(uid, profile); err != nil {
		return "", err
	}
	return profile.UserID(), nil
}

func (a *App) renderIndex(w http.ResponseWriter, data web.IndexData) {
	if err := a.renderer.Render(w, "index.html", data); err != nil {
		a.logger.Error("render failed", "err", err)
	}
}

func (a *App) fail(w http.ResponseWriter, err error) {
	a.logger.Error("request failed", "err", err)
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

// userMessage maps the error taxonomy to the distinct user-facing
// messages; verification and refresh failures are never a generic 500.
func userMessage(err error) string {
	switch {
	case errors.Is(err, shared.ErrInvalidIdentityToken):
		return "Your session is invalid or expired. Please sign in again."
	case errors.Is(err, shared.ErrNotLinked):
		return "No Spotify account linked yet. Use the link below to connect one."
	case errors.Is(err, shared.ErrRefreshFailed):
		return "Your Spotify link has expired or been revoked. Please re-link your account."
	case errors.Is(err, shared.ErrExchangeFailed):
		return "Spotify rejected the authorization. Please try linking again."
	case errors.Is(err, shared.ErrStateMismatch):
		return "The authorization response could not be verified. Please try linking again."
	default:
		return "Something went wrong. Please try again."
	}
}
