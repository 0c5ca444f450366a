// package tasks implements the scheduled listen sync: a fan-out over
// all users with an active playlist selection, and a per-user worker
// that removes already-played tracks from the selected playlist.
//
// Each user is an independently failing unit of work. The scheduler
// keeps dispatching regardless of individual outcomes; a failed user
// is retried on the next scheduled tick, never within the same one.
package tasks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gerrymanoim/to-listen/internal/shared"
	"github.com/gerrymanoim/to-listen/internal/spotify"
	"github.com/gerrymanoim/to-listen/internal/store"
	"github.com/gerrymanoim/to-listen/internal/tokens"
	"golang.org/x/time/rate"
)

// Result is the outcome of one user's sync pass.
type Result struct {
	UID     string
	Phase   Phase // Terminal phase: Done or Failed
	Skipped bool  // True when the user had no playlist selection
	Deleted int   // Tracks removed this pass
	Err     error
}

// Worker runs the per-user sync state machine:
//
//	Start → FetchPlaylist → FetchListens → {empty: Done}
//	      | {Authenticate → DeleteTracks → RecordRun → Done}
//	      | Failed
type Worker struct {
	store   *store.Store
	manager *tokens.Manager
	client  *spotify.Client
	logger  *log.Logger
}

// NewWorker creates a [Worker]. The manager should carry the batch
// refresh skew (see [tokens.Manager.WithSkew]).
func NewWorker(st *store.Store, manager *tokens.Manager, client *spotify.Client, logger *log.Logger) *Worker {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Worker{store: st, manager: manager, client: client, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (w *Worker) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// ProcessListens runs one sync pass for a user. Upstream failures are
// fatal for this pass and recorded on the result, never retried here.
func (w *Worker) ProcessListens(ctx context.Context, uid string, progress chan<- ProgressUpdate) Result {
	logger := shared.WithLogger(w.logger, "uid", uid)
	result := Result{UID: uid, Phase: Failed}

	w.sendProgress(progress, fetchPlaylistUpdate(uid))
	selection, err := w.store.LoadPlaylistSelection(uid)
	if errors.Is(err, shared.ErrNotFound) {
		// Not eligible, not an error.
		logger.Info("no playlist selection, skipping")
		result.Phase = Done
		result.Skipped = true
		return result
	}
	if err != nil {
		result.Err = err
		w.sendProgress(progress, failedUpdate(uid, err))
		return result
	}

	w.sendProgress(progress, fetchListensUpdate(uid))
	token, err := w.manager.ValidAccessToken(ctx, uid)
	if err != nil {
		result.Err = err
		w.sendProgress(progress, failedUpdate(uid, err))
		return result
	}

	played, err := w.client.RecentlyPlayed(ctx, token, time.Time{})
	if err != nil {
		result.Err = err
		w.sendProgress(progress, failedUpdate(uid, err))
		return result
	}

	if len(played) == 0 {
		// Terminate before any further token work; an empty batch
		// must not force a refresh or a delete call.
		logger.Info("no listens, nothing to do")
		w.sendProgress(progress, noListensUpdate(uid))
		result.Phase = Done
		return result
	}

	logger.Info("got played tracks", "count", len(played))

	w.sendProgress(progress, authenticateUpdate(uid))
	token, err = w.manager.ValidAccessToken(ctx, uid)
	if err != nil {
		result.Err = err
		w.sendProgress(progress, failedUpdate(uid, err))
		return result
	}

	uris := playedURIs(played)
	w.sendProgress(progress, deleteTracksUpdate(uid, len(uris)))
	if err := w.client.DeleteTracks(ctx, token, selection.ID, uris); err != nil {
		logger.Error("failed to delete played tracks from playlist", "playlist", selection.ID, "err", err)
		result.Err = err
		w.sendProgress(progress, failedUpdate(uid, err))
		return result
	}

	w.sendProgress(progress, recordRunUpdate(uid))
	if err := w.store.MergeLastRun(uid, time.Now()); err != nil {
		result.Err = err
		w.sendProgress(progress, failedUpdate(uid, err))
		return result
	}

	result.Phase = Done
	result.Deleted = len(uris)
	return result
}

// playedURIs collects the unique track URIs of a played batch,
// preserving first-seen order.
func playedURIs(played []spotify.PlayedTrack) []string {
	seen := make(map[string]bool, len(played))
	uris := make([]string, 0, len(played))
	for _, item := range played {
		if item.Track.URI == "" || seen[item.Track.URI] {
			continue
		}
		seen[item.Track.URI] = true
		uris = append(uris, item.Track.URI)
	}
	return uris
}

// Scheduler enumerates eligible users and dispatches one independent
// worker pass per user.
type Scheduler struct {
	store   *store.Store
	worker  *Worker
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewScheduler creates a [Scheduler] pacing dispatch at the given rate
// per second. A rate of zero or less disables pacing.
func NewScheduler(st *store.Store, worker *Worker, perSecond float64, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Scheduler{
		store:   st,
		worker:  worker,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Run executes one scheduled tick: list users with a playlist
// selection and run each worker in its own goroutine. One user's
// failure, latency, or blocking never delays or fails the others;
// per-user outcomes are collected and returned.
func (s *Scheduler) Run(ctx context.Context, progress chan<- ProgressUpdate) ([]Result, error) {
	uids, err := s.store.ListPlaylistUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate eligible users: %w", err)
	}

	s.logger.Info("dispatching sync workers", "users", len(uids))

	var wg sync.WaitGroup
	results := make([]Result, len(uids))
	for i, uid := range uids {
		if err := s.limiter.Wait(ctx); err != nil {
			results[i] = Result{UID: uid, Phase: Failed, Err: err}
			continue
		}

		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			results[i] = s.worker.ProcessListens(ctx, uid, progress)
			if results[i].Err != nil {
				s.logger.Error("sync failed for user", "uid", uid, "err", results[i].Err)
			}
		}(i, uid)
	}
	wg.Wait()

	return results, nil
}

// DecodeTriggerPayload extracts the user id from a pub/sub style
// trigger message carrying a base64-encoded uid.
func DecodeTriggerPayload(payload string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: bad trigger payload: %v", shared.ErrInvalidInput, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty trigger payload", shared.ErrInvalidInput)
	}
	return string(data), nil
}

// EncodeTriggerPayload builds the trigger message payload for a user id.
func EncodeTriggerPayload(uid string) string {
	return base64.StdEncoding.EncodeToString([]byte(uid))
}
